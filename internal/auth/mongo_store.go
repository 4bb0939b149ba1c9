package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDirectory is the production UserDirectory, one document per user.
type MongoDirectory struct {
	cli  *mongo.Client
	coll *mongo.Collection
}

func NewMongoDirectory(ctx context.Context, uri, db, coll string) (*MongoDirectory, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	cli, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	// optional ping
	_ = cli.Ping(dialCtx, readpref.Primary())

	c := cli.Database(db).Collection(coll)

	_, _ = c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return &MongoDirectory{cli: cli, coll: c}, nil
}

func NewMongoDirectoryWithClient(cli *mongo.Client, db, coll string) *MongoDirectory {
	return &MongoDirectory{cli: cli, coll: cli.Database(db).Collection(coll)}
}

type userDoc struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	Email             string             `bson:"email"`
	PassHash          string             `bson:"pass_hash"`
	Role              Role               `bson:"role"`
	Status            Status             `bson:"status"`
	IsDeleted         bool               `bson:"is_deleted"`
	PasswordChangedAt time.Time          `bson:"password_changed_at,omitempty"`
	Verification      Verification       `bson:"verification"`
	FCMToken          string             `bson:"fcm_token,omitempty"`
}

func (d *userDoc) toUser() *User {
	return &User{
		ID:                d.ID.Hex(),
		Email:             d.Email,
		PassHash:          d.PassHash,
		Role:              d.Role,
		Status:            d.Status,
		IsDeleted:         d.IsDeleted,
		PasswordChangedAt: d.PasswordChangedAt,
		Verification:      d.Verification,
		FCMToken:          d.FCMToken,
	}
}

// Add inserts a new user. Returns an error if the email already exists.
func (s *MongoDirectory) Add(ctx context.Context, u *User) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	role := u.Role
	if role == "" {
		role = RoleUser
	}
	status := u.Status
	if status == "" {
		status = StatusActive
	}
	doc := userDoc{
		Email:        email,
		PassHash:     u.PassHash,
		Role:         role,
		Status:       status,
		Verification: u.Verification,
		FCMToken:     u.FCMToken,
	}
	res, err := s.coll.InsertOne(ctx, doc)
	var wex mongo.WriteException
	if errors.As(err, &wex) {
		for _, we := range wex.WriteErrors {
			if we.Code == 11000 { // duplicate key
				return nil, BadRequest("email already exists")
			}
		}
	}
	if err != nil {
		return nil, err
	}
	out := *u
	out.Email = email
	out.Role = role
	out.Status = status
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		out.ID = oid.Hex()
	}
	return &out, nil
}

func (s *MongoDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (s *MongoDirectory) FindByID(ctx context.Context, id string) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, NotFound("user not found")
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *MongoDirectory) ExistsByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := checkEligibility(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *MongoDirectory) findOne(ctx context.Context, filter any) (*User, error) {
	var doc userDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return doc.toUser(), nil
}

func (s *MongoDirectory) UpdateByEmail(ctx context.Context, email string, patch UserPatch) (*User, error) {
	return s.updateOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}, patch)
}

func (s *MongoDirectory) UpdateByID(ctx context.Context, id string, patch UserPatch) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, NotFound("user not found")
	}
	return s.updateOne(ctx, bson.M{"_id": oid}, patch)
}

func (s *MongoDirectory) updateOne(ctx context.Context, filter any, patch UserPatch) (*User, error) {
	set := bson.M{}
	if patch.PassHash != nil {
		set["pass_hash"] = *patch.PassHash
	}
	if patch.PasswordChangedAt != nil {
		set["password_changed_at"] = *patch.PasswordChangedAt
	}
	if patch.FCMToken != nil {
		set["fcm_token"] = *patch.FCMToken
	}
	if patch.Verified != nil {
		set["verification.verified"] = *patch.Verified
	}
	if patch.OTPHash != nil {
		set["verification.otp"] = *patch.OTPHash
	}
	if patch.IsDeleted != nil {
		set["is_deleted"] = *patch.IsDeleted
	}

	var doc userDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return doc.toUser(), nil
}
