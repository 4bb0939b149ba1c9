package auth

import "time"

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
)

// Verification carries the email-verification state. OTPHash is empty
// whenever no challenge is outstanding; a new challenge overwrites it.
type Verification struct {
	Verified bool   `json:"verified" bson:"verified"`
	OTPHash  string `json:"-" bson:"otp"`
}

// User is the credential record owned by the directory. Hash fields never
// leave the process: they are excluded from JSON.
type User struct {
	ID                string       `json:"id" bson:"_id,omitempty"`
	Email             string       `json:"email" bson:"email"`
	PassHash          string       `json:"-" bson:"pass_hash"`
	Role              Role         `json:"role" bson:"role"`
	Status            Status       `json:"status" bson:"status"`
	IsDeleted         bool         `json:"isDeleted" bson:"is_deleted"`
	PasswordChangedAt time.Time    `json:"-" bson:"password_changed_at,omitempty"`
	Verification      Verification `json:"verification" bson:"verification"`
	FCMToken          string       `json:"-" bson:"fcm_token,omitempty"`
}

// LoginResult is what a successful login hands back to the transport layer.
type LoginResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user"`
}
