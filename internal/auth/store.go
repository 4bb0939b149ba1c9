package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UserPatch is a partial update; nil fields are left untouched.
type UserPatch struct {
	PassHash          *string
	PasswordChangedAt *time.Time
	FCMToken          *string
	Verified          *bool
	OTPHash           *string
	IsDeleted         *bool
}

// UserDirectory is the credential-record store consumed by every flow.
// ExistsByEmail applies the eligibility gate: absent records fail NotFound,
// deleted or blocked records fail Forbidden. The plain finders do not gate.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (*User, error)
	UpdateByEmail(ctx context.Context, email string, patch UserPatch) (*User, error)
	UpdateByID(ctx context.Context, id string, patch UserPatch) (*User, error)
}

func checkEligibility(u *User) error {
	if u.IsDeleted {
		return Forbidden("user was deleted")
	}
	if u.Status == StatusBlocked {
		return Forbidden("user was blocked")
	}
	return nil
}

func applyPatch(u *User, patch UserPatch) {
	if patch.PassHash != nil {
		u.PassHash = *patch.PassHash
	}
	if patch.PasswordChangedAt != nil {
		u.PasswordChangedAt = *patch.PasswordChangedAt
	}
	if patch.FCMToken != nil {
		u.FCMToken = *patch.FCMToken
	}
	if patch.Verified != nil {
		u.Verification.Verified = *patch.Verified
	}
	if patch.OTPHash != nil {
		u.Verification.OTPHash = *patch.OTPHash
	}
	if patch.IsDeleted != nil {
		u.IsDeleted = *patch.IsDeleted
	}
}

// MemoryDirectory keeps records in-process. Used by tests and local dev.
type MemoryDirectory struct {
	mu      sync.Mutex
	byEmail map[string]*User
	byID    map[string]*User
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byEmail: map[string]*User{},
		byID:    map[string]*User{},
	}
}

func (s *MemoryDirectory) Add(u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return BadRequest("email required")
	}
	if _, exists := s.byEmail[email]; exists {
		return BadRequest("email already exists")
	}
	clone := *u
	clone.Email = email
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.Role == "" {
		clone.Role = RoleUser
	}
	if clone.Status == "" {
		clone.Status = StatusActive
	}
	s.byEmail[email] = &clone
	s.byID[clone.ID] = &clone
	return nil
}

func (s *MemoryDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, NotFound("user not found")
	}
	clone := *u
	return &clone, nil
}

func (s *MemoryDirectory) FindByID(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, NotFound("user not found")
	}
	clone := *u
	return &clone, nil
}

func (s *MemoryDirectory) ExistsByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := checkEligibility(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *MemoryDirectory) UpdateByEmail(ctx context.Context, email string, patch UserPatch) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, NotFound("user not found")
	}
	applyPatch(u, patch)
	clone := *u
	return &clone, nil
}

func (s *MemoryDirectory) UpdateByID(ctx context.Context, id string, patch UserPatch) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, NotFound("user not found")
	}
	applyPatch(u, patch)
	clone := *u
	return &clone, nil
}
