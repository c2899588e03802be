package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notifly-go/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email       string     `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Username    string     `json:"username" gorm:"uniqueIndex;not null;size:50"`
	Password    string     `json:"-" gorm:"not null"`
	FirstName   string     `json:"firstName" gorm:"size:100"`
	LastName    string     `json:"lastName" gorm:"size:100"`
	IsActive    bool       `json:"isActive" gorm:"not null;default:true"`
	LastLoginAt *time.Time `json:"lastLoginAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// CreateInput is the payload accepted when registering a user.
type CreateInput struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Username  string `json:"username" validate:"required,min=3,max=50,alphanumunderscore"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
}

// UpdateInput carries optional profile changes; nil fields are left untouched.
type UpdateInput struct {
	Email     *string `json:"email" validate:"omitempty,email,max=255"`
	Username  *string `json:"username" validate:"omitempty,min=3,max=50,alphanumunderscore"`
	Password  *string `json:"password" validate:"omitempty,min=8,max=72"`
	FirstName *string `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,max=100"`
	IsActive  *bool   `json:"isActive"`
}

// Filter narrows user listings.
type Filter struct {
	Search   string
	IsActive *bool
}

// NewUser validates the input and creates a user with a hashed password.
func NewUser(in CreateInput) (*User, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if err := domain.Validate(in); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &User{
		ID:        uuid.New().String(),
		Email:     in.Email,
		Username:  in.Username,
		Password:  string(hashedPassword),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Apply validates and applies an update to the user in place.
func (u *User) Apply(in UpdateInput) error {
	if in.Email != nil {
		email := NormalizeEmail(*in.Email)
		in.Email = &email
	}
	if err := domain.Validate(in); err != nil {
		return err
	}

	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.Username != nil {
		u.Username = strings.TrimSpace(*in.Username)
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	if in.Password != nil {
		if err := u.SetPassword(*in.Password); err != nil {
			return err
		}
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// CheckPassword verifies the password
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// SetPassword updates the user's password
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// FullName returns the user's full name
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
