package notification

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notifly-go/internal/domain"
)

const MaxRecipients = 50

// Notification is a named group of email recipients owned by one user.
type Notification struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID      string     `json:"userId" gorm:"not null;type:varchar(36);uniqueIndex:idx_notification_user_name,priority:1;index"`
	Name        string     `json:"name" gorm:"not null;size:100;uniqueIndex:idx_notification_user_name,priority:2"`
	Description string     `json:"description" gorm:"size:500"`
	Emails      []string   `json:"emails" gorm:"serializer:json;not null"`
	IsActive    bool       `json:"isActive" gorm:"not null;default:true"`
	LastSentAt  *time.Time `json:"lastSentAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type CreateInput struct {
	UserID      string   `json:"userId" validate:"required"`
	Name        string   `json:"name" validate:"required,min=1,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Emails      []string `json:"emails" validate:"required,min=1,max=50,dive,email"`
}

type UpdateInput struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Emails      []string `json:"emails" validate:"omitempty,min=1,max=50,dive,email"`
	IsActive    *bool    `json:"isActive"`
}

type Filter struct {
	UserID   string
	Search   string
	IsActive *bool
}

// Message is an email to be delivered to every recipient of a group.
type Message struct {
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body" validate:"required,max=10000"`
}

func NewNotification(in CreateInput) (*Notification, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Emails = NormalizeEmails(in.Emails)
	if err := domain.Validate(in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Notification{
		ID:          uuid.New().String(),
		UserID:      in.UserID,
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Emails:      in.Emails,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (n *Notification) Apply(in UpdateInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
	if in.Emails != nil {
		in.Emails = NormalizeEmails(in.Emails)
		if len(in.Emails) == 0 {
			return domain.NewValidationError("emails", "must contain at least 1 items")
		}
	}
	if err := domain.Validate(in); err != nil {
		return err
	}

	if in.Name != nil {
		n.Name = *in.Name
	}
	if in.Description != nil {
		n.Description = strings.TrimSpace(*in.Description)
	}
	if in.Emails != nil {
		n.Emails = in.Emails
	}
	if in.IsActive != nil {
		n.IsActive = *in.IsActive
	}
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// AddEmail adds a recipient. Adding an address that is already present is a no-op.
func (n *Notification) AddEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := domain.ValidateVar("email", email, "required,email"); err != nil {
		return err
	}
	if n.HasEmail(email) {
		return nil
	}
	if len(n.Emails) >= MaxRecipients {
		return domain.NewValidationError("emails", "must contain at most 50 items")
	}
	n.Emails = append(n.Emails, email)
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// RemoveEmail removes a recipient; a group must keep at least one address.
func (n *Notification) RemoveEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	idx := -1
	for i, e := range n.Emails {
		if e == email {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.NotFound("recipient")
	}
	if len(n.Emails) == 1 {
		return domain.NewValidationError("emails", "must contain at least 1 items")
	}
	n.Emails = append(n.Emails[:idx:idx], n.Emails[idx+1:]...)
	n.UpdatedAt = time.Now().UTC()
	return nil
}

func (n *Notification) HasEmail(email string) bool {
	for _, e := range n.Emails {
		if e == email {
			return true
		}
	}
	return false
}

func (n *Notification) MarkSent(at time.Time) {
	at = at.UTC()
	n.LastSentAt = &at
}

// NormalizeEmails lower-cases, trims and de-duplicates addresses, keeping first-seen order.
func NormalizeEmails(emails []string) []string {
	if emails == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
