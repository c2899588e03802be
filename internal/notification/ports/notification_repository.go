package ports

import (
	"context"

	"github.com/notifly-go/internal/domain/notification"
	"github.com/notifly-go/pkg/database"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *notification.Notification) error
	GetByID(ctx context.Context, id string) (*notification.Notification, error)
	List(ctx context.Context, filter notification.Filter, page *database.Pagination) ([]*notification.Notification, error)
	Update(ctx context.Context, n *notification.Notification) error
	Delete(ctx context.Context, id string) error
	// ExistsByName reports whether the user already owns a group with this name.
	ExistsByName(ctx context.Context, userID, name, excludeID string) (bool, error)
}

// EmailSender delivers one message to a list of recipients.
type EmailSender interface {
	Send(ctx context.Context, to []string, msg notification.Message) error
}

// UserLookup confirms that a notification owner exists.
type UserLookup interface {
	Exists(ctx context.Context, id string) (bool, error)
}
