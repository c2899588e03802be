package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/notifly-go/internal/domain"
	"github.com/notifly-go/internal/domain/notification"
	"github.com/notifly-go/internal/domain/user"
	"github.com/notifly-go/pkg/database"
	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *database.DB
}

func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*notification.Notification, error) {
	var n notification.Notification
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return nil, translate(err)
	}
	return &n, nil
}

// List returns one page of groups matching the filter, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter notification.Filter, page *database.Pagination) ([]*notification.Notification, error) {
	query := r.db.WithContext(ctx).Model(&notification.Notification{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	paged, err := database.Paginate(query, &notification.Notification{}, page)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	var out []*notification.Notification
	if err := paged.Order("created_at DESC").Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

func (r *NotificationRepository) Update(ctx context.Context, n *notification.Notification) error {
	result := r.db.WithContext(ctx).Model(n).Select("*").Omit("created_at", "user_id").Updates(n)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NotFound("notification")
	}
	return nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&notification.Notification{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NotFound("notification")
	}
	return nil
}

func (r *NotificationRepository) ExistsByName(ctx context.Context, userID, name, excludeID string) (bool, error) {
	query := r.db.WithContext(ctx).Model(&notification.Notification{}).
		Where("user_id = ? AND LOWER(name) = ?", userID, strings.ToLower(strings.TrimSpace(name)))
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UserExists backs ports.UserLookup without pulling in the user repository.
type UserExists struct {
	db *database.DB
}

func NewUserExists(db *database.DB) *UserExists {
	return &UserExists{db: db}
}

func (u *UserExists) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := u.db.WithContext(ctx).Model(&user.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.NotFound("notification")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.Conflict("notification with this name already exists")
	default:
		return err
	}
}
