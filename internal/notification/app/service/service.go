package service

import (
	"context"
	"fmt"
	"time"

	"github.com/notifly-go/internal/domain"
	"github.com/notifly-go/internal/domain/notification"
	"github.com/notifly-go/internal/notification/ports"
	"github.com/notifly-go/pkg/database"
	"github.com/notifly-go/pkg/events"
	"github.com/notifly-go/pkg/logger"
)

type NotificationService struct {
	repo     ports.NotificationRepository
	users    ports.UserLookup
	sender   ports.EmailSender
	eventBus events.EventBus
	logger   logger.Logger
	now      func() time.Time
}

func NewNotificationService(
	repo ports.NotificationRepository,
	users ports.UserLookup,
	sender ports.EmailSender,
	eventBus events.EventBus,
	logger logger.Logger,
) *NotificationService {
	return &NotificationService{
		repo:     repo,
		users:    users,
		sender:   sender,
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

// Create adds a group owned by the caller. Names are unique per owner.
func (s *NotificationService) Create(ctx context.Context, actorID string, in notification.CreateInput) (*notification.Notification, error) {
	if err := domain.Authorize(actorID, ""); err != nil {
		return nil, err
	}
	in.UserID = actorID

	n, err := notification.NewNotification(in)
	if err != nil {
		return nil, err
	}

	ok, err := s.users.Exists(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up owner: %w", err)
	}
	if !ok {
		return nil, domain.NotFound("user")
	}
	if err := s.ensureUniqueName(ctx, n.UserID, n.Name, ""); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.logger.Info("Notification created", "notificationId", n.ID, "userId", n.UserID, "recipients", len(n.Emails))
	s.publish(ctx, events.NotificationCreated, n, actorID)
	return n, nil
}

func (s *NotificationService) Get(ctx context.Context, id string) (*notification.Notification, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *NotificationService) List(ctx context.Context, filter notification.Filter, page, limit int) (*domain.Page[*notification.Notification], error) {
	p := database.NewPagination(page, limit)
	items, err := s.repo.List(ctx, filter, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return domain.NewPage(items, p), nil
}

// ListForUser lists the groups owned by userID.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, page, limit int) (*domain.Page[*notification.Notification], error) {
	return s.List(ctx, notification.Filter{UserID: userID}, page, limit)
}

func (s *NotificationService) Update(ctx context.Context, actorID, id string, in notification.UpdateInput) (*notification.Notification, error) {
	n, err := s.owned(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if err := n.Apply(in); err != nil {
		return nil, err
	}
	if in.Name != nil {
		if err := s.ensureUniqueName(ctx, n.UserID, n.Name, n.ID); err != nil {
			return nil, err
		}
	}
	if err := s.save(ctx, n, actorID); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *NotificationService) Delete(ctx context.Context, actorID, id string) error {
	n, err := s.owned(ctx, actorID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, n.ID); err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}

	s.logger.Info("Notification deleted", "notificationId", n.ID, "userId", n.UserID)
	s.publish(ctx, events.NotificationDeleted, n, actorID)
	return nil
}

func (s *NotificationService) AddEmail(ctx context.Context, actorID, id, email string) (*notification.Notification, error) {
	n, err := s.owned(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if err := n.AddEmail(email); err != nil {
		return nil, err
	}
	if err := s.save(ctx, n, actorID); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *NotificationService) RemoveEmail(ctx context.Context, actorID, id, email string) (*notification.Notification, error) {
	n, err := s.owned(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if err := n.RemoveEmail(email); err != nil {
		return nil, err
	}
	if err := s.save(ctx, n, actorID); err != nil {
		return nil, err
	}
	return n, nil
}

// Toggle flips the group between active and inactive.
func (s *NotificationService) Toggle(ctx context.Context, actorID, id string) (*notification.Notification, error) {
	n, err := s.owned(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	active := !n.IsActive
	if err := n.Apply(notification.UpdateInput{IsActive: &active}); err != nil {
		return nil, err
	}
	if err := s.save(ctx, n, actorID); err != nil {
		return nil, err
	}
	return n, nil
}

// Send emails every recipient of an active group and records the send time.
func (s *NotificationService) Send(ctx context.Context, actorID, id string, msg notification.Message) (*notification.Notification, error) {
	if err := domain.Validate(msg); err != nil {
		return nil, err
	}
	n, err := s.owned(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if !n.IsActive {
		return nil, domain.NewValidationError("isActive", "notification is disabled")
	}

	if err := s.sender.Send(ctx, n.Emails, msg); err != nil {
		s.logger.Error("Notification delivery failed", "notificationId", n.ID, "error", err)
		return nil, err
	}

	n.MarkSent(s.now())
	if err := s.repo.Update(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to record delivery: %w", err)
	}

	s.logger.Info("Notification sent", "notificationId", n.ID, "recipients", len(n.Emails))
	s.publish(ctx, events.NotificationSent, n, actorID)
	return n, nil
}

// owned loads a group and checks the caller owns it.
func (s *NotificationService) owned(ctx context.Context, actorID, id string) (*notification.Notification, error) {
	if err := domain.Authorize(actorID, ""); err != nil {
		return nil, err
	}
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.Authorize(actorID, n.UserID); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *NotificationService) save(ctx context.Context, n *notification.Notification, actorID string) error {
	if err := s.repo.Update(ctx, n); err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	s.publish(ctx, events.NotificationUpdated, n, actorID)
	return nil
}

func (s *NotificationService) ensureUniqueName(ctx context.Context, userID, name, excludeID string) error {
	taken, err := s.repo.ExistsByName(ctx, userID, name, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check name: %w", err)
	}
	if taken {
		return domain.Conflict("notification %q already exists", name)
	}
	return nil
}

func (s *NotificationService) publish(ctx context.Context, eventType string, n *notification.Notification, actorID string) {
	events.PublishAsync(ctx, s.eventBus, s.logger, events.NewEventBuilder(eventType).
		WithAggregateID(n.ID).
		WithAggregateType("notification").
		WithUserID(actorID).
		WithPayload("name", n.Name).
		WithPayload("recipients", len(n.Emails)).
		Build())
}
