package graph

import (
	"context"
	"strings"

	"github.com/notifly-go/internal/domain"
	"github.com/notifly-go/internal/domain/notification"
	"github.com/notifly-go/internal/domain/user"
	userservice "github.com/notifly-go/internal/user/app/service"
	"github.com/notifly-go/pkg/auth"
	"github.com/notifly-go/pkg/logger"
)

const greeting = "Hello from the notifly GraphQL API!"

type UserService interface {
	Create(ctx context.Context, in user.CreateInput) (*user.User, error)
	Get(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	List(ctx context.Context, filter user.Filter, page, limit int) (*domain.Page[*user.User], error)
	Update(ctx context.Context, actorID, id string, in user.UpdateInput) (*user.User, error)
	Delete(ctx context.Context, actorID, id string) error
	Login(ctx context.Context, email, password string) (*userservice.AuthResult, error)
}

type NotificationService interface {
	Create(ctx context.Context, actorID string, in notification.CreateInput) (*notification.Notification, error)
	Get(ctx context.Context, id string) (*notification.Notification, error)
	List(ctx context.Context, filter notification.Filter, page, limit int) (*domain.Page[*notification.Notification], error)
	ListForUser(ctx context.Context, userID string, page, limit int) (*domain.Page[*notification.Notification], error)
	Update(ctx context.Context, actorID, id string, in notification.UpdateInput) (*notification.Notification, error)
	Delete(ctx context.Context, actorID, id string) error
	AddEmail(ctx context.Context, actorID, id, email string) (*notification.Notification, error)
	RemoveEmail(ctx context.Context, actorID, id, email string) (*notification.Notification, error)
	Toggle(ctx context.Context, actorID, id string) (*notification.Notification, error)
	Send(ctx context.Context, actorID, id string, msg notification.Message) (*notification.Notification, error)
}

// Resolver holds the services the query and mutation fields call into.
// The caller's identity always comes from the request context.
type Resolver struct {
	Users         UserService
	Notifications NotificationService
	Logger        logger.Logger
}

func (r *Resolver) Hello(ctx context.Context) (string, error) {
	return greeting, nil
}

// Me returns nil for anonymous callers and for sessions whose user is gone.
func (r *Resolver) Me(ctx context.Context) (*user.User, error) {
	id := auth.UserIDFrom(ctx)
	if id == "" {
		return nil, nil
	}
	u, err := r.Users.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (r *Resolver) User(ctx context.Context, id string) (*user.User, error) {
	return r.Users.Get(ctx, id)
}

func (r *Resolver) UserByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.Users.GetByEmail(ctx, email)
}

func (r *Resolver) ListUsers(ctx context.Context, page, limit int, filter user.Filter) (*domain.Page[*user.User], error) {
	return r.Users.List(ctx, filter, page, limit)
}

func (r *Resolver) Notification(ctx context.Context, id string) (*notification.Notification, error) {
	return r.Notifications.Get(ctx, id)
}

func (r *Resolver) ListNotifications(ctx context.Context, page, limit int, filter notification.Filter) (*domain.Page[*notification.Notification], error) {
	return r.Notifications.List(ctx, filter, page, limit)
}

func (r *Resolver) UserNotifications(ctx context.Context, userID string, page, limit int) (*domain.Page[*notification.Notification], error) {
	return r.Notifications.ListForUser(ctx, userID, page, limit)
}

// Login authenticates the caller and binds the user to the session cookie,
// so browser clients stay signed in without sending the bearer token.
func (r *Resolver) Login(ctx context.Context, email, password string) (*userservice.AuthResult, error) {
	result, err := r.Users.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if s := auth.SessionFrom(ctx); s != nil {
		s.SetUser(result.User.ID)
	}
	return result, nil
}

func (r *Resolver) Logout(ctx context.Context) (bool, error) {
	s := auth.SessionFrom(ctx)
	if s == nil || s.UserID() == "" {
		return false, nil
	}
	s.SetUser("")
	return true, nil
}

func (r *Resolver) CreateUser(ctx context.Context, in user.CreateInput) (*user.User, error) {
	return r.Users.Create(ctx, in)
}

func (r *Resolver) UpdateUser(ctx context.Context, id string, in user.UpdateInput) (*user.User, error) {
	return r.Users.Update(ctx, auth.UserIDFrom(ctx), id, in)
}

func (r *Resolver) DeleteUser(ctx context.Context, id string) (bool, error) {
	actorID := auth.UserIDFrom(ctx)
	if err := r.Users.Delete(ctx, actorID, id); err != nil {
		return false, err
	}
	if s := auth.SessionFrom(ctx); s != nil && s.UserID() == id {
		s.SetUser("")
	}
	return true, nil
}

func (r *Resolver) CreateNotification(ctx context.Context, in notification.CreateInput) (*notification.Notification, error) {
	return r.Notifications.Create(ctx, auth.UserIDFrom(ctx), in)
}

func (r *Resolver) UpdateNotification(ctx context.Context, id string, in notification.UpdateInput) (*notification.Notification, error) {
	return r.Notifications.Update(ctx, auth.UserIDFrom(ctx), id, in)
}

func (r *Resolver) DeleteNotification(ctx context.Context, id string) (bool, error) {
	if err := r.Notifications.Delete(ctx, auth.UserIDFrom(ctx), id); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Resolver) AddNotificationEmail(ctx context.Context, id, email string) (*notification.Notification, error) {
	return r.Notifications.AddEmail(ctx, auth.UserIDFrom(ctx), id, email)
}

func (r *Resolver) RemoveNotificationEmail(ctx context.Context, id, email string) (*notification.Notification, error) {
	return r.Notifications.RemoveEmail(ctx, auth.UserIDFrom(ctx), id, email)
}

func (r *Resolver) ToggleNotification(ctx context.Context, id string) (*notification.Notification, error) {
	return r.Notifications.Toggle(ctx, auth.UserIDFrom(ctx), id)
}

func (r *Resolver) SendNotification(ctx context.Context, id, subject, body string) (*notification.Notification, error) {
	msg := notification.Message{Subject: strings.TrimSpace(subject), Body: body}
	return r.Notifications.Send(ctx, auth.UserIDFrom(ctx), id, msg)
}

// NotificationUser resolves the owner of a group. A dangling owner reads as null.
func (r *Resolver) NotificationUser(ctx context.Context, n *notification.Notification) (*user.User, error) {
	u, err := r.Users.Get(ctx, n.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (r *Resolver) UserNotificationPage(ctx context.Context, u *user.User, page, limit int) (*domain.Page[*notification.Notification], error) {
	return r.Notifications.ListForUser(ctx, u.ID, page, limit)
}
