package graph

import (
	"context"

	"github.com/notifly-go/internal/domain"
	"github.com/notifly-go/internal/domain/notification"
	"github.com/notifly-go/internal/domain/user"
	userservice "github.com/notifly-go/internal/user/app/service"
)

// prop adapts a plain getter on T into a field resolver.
func prop[T any](get func(T) interface{}) fieldFunc {
	return func(_ context.Context, obj interface{}, _ map[string]interface{}) (interface{}, error) {
		return get(obj.(T)), nil
	}
}

func optional(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func pageFields[T any]() map[string]fieldFunc {
	return map[string]fieldFunc{
		"items":           prop(func(p *domain.Page[T]) interface{} { return p.Items }),
		"page":            prop(func(p *domain.Page[T]) interface{} { return p.Page }),
		"limit":           prop(func(p *domain.Page[T]) interface{} { return p.Limit }),
		"total":           prop(func(p *domain.Page[T]) interface{} { return p.Total }),
		"totalPages":      prop(func(p *domain.Page[T]) interface{} { return p.TotalPages }),
		"hasNextPage":     prop(func(p *domain.Page[T]) interface{} { return p.HasNextPage }),
		"hasPreviousPage": prop(func(p *domain.Page[T]) interface{} { return p.HasPreviousPage }),
	}
}

func userFilter(args map[string]interface{}) user.Filter {
	f := argObject(args, "filter")
	return user.Filter{
		Search:   argString(f, "search"),
		IsActive: argOptBool(f, "isActive"),
	}
}

func notificationFilter(args map[string]interface{}) notification.Filter {
	f := argObject(args, "filter")
	return notification.Filter{
		UserID:   argString(f, "userId"),
		Search:   argString(f, "search"),
		IsActive: argOptBool(f, "isActive"),
	}
}

func createUserInput(args map[string]interface{}) user.CreateInput {
	in := argObject(args, "input")
	return user.CreateInput{
		Email:     argString(in, "email"),
		Username:  argString(in, "username"),
		Password:  argString(in, "password"),
		FirstName: argString(in, "firstName"),
		LastName:  argString(in, "lastName"),
	}
}

func updateUserInput(args map[string]interface{}) user.UpdateInput {
	in := argObject(args, "input")
	return user.UpdateInput{
		Email:     argOptString(in, "email"),
		Username:  argOptString(in, "username"),
		Password:  argOptString(in, "password"),
		FirstName: argOptString(in, "firstName"),
		LastName:  argOptString(in, "lastName"),
		IsActive:  argOptBool(in, "isActive"),
	}
}

func createNotificationInput(args map[string]interface{}) notification.CreateInput {
	in := argObject(args, "input")
	return notification.CreateInput{
		Name:        argString(in, "name"),
		Description: argString(in, "description"),
		Emails:      argStrings(in, "emails"),
	}
}

func updateNotificationInput(args map[string]interface{}) notification.UpdateInput {
	in := argObject(args, "input")
	return notification.UpdateInput{
		Name:        argOptString(in, "name"),
		Description: argOptString(in, "description"),
		Emails:      argStrings(in, "emails"),
		IsActive:    argOptBool(in, "isActive"),
	}
}

// bind builds the field tables for every object type in the schema.
func (e *executableSchema) bind(r *Resolver) map[string]map[string]fieldFunc {
	fields := map[string]map[string]fieldFunc{
		"Query": {
			"hello": func(ctx context.Context, _ interface{}, _ map[string]interface{}) (interface{}, error) {
				return r.Hello(ctx)
			},
			"me": func(ctx context.Context, _ interface{}, _ map[string]interface{}) (interface{}, error) {
				return r.Me(ctx)
			},
			"user": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.User(ctx, argString(args, "id"))
			},
			"userByEmail": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.UserByEmail(ctx, argString(args, "email"))
			},
			"users": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.ListUsers(ctx, argInt(args, "page", 1), argInt(args, "limit", 10), userFilter(args))
			},
			"notification": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.Notification(ctx, argString(args, "id"))
			},
			"notifications": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.ListNotifications(ctx, argInt(args, "page", 1), argInt(args, "limit", 10), notificationFilter(args))
			},
			"userNotifications": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.UserNotifications(ctx, argString(args, "userId"), argInt(args, "page", 1), argInt(args, "limit", 10))
			},
			"__schema": e.introspectSchema,
			"__type":   e.introspectType,
		},
		"Mutation": {
			"login": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.Login(ctx, argString(args, "email"), argString(args, "password"))
			},
			"logout": func(ctx context.Context, _ interface{}, _ map[string]interface{}) (interface{}, error) {
				return r.Logout(ctx)
			},
			"createUser": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.CreateUser(ctx, createUserInput(args))
			},
			"updateUser": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.UpdateUser(ctx, argString(args, "id"), updateUserInput(args))
			},
			"deleteUser": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.DeleteUser(ctx, argString(args, "id"))
			},
			"createNotification": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.CreateNotification(ctx, createNotificationInput(args))
			},
			"updateNotification": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.UpdateNotification(ctx, argString(args, "id"), updateNotificationInput(args))
			},
			"deleteNotification": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.DeleteNotification(ctx, argString(args, "id"))
			},
			"addNotificationEmail": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.AddNotificationEmail(ctx, argString(args, "id"), argString(args, "email"))
			},
			"removeNotificationEmail": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.RemoveNotificationEmail(ctx, argString(args, "id"), argString(args, "email"))
			},
			"toggleNotification": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.ToggleNotification(ctx, argString(args, "id"))
			},
			"sendNotification": func(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return r.SendNotification(ctx, argString(args, "id"), argString(args, "subject"), argString(args, "body"))
			},
		},
		"User": {
			"id":          prop(func(u *user.User) interface{} { return u.ID }),
			"email":       prop(func(u *user.User) interface{} { return u.Email }),
			"username":    prop(func(u *user.User) interface{} { return u.Username }),
			"firstName":   prop(func(u *user.User) interface{} { return optional(u.FirstName) }),
			"lastName":    prop(func(u *user.User) interface{} { return optional(u.LastName) }),
			"fullName":    prop(func(u *user.User) interface{} { return u.FullName() }),
			"isActive":    prop(func(u *user.User) interface{} { return u.IsActive }),
			"lastLoginAt": prop(func(u *user.User) interface{} { return u.LastLoginAt }),
			"createdAt":   prop(func(u *user.User) interface{} { return u.CreatedAt }),
			"updatedAt":   prop(func(u *user.User) interface{} { return u.UpdatedAt }),
			"notifications": func(ctx context.Context, obj interface{}, args map[string]interface{}) (interface{}, error) {
				return r.UserNotificationPage(ctx, obj.(*user.User), argInt(args, "page", 1), argInt(args, "limit", 10))
			},
		},
		"Notification": {
			"id":          prop(func(n *notification.Notification) interface{} { return n.ID }),
			"userId":      prop(func(n *notification.Notification) interface{} { return n.UserID }),
			"name":        prop(func(n *notification.Notification) interface{} { return n.Name }),
			"description": prop(func(n *notification.Notification) interface{} { return optional(n.Description) }),
			"emails":      prop(func(n *notification.Notification) interface{} { return n.Emails }),
			"emailCount":  prop(func(n *notification.Notification) interface{} { return len(n.Emails) }),
			"isActive":    prop(func(n *notification.Notification) interface{} { return n.IsActive }),
			"lastSentAt":  prop(func(n *notification.Notification) interface{} { return n.LastSentAt }),
			"createdAt":   prop(func(n *notification.Notification) interface{} { return n.CreatedAt }),
			"updatedAt":   prop(func(n *notification.Notification) interface{} { return n.UpdatedAt }),
			"user": func(ctx context.Context, obj interface{}, _ map[string]interface{}) (interface{}, error) {
				return r.NotificationUser(ctx, obj.(*notification.Notification))
			},
		},
		"AuthPayload": {
			"token":     prop(func(a *userservice.AuthResult) interface{} { return a.Token }),
			"expiresAt": prop(func(a *userservice.AuthResult) interface{} { return a.ExpiresAt }),
			"user":      prop(func(a *userservice.AuthResult) interface{} { return a.User }),
		},
		"UserPage":         pageFields[*user.User](),
		"NotificationPage": pageFields[*notification.Notification](),
	}

	for name, table := range e.introspectionFields() {
		fields[name] = table
	}
	return fields
}
