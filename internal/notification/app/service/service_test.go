package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/notifly-go/internal/domain"
	"github.com/notifly-go/internal/domain/notification"
	"github.com/notifly-go/internal/domain/user"
	"github.com/notifly-go/internal/notification/adapters/db/repository"
	"github.com/notifly-go/pkg/database"
	"github.com/notifly-go/pkg/events"
	"github.com/notifly-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent [][]string
}

func (f *fakeSender) Send(_ context.Context, to []string, _ notification.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fixture struct {
	svc    *NotificationService
	sender *fakeSender
	bus    *events.LogEventBus
	owner  string
	other  string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := database.New(database.Config{MaxOpenConns: 1}, logger.NewNop(),
		database.WithDialector(sqlite.Open("file::memory:")),
		database.WithModels(&user.User{}, &notification.Notification{}),
	)
	require.NoError(t, db.Connect(ctx))
	require.NoError(t, db.Sync(ctx, database.SyncOptions{}))
	t.Cleanup(func() { _ = db.Close() })

	ids := make([]string, 0, 2)
	for _, name := range []string{"alice", "bob"} {
		u, err := user.NewUser(user.CreateInput{Email: name + "@example.com", Username: name, Password: "password123"})
		require.NoError(t, err)
		require.NoError(t, db.Create(u).Error)
		ids = append(ids, u.ID)
	}

	sender := &fakeSender{}
	bus := events.NewLogEventBus(logger.NewNop())
	svc := NewNotificationService(
		repository.NewNotificationRepository(db),
		repository.NewUserExists(db),
		sender, bus, logger.NewNop(),
	)
	return &fixture{svc: svc, sender: sender, bus: bus, owner: ids[0], other: ids[1]}
}

func (f *fixture) create(t *testing.T, name string, emails ...string) *notification.Notification {
	t.Helper()
	n, err := f.svc.Create(context.Background(), f.owner, notification.CreateInput{Name: name, Emails: emails})
	require.NoError(t, err)
	return n
}

func TestCreate(t *testing.T) {
	f := setup(t)

	n := f.create(t, "Ops", "A@example.com", "a@example.com", "b@example.com")
	assert.Equal(t, f.owner, n.UserID)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, n.Emails)

	_, err := f.svc.Create(context.Background(), f.owner, notification.CreateInput{Name: "ops", Emails: []string{"c@example.com"}})
	assert.ErrorIs(t, err, domain.ErrConflict)

	// The same name is fine for another owner.
	_, err = f.svc.Create(context.Background(), f.other, notification.CreateInput{Name: "Ops", Emails: []string{"c@example.com"}})
	assert.NoError(t, err)
}

func TestCreate_Rejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "", notification.CreateInput{Name: "Ops", Emails: []string{"a@example.com"}})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.svc.Create(ctx, f.owner, notification.CreateInput{Name: "Ops", Emails: []string{"not-an-email"}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Create(ctx, "ghost", notification.CreateInput{Name: "Ops", Emails: []string{"a@example.com"}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate_OwnerOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	n := f.create(t, "Ops", "a@example.com")
	f.create(t, "Billing", "a@example.com")

	name := "Renamed"
	_, err := f.svc.Update(ctx, f.other, n.ID, notification.UpdateInput{Name: &name})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	updated, err := f.svc.Update(ctx, f.owner, n.ID, notification.UpdateInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	clash := "billing"
	_, err = f.svc.Update(ctx, f.owner, n.ID, notification.UpdateInput{Name: &clash})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.svc.Update(ctx, f.owner, "missing", notification.UpdateInput{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecipients(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	n := f.create(t, "Ops", "a@example.com")

	n, err := f.svc.AddEmail(ctx, f.owner, n.ID, "B@Example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, n.Emails)

	n, err = f.svc.RemoveEmail(ctx, f.owner, n.ID, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"b@example.com"}, n.Emails)

	_, err = f.svc.RemoveEmail(ctx, f.owner, n.ID, "b@example.com")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.AddEmail(ctx, f.other, n.ID, "c@example.com")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	stored, err := f.svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b@example.com"}, stored.Emails)
}

func TestToggleAndSend(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	n := f.create(t, "Ops", "a@example.com", "b@example.com")
	sentAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.svc.now = func() time.Time { return sentAt }
	msg := notification.Message{Subject: "Deploy", Body: "done"}

	sent, err := f.svc.Send(ctx, f.owner, n.ID, msg)
	require.NoError(t, err)
	require.NotNil(t, sent.LastSentAt)
	assert.True(t, sent.LastSentAt.Equal(sentAt))
	assert.Equal(t, [][]string{{"a@example.com", "b@example.com"}}, f.sender.sent)

	toggled, err := f.svc.Toggle(ctx, f.owner, n.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	_, err = f.svc.Send(ctx, f.owner, n.ID, msg)
	assert.ErrorIs(t, err, domain.ErrValidation)

	toggled, err = f.svc.Toggle(ctx, f.owner, n.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsActive)
}

func TestSend_Failures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	n := f.create(t, "Ops", "a@example.com")

	_, err := f.svc.Send(ctx, f.owner, n.ID, notification.Message{Subject: "", Body: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Send(ctx, f.other, n.ID, notification.Message{Subject: "s", Body: "x"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	boom := errors.New("smtp down")
	f.sender.err = boom
	_, err = f.svc.Send(ctx, f.owner, n.ID, notification.Message{Subject: "s", Body: "x"})
	assert.ErrorIs(t, err, boom)

	stored, err := f.svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastSentAt)
}

func TestListAndDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	n := f.create(t, "Ops", "a@example.com")
	f.create(t, "Billing", "a@example.com")

	page, err := f.svc.ListForUser(ctx, f.owner, 1, 1)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.EqualValues(t, 2, page.Total)
	assert.True(t, page.HasNextPage)

	page, err = f.svc.List(ctx, notification.Filter{Search: "bill"}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 10, page.Limit)

	assert.ErrorIs(t, f.svc.Delete(ctx, f.other, n.ID), domain.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, f.owner, n.ID))
	_, err = f.svc.Get(ctx, n.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Eventually(t, func() bool {
		for _, e := range f.bus.Events() {
			if e.Type == events.NotificationDeleted {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}
