package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/notifly-go/internal/domain/user"
	"github.com/notifly-go/internal/user/ports"
	"github.com/notifly-go/pkg/cache"
	"github.com/notifly-go/pkg/database"
)

// cachedUser keeps the password hash, which user.User hides from JSON.
type cachedUser struct {
	user.User
	PasswordHash string `json:"passwordHash"`
}

// CachedUserRepository wraps a UserRepository with read-through caching of
// single-user lookups. Listings always hit the database.
type CachedUserRepository struct {
	repo  ports.UserRepository
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedUserRepository(repo ports.UserRepository, c cache.Cache) *CachedUserRepository {
	return &CachedUserRepository{
		repo:  repo,
		cache: c,
		ttl:   5 * time.Minute,
	}
}

func idKey(id string) string       { return fmt.Sprintf("user:id:%s", id) }
func emailKey(email string) string { return fmt.Sprintf("user:email:%s", user.NormalizeEmail(email)) }

func (r *CachedUserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	if u, ok := r.load(ctx, idKey(id)); ok {
		return u, nil
	}

	u, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, u)
	return u, nil
}

func (r *CachedUserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	if u, ok := r.load(ctx, emailKey(email)); ok {
		return u, nil
	}

	u, err := r.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	r.store(ctx, u)
	return u, nil
}

func (r *CachedUserRepository) Create(ctx context.Context, u *user.User) error {
	return r.repo.Create(ctx, u)
}

func (r *CachedUserRepository) List(ctx context.Context, filter user.Filter, page *database.Pagination) ([]*user.User, error) {
	return r.repo.List(ctx, filter, page)
}

// Update evicts both keys of the previous record since the email may change.
func (r *CachedUserRepository) Update(ctx context.Context, u *user.User) error {
	r.evictByID(ctx, u.ID)
	if err := r.repo.Update(ctx, u); err != nil {
		return err
	}
	_ = r.cache.Delete(ctx, emailKey(u.Email))
	return nil
}

func (r *CachedUserRepository) Delete(ctx context.Context, id string) error {
	r.evictByID(ctx, id)
	return r.repo.Delete(ctx, id)
}

func (r *CachedUserRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	return r.repo.ExistsByEmail(ctx, email, excludeID)
}

func (r *CachedUserRepository) ExistsByUsername(ctx context.Context, username, excludeID string) (bool, error) {
	return r.repo.ExistsByUsername(ctx, username, excludeID)
}

func (r *CachedUserRepository) load(ctx context.Context, key string) (*user.User, bool) {
	var entry cachedUser
	if err := r.cache.Get(ctx, key, &entry); err != nil {
		return nil, false
	}
	u := entry.User
	u.Password = entry.PasswordHash
	return &u, true
}

func (r *CachedUserRepository) store(ctx context.Context, u *user.User) {
	entry := cachedUser{User: *u, PasswordHash: u.Password}
	_ = r.cache.Set(ctx, idKey(u.ID), entry, r.ttl)
	_ = r.cache.Set(ctx, emailKey(u.Email), entry, r.ttl)
}

func (r *CachedUserRepository) evictByID(ctx context.Context, id string) {
	if old, ok := r.load(ctx, idKey(id)); ok {
		_ = r.cache.Delete(ctx, emailKey(old.Email))
	}
	_ = r.cache.Delete(ctx, idKey(id))
}
