package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"

	"chorus/services/presence-service/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserDirectory resolves display metadata from the users table.
type UserDirectory struct {
	db *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

func (d *UserDirectory) Lookup(ctx context.Context, userID string) (models.UserProfile, error) {
	var user models.User
	err := d.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.UserProfile{}, ErrUserNotFound
		}
		return models.UserProfile{}, fmt.Errorf("failed to look up user %s: %w", userID, err)
	}
	return models.UserProfile{DisplayName: user.Name, AvatarURL: user.ProfileImage}, nil
}

// Directory is anything that can resolve a user's display metadata.
type Directory interface {
	Lookup(ctx context.Context, userID string) (models.UserProfile, error)
}

// CachedDirectory memoizes successful lookups for a fixed TTL. Failures are
// not cached.
type CachedDirectory struct {
	next  Directory
	cache *expirable.LRU[string, models.UserProfile]
}

func NewCachedDirectory(next Directory, size int, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		next:  next,
		cache: expirable.NewLRU[string, models.UserProfile](size, nil, ttl),
	}
}

func (d *CachedDirectory) Lookup(ctx context.Context, userID string) (models.UserProfile, error) {
	if profile, ok := d.cache.Get(userID); ok {
		return profile, nil
	}
	profile, err := d.next.Lookup(ctx, userID)
	if err != nil {
		return models.UserProfile{}, err
	}
	d.cache.Add(userID, profile)
	return profile, nil
}
