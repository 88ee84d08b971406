package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PedroFlores1996/democrasite/internal/auth"
	"github.com/PedroFlores1996/democrasite/internal/topics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable username.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrUnknownUser indicates the username has never authenticated.
	ErrUnknownUser = errors.New("users: unknown user")
)

// ServiceConfig describes the dependencies required for user registration.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service keeps the users table in step with authenticated sessions.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the registry.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: sync.Map{},
	}, nil
}

// Register validates the session subject and records the user on first sight.
// Later calls for the same username are served from memory.
func (s *Service) Register(ctx context.Context, claims auth.SessionClaims) (topics.Username, error) {
	username, err := topics.NewUsername(claims.Username())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if _, ok := s.cache.Load(username.String()); ok {
		return username, nil
	}

	now := s.now().UTC()
	user := User{
		Username:    username.String(),
		DisplayName: normalize(claims.DisplayName),
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "last_seen_at"}),
		}).
		Create(&user).
		Error
	if err != nil {
		return "", err
	}

	s.cache.Store(username.String(), struct{}{})
	return username, nil
}

// Lookup returns the stored record for username, or ErrUnknownUser.
func (s *Service) Lookup(ctx context.Context, username topics.Username) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username.String()).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}
	return user, err
}

// DisplayNames maps each known username to its display name. Unknown
// usernames are absent from the result.
func (s *Service) DisplayNames(ctx context.Context, usernames []string) (map[string]string, error) {
	names := make(map[string]string, len(usernames))
	if len(usernames) == 0 {
		return names, nil
	}
	var found []User
	if err := s.db.WithContext(ctx).Where("username IN ?", usernames).Find(&found).Error; err != nil {
		return nil, err
	}
	for _, user := range found {
		names[user.Username] = user.DisplayName
	}
	return names, nil
}
