package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

const defaultProvider = "default"

// ServiceConfig describes the dependencies required for user identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages canonical user identifiers and provider-specific identities.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// ResolveCanonicalUserID returns the canonical user id for the provided session claims.
// It creates a new identity mapping when the provider+subject pair has not been seen before.
func (s *Service) ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (domain.UserID, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return domain.Anonymous, ErrInvalidIdentity
	}

	cacheKey := provider + ":" + subject
	if cachedIdentifier, ok := s.cache.Load(cacheKey); ok {
		if canonical, ok := cachedIdentifier.(domain.UserID); ok {
			return canonical, nil
		}
	}

	db := s.db.WithContext(ctx)
	var identity Identity
	err := db.
		Where("provider = ? AND subject = ?", provider, subject).
		First(&identity).
		Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		identity = Identity{
			Provider:    provider,
			Subject:     subject,
			UserID:      subject,
			Email:       normalize(claims.UserEmail),
			DisplayName: normalize(claims.UserDisplayName),
			AvatarURL:   normalize(claims.UserAvatarURL),
			LastSeenAt:  s.now(),
		}
		if err := db.Create(&identity).Error; err != nil {
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.Anonymous, err
			}
			if err := db.Where("provider = ? AND subject = ?", provider, subject).First(&identity).Error; err != nil {
				return domain.Anonymous, err
			}
		}
	case err != nil:
		return domain.Anonymous, err
	default:
		s.refreshProfile(ctx, identity, claims)
	}

	canonical, err := domain.NewUserID(identity.UserID)
	if err != nil {
		return domain.Anonymous, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	s.cache.Store(cacheKey, canonical)
	return canonical, nil
}

func (s *Service) refreshProfile(ctx context.Context, identity Identity, claims auth.SessionClaims) {
	updates := map[string]interface{}{"last_seen_at": s.now()}
	if email := normalize(claims.UserEmail); email != "" && email != identity.Email {
		updates["user_email"] = email
	}
	if display := normalize(claims.UserDisplayName); display != "" && display != identity.DisplayName {
		updates["user_display_name"] = display
	}
	if avatar := normalize(claims.UserAvatarURL); avatar != "" && avatar != identity.AvatarURL {
		updates["user_avatar_url"] = avatar
	}
	err := s.db.WithContext(ctx).
		Model(&Identity{}).
		Where("provider = ? AND subject = ?", identity.Provider, identity.Subject).
		Updates(updates).
		Error
	if err != nil {
		s.logger.Warn("identity profile refresh failed",
			zap.String("user_id", identity.UserID),
			zap.Error(err),
		)
	}
}

// Profiles returns display information for the given users. Unknown ids are omitted.
func (s *Service) Profiles(ctx context.Context, userIDs []string) (map[string]Profile, error) {
	profiles := make(map[string]Profile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	var identities []Identity
	err := s.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("last_seen_at DESC").
		Find(&identities).
		Error
	if err != nil {
		return nil, err
	}
	for _, identity := range identities {
		if _, seen := profiles[identity.UserID]; seen {
			continue
		}
		name := identity.DisplayName
		if name == "" {
			name = identity.Email
		}
		profiles[identity.UserID] = Profile{
			UserID:      identity.UserID,
			DisplayName: name,
			AvatarURL:   identity.AvatarURL,
		}
	}
	return profiles, nil
}

func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := defaultProvider
	subject := normalize(claims.Subject)

	raw := normalize(claims.UserID)
	if raw != "" {
		if strings.Contains(raw, ":") {
			segments := strings.SplitN(raw, ":", 2)
			if normalize(segments[0]) != "" && normalize(segments[1]) != "" {
				provider = normalize(segments[0])
				subject = normalize(segments[1])
			}
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalize(claims.UserEmail)
	}

	return provider, subject
}
