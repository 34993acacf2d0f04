package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/domain"
)

// IdentityResolver answers "who am I". Auth failures are absorbed: the caller
// gets the development identity and the failure is only logged.
type IdentityResolver struct {
	auth   domain.Authenticator
	dir    domain.Directory
	policy Policy
	devID  string
	log    *zap.Logger

	mu     sync.Mutex
	cached string
}

// NewIdentityResolver builds a resolver. An empty devID means DevUserID.
func NewIdentityResolver(auth domain.Authenticator, dir domain.Directory, policy Policy, devID string, log *zap.Logger) *IdentityResolver {
	if devID == "" {
		devID = DevUserID
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityResolver{auth: auth, dir: dir, policy: policy, devID: devID, log: log}
}

// Current returns the signed-in user's id. A successful lookup is cached.
func (r *IdentityResolver) Current(ctx context.Context) string {
	r.mu.Lock()
	cached := r.cached
	r.mu.Unlock()
	if cached != "" {
		return cached
	}

	id, err := Read(ctx, r.policy, r.auth.CurrentUserID)
	if err != nil || id == "" {
		r.log.Warn("auth unavailable, using development identity", zap.Error(err), zap.String("user_id", r.devID))
		return r.devID
	}
	r.mu.Lock()
	r.cached = id
	r.mu.Unlock()
	return id
}

// CurrentProfile returns the signed-in user's profile. When the directory
// has no usable row, a profile is synthesized: the fallback row for the
// development identity, a generic one otherwise.
func (r *IdentityResolver) CurrentProfile(ctx context.Context) domain.Profile {
	id := r.Current(ctx)
	p, err := Read(ctx, r.policy, func(ctx context.Context) (*domain.Profile, error) {
		return r.dir.GetProfile(ctx, id)
	})
	if err == nil && p != nil {
		return *p
	}
	if !errors.Is(err, domain.ErrNotFound) {
		r.log.Warn("profile lookup failed", zap.String("user_id", id), zap.Error(err))
	}
	if fp, ok := FallbackProfile(id); ok {
		return fp
	}
	now := time.Now()
	return domain.Profile{
		ID:        id,
		Username:  "usuario",
		FullName:  PlaceholderName,
		AvatarURL: "https://i.pravatar.cc/150?img=1",
		Online:    true,
		LastSeen:  &now,
	}
}
