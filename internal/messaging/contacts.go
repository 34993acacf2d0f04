package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/detox/internal/bus"
	"github.com/matheus3301/detox/internal/domain"
)

// ContactLoader turns the directory into the contact list. The most recently
// completed load replaces the cached list; concurrent loads are not coalesced.
type ContactLoader struct {
	dir      domain.Directory
	identity *IdentityResolver
	policy   Policy
	bus      *bus.Bus
	log      *zap.Logger

	mu       sync.Mutex
	contacts []Contact
	degraded bool
	previews map[string]string
}

// NewContactLoader creates a loader. b may be nil.
func NewContactLoader(dir domain.Directory, identity *IdentityResolver, policy Policy, b *bus.Bus, log *zap.Logger) *ContactLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContactLoader{
		dir:      dir,
		identity: identity,
		policy:   policy,
		bus:      b,
		log:      log,
		previews: make(map[string]string),
	}
}

// Load fetches every profile except the current user's. Failures are
// returned wrapped in domain.ErrDirectoryUnavailable; nothing is substituted.
func (l *ContactLoader) Load(ctx context.Context) ([]Contact, error) {
	contacts, _, err := l.load(ctx)
	return contacts, err
}

// load also reports how many profiles the directory returned, before the
// current user was excluded.
func (l *ContactLoader) load(ctx context.Context) ([]Contact, int, error) {
	var (
		me       string
		profiles []domain.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		me = l.identity.Current(gctx)
		return nil
	})
	g.Go(func() error {
		var err error
		profiles, err = Read(gctx, l.policy, l.dir.ListProfiles)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", domain.ErrDirectoryUnavailable, err)
	}

	contacts := make([]Contact, 0, len(profiles))
	for _, p := range profiles {
		if p.ID == me {
			continue
		}
		contacts = append(contacts, ToContact(p))
	}
	l.store(contacts, false)
	return l.Cached(), len(profiles), nil
}

// LoadOrFallback is Load with the fallback rule applied: an error or an
// empty directory yields the fallback users, and degraded is true. A
// directory holding only the current user is not empty and yields no
// contacts.
func (l *ContactLoader) LoadOrFallback(ctx context.Context) (contacts []Contact, degraded bool) {
	contacts, total, err := l.load(ctx)
	switch {
	case err != nil:
		l.log.Warn("contact list unavailable, using fallback users", zap.Error(err))
		if l.bus != nil {
			l.bus.Notify(domain.ErrDirectoryUnavailable.Error(), "No se pudo cargar la lista de contactos")
		}
	case total == 0:
		l.log.Info("directory empty, using fallback users")
	default:
		return contacts, false
	}
	l.store(FallbackContacts(), true)
	return l.Cached(), true
}

// Cached returns the last loaded list with previews applied.
func (l *ContactLoader) Cached() []Contact {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Contact, len(l.contacts))
	for i, c := range l.contacts {
		if p, ok := l.previews[c.ID]; ok {
			c.LastMessagePreview = p
		}
		out[i] = c
	}
	return out
}

// Degraded reports whether the cached list came from the fallback set.
func (l *ContactLoader) Degraded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.degraded
}

// SetPreview records the latest message text exchanged with peerID.
func (l *ContactLoader) SetPreview(peerID, content string) {
	l.mu.Lock()
	l.previews[peerID] = content
	l.mu.Unlock()
}

func (l *ContactLoader) store(contacts []Contact, degraded bool) {
	l.mu.Lock()
	l.contacts = contacts
	l.degraded = degraded
	l.mu.Unlock()
	if l.bus != nil {
		l.bus.Emit(bus.KindContactsLoaded, ContactsLoaded{Count: len(contacts), Degraded: degraded})
	}
}

// ContactsLoaded is the payload of contacts.loaded events.
type ContactsLoaded struct {
	Count    int  `json:"count"`
	Degraded bool `json:"degraded"`
}

// FilterContacts keeps contacts whose display name or preview contains query,
// ignoring case. An empty query keeps everything.
func FilterContacts(contacts []Contact, query string) []Contact {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return contacts
	}
	var out []Contact
	for _, c := range contacts {
		if strings.Contains(strings.ToLower(c.DisplayName), q) ||
			strings.Contains(strings.ToLower(c.LastMessagePreview), q) {
			out = append(out, c)
		}
	}
	return out
}
