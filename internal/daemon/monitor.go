package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/config"
	"github.com/matheus3301/detox/internal/domain"
	"github.com/matheus3301/detox/internal/messaging"
	"github.com/matheus3301/detox/internal/status"
)

// Monitor keeps the state machine in step with the directory's health and
// keeps the current user's presence flag up while the daemon runs.
type Monitor struct {
	dir      domain.Directory
	identity *messaging.IdentityResolver
	machine  *status.Machine
	policy   messaging.Policy
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor probing every cfg.Calls.ProbeInterval.
func NewMonitor(backend domain.Backend, identity *messaging.IdentityResolver, machine *status.Machine, policy messaging.Policy, cfg *config.Config, logger *zap.Logger) *Monitor {
	interval := cfg.Calls.ProbeInterval.Duration
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		dir:      backend,
		identity: identity,
		machine:  machine,
		policy:   policy,
		interval: interval,
		logger:   logger.Named("monitor"),
	}
}

// Start marks the user online, probes once and keeps probing until Stop.
func (m *Monitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.setPresence(ctx, true)
		m.Probe(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Probe(ctx)
			}
		}
	}()
}

// Probe lists profiles once and settles the machine: rows mean Ready, an
// error or an empty directory means Degraded.
func (m *Monitor) Probe(ctx context.Context) bool {
	profiles, err := messaging.Read(ctx, m.policy, m.dir.ListProfiles)
	if ctx.Err() != nil {
		return false
	}
	healthy := err == nil && len(profiles) > 0
	if !healthy {
		m.logger.Warn("directory probe failed", zap.Error(err), zap.Int("profiles", len(profiles)))
	}
	if serr := m.machine.Settle(healthy); serr != nil {
		m.logger.Warn("state transition rejected", zap.Error(serr))
	}
	return healthy
}

// Stop ends probing and marks the user offline.
func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.setPresence(ctx, false)
}

func (m *Monitor) setPresence(ctx context.Context, online bool) {
	id := m.identity.Current(ctx)
	_, err := messaging.Write(ctx, m.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.dir.UpdateOnlineStatus(ctx, id, online)
	})
	if err != nil {
		m.logger.Warn("presence update failed", zap.String("user_id", id), zap.Bool("online", online), zap.Error(err))
		return
	}
	m.logger.Info("presence updated", zap.String("user_id", id), zap.Bool("online", online))
}
