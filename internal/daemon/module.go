package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/api"
	"github.com/matheus3301/detox/internal/assistant"
	"github.com/matheus3301/detox/internal/bus"
	"github.com/matheus3301/detox/internal/config"
	"github.com/matheus3301/detox/internal/domain"
	"github.com/matheus3301/detox/internal/lock"
	"github.com/matheus3301/detox/internal/logging"
	"github.com/matheus3301/detox/internal/messaging"
	"github.com/matheus3301/detox/internal/posts"
	"github.com/matheus3301/detox/internal/push"
	"github.com/matheus3301/detox/internal/session"
	"github.com/matheus3301/detox/internal/status"
	"github.com/matheus3301/detox/internal/store"
	"github.com/matheus3301/detox/internal/supabase"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Debug       bool
	// Config replaces config.toml and the environment when set.
	Config     *config.Config
	SocketPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideDB,
			provideBackend,
			providePosts,
			providePolicy,
			provideIdentity,
			provideContacts,
			provideSession,
			provideHub,
			provideAssistant,
			provideMessagingService,
			NewServer,
			NewHTTPServer,
			NewMonitor,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, p.Config.Validate()
	}
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(session.EnvPath(), ".env"); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return cfg, cfg.Validate()
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, p.Debug)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), lock.Holder{HTTPAddr: cfg.HTTP.Addr})
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideDB opens and migrates the session database. It takes the session
// lock so nothing is opened before the lock is held.
func provideDB(lc fx.Lifecycle, _ *lock.Lock, p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.LocalDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	lc.Append(fx.StopHook(db.Close))
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

// provideBackend selects the message store and directory. The local backend
// is seeded with the fallback data set on first start.
func provideBackend(lc fx.Lifecycle, db *store.DB, cfg *config.Config, b *bus.Bus, logger *zap.Logger) (domain.Backend, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		return openLocal(db, cfg, b, logger)
	case config.BackendSupabase:
		c := supabase.NewClient(supabaseOptions(cfg), logger)
		lc.Append(fx.StopHook(c.Close))
		logger.Info("using supabase backend", zap.String("url", cfg.Supabase.URL))
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func supabaseOptions(cfg *config.Config) supabase.Options {
	return supabase.Options{
		URL:          cfg.Supabase.URL,
		AnonKey:      cfg.Supabase.AnonKey,
		AccessToken:  cfg.Supabase.AccessToken,
		SendClientID: cfg.Supabase.SendClientID,
		Timeout:      cfg.Calls.Timeout.Duration,
		Heartbeat:    cfg.Supabase.Heartbeat.Duration,
	}
}

func openLocal(db *store.DB, cfg *config.Config, b *bus.Bus, logger *zap.Logger) (domain.Backend, error) {
	userID := cfg.UserID
	if userID == "" {
		userID = messaging.DevUserID
	}
	local := store.NewLocal(db, b, userID, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := local.Seed(ctx, messaging.FallbackUsers(), messaging.FallbackMessages()); err != nil {
		return nil, fmt.Errorf("seed local backend: %w", err)
	}
	return local, nil
}

// providePosts serves posts from the session database whatever the backend.
func providePosts(db *store.DB, logger *zap.Logger) *posts.Service {
	return posts.NewService(db, nil, logger.Named("posts"))
}

func providePolicy(cfg *config.Config) messaging.Policy {
	return messaging.Policy{
		Timeout: cfg.Calls.Timeout.Duration,
		Retries: cfg.Calls.Retries,
		Backoff: cfg.Calls.Backoff.Duration,
	}
}

func provideIdentity(backend domain.Backend, policy messaging.Policy, cfg *config.Config, logger *zap.Logger) *messaging.IdentityResolver {
	return messaging.NewIdentityResolver(backend, backend, policy, cfg.UserID, logger.Named("identity"))
}

func provideContacts(backend domain.Backend, identity *messaging.IdentityResolver, policy messaging.Policy, b *bus.Bus, logger *zap.Logger) *messaging.ContactLoader {
	return messaging.NewContactLoader(backend, identity, policy, b, logger.Named("contacts"))
}

func provideSession(backend domain.Backend, identity *messaging.IdentityResolver, contacts *messaging.ContactLoader, policy messaging.Policy, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *messaging.Session {
	return messaging.NewSession(backend, identity, b, logger.Named("conversation"), messaging.Options{
		Policy:         policy,
		MatchTolerance: cfg.Calls.MatchTolerance.Duration,
		Contacts:       contacts,
	})
}

func provideHub(cfg *config.Config, logger *zap.Logger) *push.Hub {
	return push.NewHub(cfg.HTTP.CORSOrigins, logger.Named("push"))
}

func provideAssistant(cfg *config.Config, logger *zap.Logger) *assistant.Proxy {
	log := logger.Named("assistant")
	var gen assistant.Generator
	if cfg.Assistant.APIKey == "" {
		log.Info("no assistant api key, serving canned replies")
	} else {
		g, err := assistant.NewGemini(context.Background(), cfg.Assistant.APIKey, cfg.Assistant.Model)
		if err != nil {
			log.Warn("assistant unavailable, serving canned replies", zap.Error(err))
		} else {
			gen = g
		}
	}
	return assistant.NewProxy(gen, cfg.Assistant.Timeout.Duration, log)
}

func provideMessagingService(p Params, cfg *config.Config, m *status.Machine, identity *messaging.IdentityResolver, contacts *messaging.ContactLoader, sess *messaging.Session, hub *push.Hub, b *bus.Bus) *api.MessagingService {
	return api.NewMessagingService(api.Deps{
		SessionName: p.SessionName,
		BackendName: cfg.Backend,
		HTTPAddr:    cfg.HTTP.Addr,
		Machine:     m,
		Identity:    identity,
		Contacts:    contacts,
		Session:     sess,
		Hub:         hub,
		Bus:         b,
	})
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	httpSrv *HTTPServer,
	monitor *Monitor,
	lk *lock.Lock,
	backend domain.Backend,
	sess *messaging.Session,
	hub *push.Hub,
	machine *status.Machine,
	logger *zap.Logger,
) {
	followCtx, stopFollow := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := httpSrv.Listen(); err != nil {
				return err
			}
			if err := lk.Record(lock.Holder{HTTPAddr: httpSrv.Addr()}); err != nil {
				logger.Warn("recording http address in lock", zap.Error(err))
			}
			go func() {
				if err := httpSrv.Serve(); err != nil {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			_ = machine.Transition(status.Connecting)
			if err := hub.Follow(followCtx, backend); err != nil {
				logger.Warn("push channel not following the store, writes broadcast directly", zap.Error(err))
			}
			monitor.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			monitor.Stop(ctx)
			sess.Shutdown()
			stopFollow()
			if err := hub.Close(); err != nil {
				logger.Warn("closing push channel", zap.Error(err))
			}
			if err := httpSrv.Stop(ctx); err != nil {
				logger.Warn("HTTP server shutdown", zap.Error(err))
			}
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
