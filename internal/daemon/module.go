package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/involvex/warelay/internal/ai"
	"github.com/involvex/warelay/internal/api"
	"github.com/involvex/warelay/internal/bus"
	"github.com/involvex/warelay/internal/cache"
	"github.com/involvex/warelay/internal/config"
	"github.com/involvex/warelay/internal/gcontacts"
	"github.com/involvex/warelay/internal/hub"
	"github.com/involvex/warelay/internal/lifecycle"
	"github.com/involvex/warelay/internal/lock"
	"github.com/involvex/warelay/internal/logging"
	"github.com/involvex/warelay/internal/mirror"
	"github.com/involvex/warelay/internal/model"
	"github.com/involvex/warelay/internal/scheduler"
	"github.com/involvex/warelay/internal/session"
	"github.com/involvex/warelay/internal/status"
	"github.com/involvex/warelay/internal/store"
	"github.com/involvex/warelay/internal/wa"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	ListenAddr  string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideCache,
			provideAdapter,
			provideMirror,
			provideAIProvider,
			provideLifecycle,
			provideAutoReplier,
			provideScheduler,
			provideHub,
			provideTranslator,
			provideGoogleContacts,
			provideAPIService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.Load(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
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
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCache() *cache.Cache {
	return cache.New()
}

func provideAdapter(p Params, b *bus.Bus, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), p.SessionName, b, logger)
}

func provideMirror(c *cache.Cache, adapter *wa.Adapter, cfg *config.Config, logger *zap.Logger) *mirror.Service {
	return mirror.New(c, adapter, &cfg.Cache, logger)
}

func provideAIProvider(cfg *config.Config, logger *zap.Logger) *ai.Provider {
	return ai.NewProvider(ai.ProviderConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
	}, logger)
}

func provideLifecycle(c *cache.Cache, adapter *wa.Adapter, b *bus.Bus, logger *zap.Logger) *lifecycle.Manager {
	// The auto replier observes inbound messages but also sends through the
	// manager; it is attached in registerLifecycle once both exist.
	return lifecycle.New(c, adapter, b, nil, logger)
}

func provideAutoReplier(p *ai.Provider, lcm *lifecycle.Manager, m *mirror.Service, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *ai.AutoReplier {
	enabled := cfg.AI.AutoReply && p.Configured()
	return ai.NewAutoReplier(p, outboundSender{lcm}, chatHistory{m}, b, enabled, logger)
}

func provideScheduler(db *store.DB, lcm *lifecycle.Manager, cfg *config.Config, logger *zap.Logger) *scheduler.Scheduler {
	return scheduler.New(db, lcm, cfg.Scheduler.SweepInterval(), logger)
}

func provideHub(logger *zap.Logger) *hub.Hub {
	// The translator handles client requests but also broadcasts through the
	// hub; it is attached in registerLifecycle once both exist.
	return hub.New(nil, logger)
}

func provideTranslator(h *hub.Hub, machine *status.Machine, m *mirror.Service, p *ai.Provider, logger *zap.Logger) *hub.Translator {
	return hub.NewTranslator(h, machine, m, p, logger)
}

func provideGoogleContacts(logger *zap.Logger) *gcontacts.Client {
	return gcontacts.New(logger)
}

func provideAPIService(m *mirror.Service, lcm *lifecycle.Manager, sched *scheduler.Scheduler, c *cache.Cache, db *store.DB, gc *gcontacts.Client, p *ai.Provider, h *hub.Hub, logger *zap.Logger) *api.Service {
	return api.New(m, lcm, sched, c, db, gc, p, h, logger)
}

func registerLifecycle(fxlc fx.Lifecycle, srv *Server, lk *lock.Lock, adapter *wa.Adapter, lcm *lifecycle.Manager, replier *ai.AutoReplier, sched *scheduler.Scheduler, h *hub.Hub, tr *hub.Translator, machine *status.Machine, db *store.DB, b *bus.Bus, logger *zap.Logger) {
	var cancel context.CancelFunc

	fxlc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			lcm.SetObserver(replier)
			h.SetHandler(tr)

			// Register event handler for whatsmeow events.
			handler := wa.NewEventHandler(b, machine, adapter.Directory(), logger)
			adapter.RegisterEventHandler(handler.Handle)

			go h.Run(ctx)
			go tr.Run(ctx, b)
			go lcm.Run(ctx)
			sched.Start(ctx)

			// Start HTTP server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			// Transition state based on auth status.
			if adapter.IsLoggedIn() {
				_ = machine.Transition(status.Connecting)
				go func() {
					if err := adapter.Connect(); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
						_ = machine.Transition(status.Error)
					}
				}()
			} else {
				logger.Info("no credentials found, starting QR pairing")
				_ = machine.Transition(status.AuthRequired)
				go func() {
					if err := adapter.StartQRAuth(ctx); err != nil {
						logger.Error("QR pairing failed", zap.Error(err))
					}
				}()
			}

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			sched.Stop()
			replier.Close()
			adapter.Disconnect()
			srv.Stop(ctx)
			_ = db.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// outboundSender adapts the lifecycle manager to the auto replier's
// outbound interface.
type outboundSender struct {
	lcm *lifecycle.Manager
}

func (s outboundSender) SendText(ctx context.Context, chatID, body string) error {
	_, err := s.lcm.SendText(ctx, chatID, body)
	return err
}

// chatHistory adapts the mirror to the auto replier's history interface.
type chatHistory struct {
	mirror *mirror.Service
}

func (h chatHistory) History(ctx context.Context, chatID string) []model.MessageRecord {
	recs, err := h.mirror.Messages(ctx, chatID)
	if err != nil {
		return nil
	}
	return recs
}
