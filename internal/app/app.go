package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/corrudash/internal/common"
	"github.com/ternarybob/corrudash/internal/handlers"
	"github.com/ternarybob/corrudash/internal/interfaces"
	"github.com/ternarybob/corrudash/internal/logs"
	"github.com/ternarybob/corrudash/internal/services/dashboard"
	"github.com/ternarybob/corrudash/internal/services/events"
	"github.com/ternarybob/corrudash/internal/services/live"
	"github.com/ternarybob/corrudash/internal/services/scheduler"
	"github.com/ternarybob/corrudash/internal/services/snapshot"
	"github.com/ternarybob/corrudash/internal/services/status"
)

const startupRefreshTimeout = 30 * time.Second

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Event bus and log feed
	EventService interfaces.EventService
	LogBuffer    *logs.Buffer
	LogConsumer  *logs.Consumer // Log consumer for arbor context channel

	// Services
	StatusService  *status.Service
	SnapshotClient *snapshot.Client
	Subscriber     *live.Subscriber
	Dashboard      *dashboard.Service
	Scheduler      interfaces.SchedulerService // nil unless snapshot.auto_refresh is set

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	JobHandler      *handlers.JobHandler
	StatusHandler   *handlers.StatusHandler
	WSHandler       *handlers.WebSocketHandler
	EventSubscriber *handlers.EventSubscriber

	ctx       context.Context
	cancelCtx context.CancelFunc
}

// New initializes the application. Nothing talks to the job backend until
// Start is called.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	// Log consumer for arbor context channel; feeds the buffer and the websocket log feed
	app.LogBuffer = logs.NewBuffer(logs.DefaultBufferSize)
	app.LogConsumer = logs.NewConsumer(
		app.LogBuffer,
		app.EventService,
		app.Logger,
		cfg.Logging.MinEventLevel,
		cfg.WebSocket.ExcludePatterns,
	)
	if err := app.LogConsumer.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start log consumer: %w", err)
	}
	logBatchChannel := app.LogConsumer.GetChannel()
	app.Logger.SetChannel("context", logBatchChannel)

	app.Logger.Debug().
		Int("channel_capacity", cap(logBatchChannel)).
		Msg("Log consumer initialized with Arbor context channel")

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("snapshot_url", cfg.Snapshot.BaseURL).
		Str("live_url", cfg.Live.URL).
		Bool("auto_refresh", cfg.Snapshot.AutoRefresh).
		Bool("auto_connect", cfg.Live.AutoConnect).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initServices() error {
	cfg := a.Config

	a.StatusService = status.NewService(a.EventService, cfg.Live.MaxReconnectAttempts, a.Logger)
	a.SnapshotClient = snapshot.NewClient(&cfg.Snapshot, a.Logger)

	a.Subscriber = live.NewSubscriber(liveConfig(&cfg.Live), a.Logger)

	a.Dashboard = dashboard.NewService(
		a.SnapshotClient,
		a.SnapshotClient,
		a.Subscriber,
		a.StatusService,
		a.EventService,
		dashboard.Options{
			MinRefreshInterval: common.ParseDurationOr(cfg.Snapshot.MinRefreshInterval, 2*time.Second),
			TrendBucket:        common.ParseDurationOr(cfg.Projections.TrendBucket, time.Hour),
		},
		a.Logger,
	)

	// Subscriber callbacks run one at a time on the subscriber's goroutines
	a.Subscriber.OnUpdate(a.Dashboard.HandleLiveUpdate)
	a.Subscriber.OnStateChange(a.Dashboard.HandleLiveTransition)

	if cfg.Snapshot.AutoRefresh {
		a.Scheduler = scheduler.NewService(
			func(ctx context.Context) error {
				return a.Dashboard.Refresh(ctx, dashboard.TriggerSchedule)
			},
			common.ParseDurationOr(cfg.Snapshot.RequestTimeout, 15*time.Second)*2,
			a.Logger,
		)
	}

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.SnapshotClient, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.Dashboard, a.Logger)

	var schedule handlers.ScheduleProvider
	if a.Scheduler != nil {
		schedule = a.Scheduler
	}
	a.StatusHandler = handlers.NewStatusHandler(a.StatusService, schedule, a.Dashboard, a.Logger)

	a.WSHandler = handlers.NewWebSocketHandler(a.Dashboard, a.StatusService, a.LogBuffer, a.Logger)
	a.EventSubscriber = handlers.NewEventSubscriber(a.WSHandler, a.EventService, a.Logger, &a.Config.WebSocket)
}

// Start loads the first snapshot, connects the live stream and starts the
// refresh schedule. A failed first fetch is logged, not fatal: the dashboard
// serves an empty view until a later refresh succeeds.
func (a *App) Start() error {
	a.EventSubscriber.Start(a.ctx)

	refreshCtx, cancel := context.WithTimeout(a.ctx, startupRefreshTimeout)
	defer cancel()
	if err := a.Dashboard.Refresh(refreshCtx, dashboard.TriggerStartup); err != nil {
		a.Logger.Warn().Err(err).Msg("Initial snapshot fetch failed")
	}

	if a.Config.Live.AutoConnect {
		a.Dashboard.Connect()
	}

	if a.Scheduler != nil {
		if err := a.Scheduler.Start(a.Config.Snapshot.RefreshSchedule); err != nil {
			return fmt.Errorf("failed to start refresh scheduler: %w", err)
		}
	}

	return nil
}

// Close stops background work in reverse order of startup
func (a *App) Close() error {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.Dashboard != nil {
		a.Dashboard.Disconnect()
	}

	// Cancel background goroutines; the job feed flushes once more on the way out
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.LogConsumer != nil {
		if err := a.LogConsumer.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop log consumer")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	return nil
}

func liveConfig(cfg *common.LiveConfig) live.Config {
	defaults := live.DefaultConfig()
	return live.Config{
		URL:                  cfg.URL,
		Topic:                cfg.Topic,
		Host:                 cfg.Host,
		ReconnectInterval:    common.ParseDurationOr(cfg.ReconnectInterval, defaults.ReconnectInterval),
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		HeartbeatOutgoing:    common.ParseDurationOr(cfg.HeartbeatOutgoing, defaults.HeartbeatOutgoing),
		HeartbeatIncoming:    common.ParseDurationOr(cfg.HeartbeatIncoming, defaults.HeartbeatIncoming),
		HeartbeatTolerance:   cfg.HeartbeatTolerance,
		HandshakeTimeout:     common.ParseDurationOr(cfg.HandshakeTimeout, defaults.HandshakeTimeout),
	}
}
