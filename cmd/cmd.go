package cmd

import (
	"context"
	"errors"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fabex3d/fanbridge/internal/pkg/cache"
	"github.com/fabex3d/fanbridge/internal/pkg/cloud"
	"github.com/fabex3d/fanbridge/internal/pkg/config"
	"github.com/fabex3d/fanbridge/internal/pkg/contxt"
	"github.com/fabex3d/fanbridge/internal/pkg/dispatcher"
	"github.com/fabex3d/fanbridge/internal/pkg/model"
	"github.com/fabex3d/fanbridge/internal/pkg/reconciler"
	"github.com/fabex3d/fanbridge/internal/pkg/relay"
	"github.com/fabex3d/fanbridge/internal/pkg/secrets"
	"github.com/fabex3d/fanbridge/internal/pkg/server"
	"github.com/fabex3d/fanbridge/internal/pkg/token"
	"github.com/fabex3d/fanbridge/internal/pkg/udp"
	"github.com/fabex3d/fanbridge/pkg/broadcast"
)

var errCron = errors.New("cron error")

const refreshTimeout = 60 * time.Second

// BridgeCommand resolves configuration (env defaults, flag overrides) and
// runs the bridge.
func BridgeCommand(ctx *cli.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	if v := ctx.String("cloud-host"); v != "" {
		cfg.CloudCfg.Host = v
	}
	if v := ctx.Int("udp-port"); v != 0 {
		cfg.UDPCfg.Port = v
	}
	if v := ctx.String("mqtt-host"); v != "" {
		cfg.MqttCfg.Host = v
	}
	if v := ctx.String("mqtt-user"); v != "" {
		cfg.MqttCfg.Username = v
	}
	if v := ctx.String("mqtt-pass"); v != "" {
		cfg.MqttCfg.Password = v
	}
	if v := ctx.String("feed-addr"); v != "" {
		cfg.FeedCfg.Addr = v
	}
	cfg.DatabaseURL = ctx.String("database-url")
	cfg.MigrationsFolder = ctx.String("migrations-folder")
	cfg.RefreshSchedule = ctx.String("refresh-schedule")
	cfg.Debounce = ctx.Duration("debounce")
	cfg.LogLevel = ctx.String("log-level")

	return run(ctx.Context, cfg, credentialFlags(ctx))
}

// credentialFlags picks up optionally supplied credentials so a fresh install
// can be bootstrapped without touching the database by hand.
func credentialFlags(ctx *cli.Context) map[string]string {
	creds := map[string]string{}
	if v := ctx.String("api-key"); v != "" {
		creds[secrets.KeyAPIKey] = v
	}
	if v := ctx.String("auth-token"); v != "" {
		creds[secrets.KeyAuthToken] = v
	}
	return creds
}

func run(ctx context.Context, cfg *config.Config, creds map[string]string) error {
	errorChan := make(chan error, 1000)
	var err error

	eg, ctx := errgroup.WithContext(ctx)
	logCfg := zap.NewProductionConfig()

	logCfg.Level, err = zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	logger := zap.Must(logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)))
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	if err := cache.Migrate(cfg.DatabaseURL, cfg.MigrationsFolder); err != nil {
		return err
	}

	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	secretStore := secrets.New(conn)
	for key, value := range creds {
		if err := secretStore.Set(ctx, key, value); err != nil {
			return err
		}
	}

	deviceCache := cache.New(conn)
	cloudClient := cloud.New(cfg.CloudCfg, secretStore)
	guard := token.NewGuard(secretStore, cloudClient)
	rec := reconciler.New(cloudClient, deviceCache)

	notices := broadcast.New[string]()
	disp := dispatcher.New(cloudClient, rec, guard, notices, cfg.Debounce)
	defer disp.Close()

	feed := server.New(cfg.FeedCfg, rec, disp)
	rec.AddSink(feed)

	if cfg.MqttCfg.Host != "" {
		opts := paho_mqtt.NewClientOptions().
			AddBroker(cfg.MqttCfg.Host).
			SetUsername(cfg.MqttCfg.Username).
			SetPassword(cfg.MqttCfg.Password).
			SetClientID("fanbridge").
			SetAutoReconnect(true)
		mqttRelay := relay.New(paho_mqtt.NewClient(opts), cfg.MqttCfg)
		if err := mqttRelay.Connect(); err != nil {
			return err
		}
		if err := mqttRelay.Subscribe(rec, disp); err != nil {
			return err
		}
		rec.AddSink(mqttRelay)
	}

	statusFeed := broadcast.New[model.FanState]()
	listener := udp.New(cfg.UDPCfg, statusFeed)

	// Startup order: serve cached state first, then freshen credentials and
	// pull the live list. A failed first refresh is not fatal; the cron
	// schedule retries.
	if err := rec.Seed(ctx); err != nil {
		return err
	}
	if err := guard.EnsureValid(ctx); err != nil {
		logger.Warn("initial token refresh failed", zap.Error(err))
	}
	if err := rec.RefreshAll(ctx); err != nil {
		logger.Warn("initial refresh failed", zap.Error(err))
	}

	if err := listener.Start(); err != nil {
		return err
	}
	defer listener.Stop()

	eg.Go(func() error {
		return rec.Run(ctx, statusFeed)
	})

	eg.Go(func() error {
		return cronRefresh(ctx, rec, guard, cfg.RefreshSchedule, errorChan)
	})

	eg.Go(func() error {
		return feed.Run(ctx, notices)
	})

	eg.Go(func() error {
		// handle any async errors from services
		for {
			select {
			case err := <-errorChan:
				if errors.Is(err, errCron) {
					logger.Error("cron error", zap.Error(err))
					return err
				}
				logger.Error("async error", zap.Error(err))
			case <-ctx.Done():
				logger.Info("context done")
				return ctx.Err()
			}
		}
	})

	return eg.Wait()
}

// cronRefresh keeps the device list converging with the cloud on a schedule.
func cronRefresh(ctx context.Context, rec *reconciler.Reconciler, guard *token.Guard, schedule string, errChan chan error) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		refreshCtx := contxt.NewContext(refreshTimeout)
		if err := guard.EnsureValid(refreshCtx); err != nil {
			zap.L().Warn("scheduled token refresh failed", zap.Error(err))
		}
		if err := rec.RefreshAll(refreshCtx); err != nil {
			zap.L().Error("scheduled refresh failed", zap.Error(err))
			errChan <- err
			return
		}
		zap.L().Debug("scheduled refresh applied")
	}); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}
