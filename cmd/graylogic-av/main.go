// Gray Logic AV - entertainment device bridge
//
// This is the main entry point for the Gray Logic AV bridge. It polls
// Lightpack ambient lights and Enigma2 receivers, publishes their state on
// the Gray Logic MQTT bus and runs commands sent back to them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-av/internal/api"
	"github.com/nerrad567/gray-logic-av/internal/bridge"
	"github.com/nerrad567/gray-logic-av/internal/devices/enigma2"
	"github.com/nerrad567/gray-logic-av/internal/devices/lightpack"
	"github.com/nerrad567/gray-logic-av/internal/entity"
	"github.com/nerrad567/gray-logic-av/internal/history"
	"github.com/nerrad567/gray-logic-av/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-av/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-av/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-av/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-av/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-av/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "GRAYLOGIC_AV_CONFIG"
	hoursPerDay       = 24
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the bridge together and blocks until ctx is cancelled.
// Deferred closes run in reverse start order.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic AV",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"lightpack_devices", len(cfg.Devices.Lightpack),
		"enigma2_devices", len(cfg.Devices.Enigma2),
	)

	// State history (optional)
	var historyRepo *history.SQLiteRepository
	if cfg.Database.Enabled {
		db, dbErr := openHistory(ctx, cfg.Database, log)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		historyRepo = history.NewSQLiteRepository(db.DB)
		pruneHistory(ctx, historyRepo, cfg.Database.HistoryRetentionDays, log)
	} else {
		log.Info("state history disabled")
	}

	// MQTT, with the offline status registered as Last Will
	lwt, err := bridge.LWTPayload()
	if err != nil {
		return fmt.Errorf("building LWT payload: %w", err)
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, &mqtt.Message{
		Topic:    bridge.HealthTopic(),
		Payload:  lwt,
		QoS:      1,
		Retained: true,
	})
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	entities, err := buildEntities(cfg, log)
	if err != nil {
		return err
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	opts := bridge.Options{
		MQTT:           mqttClient,
		Entities:       entities,
		Logger:         log.Component("bridge"),
		Broadcaster:    hub,
		PollInterval:   cfg.GetPollInterval(),
		CommandTimeout: bridge.DefaultCommandTimeout,
		Version:        version,
	}
	// Leave the interfaces nil rather than holding a typed nil.
	if influxClient != nil {
		opts.Telemetry = influxClient
	}
	if historyRepo != nil {
		opts.History = historyRepo
	}

	avBridge, err := bridge.New(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := avBridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		avBridge.Stop()
	}()
	log.Info("bridge started", "entities", len(entities))

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log.Component("api"),
			Entities: avBridge,
			Hub:      hub,
			Version:  version,
		}
		if historyRepo != nil {
			deps.History = historyRepo
		}
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := server.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath returns GRAYLOGIC_AV_CONFIG when set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// openHistory opens the history database and applies migrations.
func openHistory(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	schema, err := db.SchemaVersion(ctx)
	if err != nil {
		db.Close() //nolint:errcheck // error path
		return nil, err
	}
	log.Info("database ready", "path", db.Path(), "schema_version", schema)
	return db, nil
}

// pruneHistory drops entries older than the retention window. Failure is
// logged and does not stop startup.
func pruneHistory(ctx context.Context, repo *history.SQLiteRepository, days int, log *logging.Logger) {
	if days <= 0 {
		return
	}
	deleted, err := repo.Prune(ctx, time.Duration(days)*hoursPerDay*time.Hour)
	if err != nil {
		log.Warn("state history prune failed", "error", err)
		return
	}
	log.Info("state history pruned", "deleted", deleted, "retention_days", days)
}

// buildEntities creates one adapter per configured device, each with its
// own scoped logger.
func buildEntities(cfg *config.Config, log *logging.Logger) ([]entity.Entity, error) {
	ioTimeout := cfg.GetIOTimeout()
	out := make([]entity.Entity, 0, len(cfg.Devices.Lightpack)+len(cfg.Devices.Enigma2))

	for _, d := range cfg.Devices.Lightpack {
		light, err := lightpack.NewLight(lightpack.Options{
			ID:        d.ID,
			Name:      d.Name,
			Host:      d.Host,
			Port:      d.Port,
			APIKey:    d.APIKey,
			IOTimeout: ioTimeout,
			Logger:    log.With("entity_id", d.ID, "protocol", lightpack.Protocol),
		})
		if err != nil {
			return nil, fmt.Errorf("creating lightpack %q: %w", d.ID, err)
		}
		out = append(out, light)
	}

	for _, d := range cfg.Devices.Enigma2 {
		timeout := ioTimeout
		if d.Timeout > 0 {
			timeout = time.Duration(d.Timeout) * time.Second
		}
		player, err := enigma2.NewPlayer(enigma2.Options{
			ID:      d.ID,
			Name:    d.Name,
			Host:    d.Host,
			Port:    d.Port,
			Timeout: timeout,
			Logger:  log.With("entity_id", d.ID, "protocol", enigma2.Protocol),
		})
		if err != nil {
			return nil, fmt.Errorf("creating enigma2 %q: %w", d.ID, err)
		}
		out = append(out, player)
	}

	return out, nil
}
