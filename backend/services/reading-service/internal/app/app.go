package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libredis "sensorhub/backend/libs/redis"
	"sensorhub/backend/services/reading-service/internal/cache"
	"sensorhub/backend/services/reading-service/internal/config"
	httpserver "sensorhub/backend/services/reading-service/internal/http"
	"sensorhub/backend/services/reading-service/internal/http/handlers"
	"sensorhub/backend/services/reading-service/internal/metrics"
	"sensorhub/backend/services/reading-service/internal/mqtt"
	"sensorhub/backend/services/reading-service/internal/redisstore"
	"sensorhub/backend/services/reading-service/internal/schema"
	"sensorhub/backend/services/reading-service/internal/service"
	"sensorhub/backend/services/reading-service/internal/storage"
	"sensorhub/backend/services/reading-service/internal/ws"
)

const wsWriteTimeout = 10 * time.Second

// App wires reading service dependencies.
type App struct {
	server  *httpserver.Server
	gateway *storage.Gateway
	hub     *ws.Hub
	redis   *goredis.Client
	mqtt    *mqtt.Publisher
	logger  *zap.Logger
}

// New constructs application components. Schema problems are fatal; an unreachable database
// or optional sink is only logged.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	desc, params, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Database.DSN != "" {
		params.DSN = cfg.Database.DSN
	}
	if err := checkReadingsTable(desc, cfg.Schema); err != nil {
		return nil, err
	}

	a := &App{logger: logger}

	a.gateway = storage.NewGateway(desc, params, nil, logger)
	a.provision(ctx)

	latest := cache.NewLatest()
	a.hub = ws.NewHub()
	publishers := []service.Publisher{a.hub}

	if cfg.Redis.Addr != "" {
		if store := a.initRedis(ctx, cfg.Redis, latest); store != nil {
			publishers = append(publishers, store)
		}
	}
	if cfg.MQTT.Broker != "" {
		client, err := mqtt.Connect(cfg.MQTT.Broker, cfg.MQTT.ClientID, logger)
		if err != nil {
			logger.Warn("mqtt publishing disabled", zap.Error(err))
		} else {
			a.mqtt = mqtt.NewPublisher(client, cfg.MQTT.Topic, 0)
			publishers = append(publishers, a.mqtt)
		}
	}

	ingestion := service.NewIngestionService(latest, a.gateway, service.Options{
		APIKey:          cfg.Auth.APIKey,
		Table:           cfg.Schema.ReadingsTable,
		TimestampColumn: cfg.Schema.TimestampColumn,
		Publishers:      publishers,
	}, logger)

	routes := httpserver.Routes{
		Ingest:  handlers.NewIngestHandler(ingestion, logger),
		Latest:  handlers.NewLatestHandler(ingestion),
		Live:    ws.NewServer(a.hub, ingestion, wsWriteTimeout, logger).HandleWS,
		Health:  handlers.NewHealthHandler(a.gateway),
		Metrics: promhttp.Handler(),
	}

	router := httpserver.NewRouter(routes)
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger)
	return a, nil
}

// Run starts serving HTTP requests.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.gateway.Disconnect(ctx); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}

func (a *App) provision(ctx context.Context) {
	err := a.gateway.ProvisionSchema(ctx)
	var schemaErr *storage.SchemaError
	switch {
	case err == nil:
		a.logger.Info("schema provisioned")
	case errors.As(err, &schemaErr):
		metrics.SchemaTableFailures.Add(float64(len(schemaErr.Failed)))
		a.logger.Error("schema partially provisioned", zap.Strings("failed_tables", schemaErr.Failed), zap.Error(err))
	default:
		a.logger.Warn("database unavailable at startup, will reconnect on demand", zap.Error(err))
	}
}

func (a *App) initRedis(ctx context.Context, cfg config.RedisConfig, latest *cache.Latest) *redisstore.LatestStore {
	client, err := libredis.NewRedisClient(ctx, cfg.Addr, cfg.Password)
	if err != nil {
		a.logger.Warn("redis mirror disabled", zap.Error(err))
		return nil
	}
	a.redis = client

	store := redisstore.NewLatestStore(client, cfg.TTL)
	snapshot, ok, err := store.Load(ctx)
	switch {
	case err != nil:
		a.logger.Warn("failed to load mirrored snapshot", zap.Error(err))
	case ok:
		latest.Restore(snapshot)
		a.logger.Info("restored latest snapshot from redis")
	}
	return store
}

func checkReadingsTable(desc *schema.Descriptor, cfg config.SchemaConfig) error {
	table, ok := desc.Table(cfg.ReadingsTable)
	if !ok {
		return fmt.Errorf("app: readings table %q is not declared in %s: %w", cfg.ReadingsTable, cfg.Path, schema.ErrConfig)
	}
	required := []string{"temperature", "humidity"}
	if cfg.TimestampColumn != "" {
		required = append(required, cfg.TimestampColumn)
	}
	for _, col := range required {
		if !table.HasColumn(col) {
			return fmt.Errorf("app: readings table %q lacks column %q: %w", cfg.ReadingsTable, col, schema.ErrConfig)
		}
	}
	return nil
}
