package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	config "github.com/kaikybrofc/omnizap-system-sub008/internal/config"
	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	sharedEvents "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/events"
	opsHttp "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/inbound/http"
	sharedBus "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/bus"
	sharedCache "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/cache"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/clock"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/migrations"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/postgres"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/db/sqlite"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/featuregate"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/platform/metrics"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/publisher"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/relayer"
	stickerApp "github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/application"
	stickerDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/domain"
	stickerHttp "github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/infra/inbound/http"
	stickerPostgres "github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/infra/outbound/db/postgre"
	stickerSQLite "github.com/kaikybrofc/omnizap-system-sub008/internal/sticker/infra/outbound/db/sqlite"
	taskDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/task/domain"
	taskEvents "github.com/kaikybrofc/omnizap-system-sub008/internal/task/infra/inbound/events"
	taskHttp "github.com/kaikybrofc/omnizap-system-sub008/internal/task/infra/inbound/http"
	taskPostgres "github.com/kaikybrofc/omnizap-system-sub008/internal/task/infra/outbound/db/postgre"
	taskSQLite "github.com/kaikybrofc/omnizap-system-sub008/internal/task/infra/outbound/db/sqlite"
	"github.com/kaikybrofc/omnizap-system-sub008/pkg/logger"
)

const metricsNamespace = "omnizap"

// ---------------- Main ----------------
func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.LogLevel) // inicializa zap
	log := logger.Logger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	// ---------------- DB ----------------
	db, err := openDB(ctx, cfg)
	if err != nil {
		log.Fatal("failed to open database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := migrations.Up(db, cfg.DBDriver); err != nil {
			// Sin tablas el outbox degrada a "no provisionado"; el servicio sigue arriba.
			log.Error("❌ Migraciones fallidas", zap.Error(err))
		} else {
			log.Info("✅ Migraciones aplicadas", zap.String("driver", cfg.DBDriver))
		}
	}

	var (
		outboxRepo  sharedDomain.OutboxRepository
		taskQueue   taskDomain.TaskQueue
		catalogRepo stickerDomain.CatalogRepository
	)
	switch cfg.DBDriver {
	case migrations.DriverPostgres:
		outboxRepo = postgres.NewOutboxRepoPostgres(db, clk)
		taskQueue = taskPostgres.NewTaskQueuePostgres(db, clk)
		catalogRepo = stickerPostgres.NewCatalogRepoPostgres(db)
	default:
		outboxRepo = sqlite.NewOutboxRepoSQLite(db, clk)
		taskQueue = taskSQLite.NewTaskQueueSQLite(db, clk)
		catalogRepo = stickerSQLite.NewCatalogRepoSQLite(db)
	}

	// ---------------- Redis: cache y feature flags ----------------
	var (
		cacheInstance sharedCache.Cache
		rollouts      featuregate.RolloutSource = featuregate.StaticSource(cfg.FeatureFlags)
	)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("⚠️ Redis no disponible, cache en memoria y flags del entorno", zap.Error(err))
		mem := sharedCache.NewInMemoryCache(cfg.SnapshotTTL, 3*cfg.SnapshotTTL)
		defer mem.Stop()
		cacheInstance = mem
	} else {
		cacheInstance = sharedCache.NewRedisCache(rdb, metricsNamespace+":", cfg.SnapshotTTL)
		rollouts = featuregate.NewRedisSource(rdb, featuregate.DefaultRedisHash, rollouts)
		log.Info("✅ Redis conectado, cache y feature flags habilitados")
	}
	gate := featuregate.NewGate(rollouts, log)

	// ---------------- Métricas ----------------
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sinks := metrics.MultiSink{metrics.NewPrometheusSink(registry, metricsNamespace)}

	historyCtx, stopHistory := context.WithCancel(context.Background())
	historyDone := make(chan struct{})
	if cfg.ClickHouseAddr != "" {
		writer, err := metrics.NewClickHouseWriter(cfg.ClickHouseAddr, cfg.ClickHouseDB)
		if err != nil {
			log.Warn("⚠️ ClickHouse no disponible, sin histórico de gauges", zap.Error(err))
			close(historyDone)
		} else {
			defer writer.Close()
			if err := writer.EnsureSchema(ctx); err != nil {
				log.Warn("⚠️ No se pudo crear gauge_samples", zap.Error(err))
			}
			history := metrics.NewHistorySink(writer, 15*time.Second, 1000, log)
			sinks = append(sinks, history)
			go func() {
				defer close(historyDone)
				history.Start(historyCtx)
			}()
			log.Info("📈 Histórico de gauges en ClickHouse", zap.String("addr", cfg.ClickHouseAddr))
		}
	} else {
		close(historyDone)
	}

	// ---------------- Events ---------------
	var taskBus sharedBus.EventBus
	taskConsumer := taskEvents.NewTaskConsumer(taskQueue, sinks, log)
	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})

	if cfg.UseKafka {
		log.Info("🚀 Usando Kafka como bus de avisos de tareas", zap.String("topic", cfg.KafkaTaskTopic))

		writer := sharedEvents.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTaskTopic)
		defer writer.Close()
		taskBus = sharedEvents.NewKafkaPublisher(writer, log)

		reader := sharedEvents.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTaskTopic, "omnizap-task-notifications")
		defer reader.Close()
		done := sharedEvents.NewConsumerAdapter(reader, taskConsumer, log).Start(consumerCtx)
		go func() {
			<-done
			close(consumerDone)
		}()
	} else {
		log.Info("⚡️ Usando bus de avisos en memoria (canales de Go)")

		inMemoryBus := sharedEvents.NewInMemoryEventBus(cfg.KafkaTaskTopic)
		taskBus = inMemoryBus
		taskEvents.BackgroundConsumerChan(consumerCtx, inMemoryBus.Subscribe(64), taskConsumer)
		close(consumerDone)
	}

	// --------------- Servicios --------------
	events := publisher.NewPublisher(outboxRepo, gate, log)
	catalog := stickerApp.NewCatalogService(catalogRepo, events, clk, log)
	snapshots := stickerApp.NewSnapshotService(catalogRepo, cacheInstance, cfg.SnapshotTTL, clk, log)
	refresher := stickerApp.NewSnapshotRefresher(snapshots, cfg.SnapshotDebounce, log)

	// ------------ Consumer del outbox ------------
	dispatcher := relayer.NewDispatcher(taskQueue, catalog, refresher, taskBus, log)
	scheduler := relayer.NewScheduler(outboxRepo, dispatcher, gate, sinks, relayer.Config{
		Enabled:      cfg.Consumer.Enabled,
		StartupDelay: cfg.Consumer.StartupDelay,
		PollInterval: cfg.Consumer.PollInterval,
		RetryDelay:   cfg.Consumer.RetryDelay,
		CohortKey:    cfg.Consumer.CohortKey,
		CycleTimeout: cfg.Consumer.CycleTimeout,
	}, log)
	if cfg.Consumer.Enabled {
		scheduler.Start(ctx)
	} else {
		log.Info("⏸️ Consumer de eventos de dominio deshabilitado por configuración")
	}

	// ---------------- HTTP ----------------
	router := gin.Default()
	stickerHttp.RegisterStickerRoutes(router, stickerHttp.NewStickerHandler(catalog, snapshots, log))
	taskHttp.RegisterTaskRoutes(router, taskHttp.NewTaskHandler(taskQueue, log))
	opsHttp.RegisterOpsRoutes(router, opsHttp.NewOpsHandler(outboxRepo, taskQueue, scheduler, db, registry))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("🚀 Server running", zap.String("url", "http://localhost:"+cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Señal recibida, apagando...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("⚠️ Shutdown HTTP incompleto", zap.Error(err))
	}

	// El ciclo en curso termina antes de cerrar nada de lo que usa.
	scheduler.Stop()
	refresher.Close()
	stopConsumers()
	<-consumerDone
	stopHistory()
	<-historyDone

	log.Info("👋 omnizap detenido")
}

// openDB abre la base según DB_DRIVER.
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	switch cfg.DBDriver {
	case migrations.DriverPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL)
	case migrations.DriverSQLite:
		return sqlite.Open(cfg.SQLitePath)
	default:
		return nil, errors.New("unsupported DB_DRIVER " + cfg.DBDriver)
	}
}
