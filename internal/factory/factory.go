package factory

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/quizbattle/quizbattle-go/internal/api"
	"github.com/quizbattle/quizbattle-go/internal/config"
	"github.com/quizbattle/quizbattle-go/internal/dependencies/clock"
	"github.com/quizbattle/quizbattle-go/internal/dependencies/random"
	"github.com/quizbattle/quizbattle-go/internal/dependencies/scheduler"
	"github.com/quizbattle/quizbattle-go/internal/persist"
	"github.com/quizbattle/quizbattle-go/internal/repository"
	"github.com/quizbattle/quizbattle-go/internal/services/battle"
	"github.com/quizbattle/quizbattle-go/internal/services/question"
	"github.com/quizbattle/quizbattle-go/internal/services/room"
	"github.com/quizbattle/quizbattle-go/internal/services/scoring"
	"github.com/quizbattle/quizbattle-go/internal/services/session"
	"github.com/quizbattle/quizbattle-go/internal/store"
	"github.com/quizbattle/quizbattle-go/internal/store/memory"
	redisstore "github.com/quizbattle/quizbattle-go/internal/store/redis"
	"github.com/quizbattle/quizbattle-go/internal/ws"
)

// App holds the wired components of a gameplay server process
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     store.Store
	Sessions  *session.Service
	Rooms     *room.Service
	Questions *question.Service
	Battle    *battle.Coordinator
	Hubs      *ws.HubManager
	Pipeline  *persist.Pipeline
	Server    *api.Server
}

// NewApp wires a gameplay server from configuration
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	st, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}

	clk := clock.New()
	rnd := random.New()

	pipeline := persist.NewPipeline(st, clk, rnd, logger)

	sessions := session.New(st, clk, session.Config{
		MaxConnectionsPerUser: cfg.Session.MaxConnectionsPerUser,
	}, logger)

	rooms := room.New(st, clk, rnd, pipeline, room.Config{
		DefaultCapacity: cfg.Room.DefaultCapacity,
	}, logger)

	questions := question.New(st, rnd, logger)

	coordinator := battle.New(st, rooms, questions, scoring.New(), clk, scheduler.New(), pipeline, battle.Config{
		InstanceID:    instanceID(cfg),
		StartDelay:    cfg.Battle.StartDelay,
		QuestionPause: cfg.Battle.QuestionPause,
		RoundPause:    cfg.Battle.RoundPause,
		OwnerLeaseTTL: cfg.Battle.OwnerLeaseTTL,
	}, logger)

	hubs := ws.NewHubManager(logger)
	coordinator.SetBroadcaster(hubs)

	wsHandler := ws.NewHandler(sessions, rooms, coordinator, hubs, logger)
	server := api.NewServer(cfg.ListenAddr, api.NewRouter(wsHandler), logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     st,
		Sessions:  sessions,
		Rooms:     rooms,
		Questions: questions,
		Battle:    coordinator,
		Hubs:      hubs,
		Pipeline:  pipeline,
		Server:    server,
	}, nil
}

// NewStore builds the configured fast state store
func NewStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Mode {
	case config.StorageRedis:
		redisCfg := redisstore.DefaultConfig()
		redisCfg.URL = cfg.Storage.RedisURL
		redisCfg.PoolSize = cfg.Storage.PoolSize
		redisCfg.MinIdleConns = cfg.Storage.MinIdleConns
		redisCfg.SessionTTL = cfg.Session.SessionTTL
		redisCfg.ConnectionTTL = cfg.Session.ConnectionTTL
		redisCfg.RoomTTL = cfg.Room.RoomTTL
		redisCfg.MembershipTTL = cfg.Room.RoomTTL
		redisCfg.EmptyRoomGrace = cfg.Room.EmptyRoomGrace
		return redisstore.New(redisCfg)
	case config.StorageMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
	}
}

// NewWorker wires a persistence worker process
func NewWorker(cfg *config.Config, logger *slog.Logger) (*persist.Worker, error) {
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres dsn required for worker")
	}

	st, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}

	repo, err := repository.NewPostgres(cfg.Postgres.DSN, logger)
	if err != nil {
		return nil, err
	}

	return persist.NewWorker(st, repo, clock.New(), persist.WorkerConfig{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		MaxRetries:   cfg.Worker.MaxRetries,
	}, logger), nil
}

// instanceID is the identity used for room ownership leases
func instanceID(cfg *config.Config) string {
	if cfg.InstanceID != "" {
		return cfg.InstanceID
	}
	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Sprintf("quizbattle-%d", os.Getpid())
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
