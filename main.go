package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/wfunc/puzzleserver/broadcast"
	"github.com/wfunc/puzzleserver/config"
	"github.com/wfunc/puzzleserver/logger"
	"github.com/wfunc/puzzleserver/monitor"
	"github.com/wfunc/puzzleserver/persistence"
	"github.com/wfunc/puzzleserver/room"
	"github.com/wfunc/puzzleserver/server"
	"github.com/wfunc/puzzleserver/services"
	"github.com/wfunc/puzzleserver/session"
	"github.com/wfunc/puzzleserver/state"
	"github.com/wfunc/puzzleserver/timer"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize durable store
	var store persistence.Store
	switch cfg.Database.Driver {
	case "sql":
		store, err = persistence.NewSQLStore(
			cfg.Database.Postgres.Host,
			cfg.Database.Postgres.Port,
			cfg.Database.Postgres.User,
			cfg.Database.Postgres.Password,
			cfg.Database.Postgres.DBName,
		)
	case "memory":
		store = persistence.NewMemStore()
	default:
		store, err = persistence.NewGormStore(
			cfg.Database.Postgres.Host,
			cfg.Database.Postgres.Port,
			cfg.Database.Postgres.User,
			cfg.Database.Postgres.Password,
			cfg.Database.Postgres.DBName,
		)
	}
	if err != nil {
		logger.Log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()
	logger.Log.Info("Durable store ready.")

	// Event fanout bridge
	var bridge broadcast.Bridge
	if cfg.Redis.Addr != "" {
		bridge, err = broadcast.NewRedisBridge(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to redis: %v", err)
		}
	} else {
		logger.Log.Warn("No redis address configured, running single-node fanout.")
		bridge = broadcast.NewLocalBridge()
	}
	defer bridge.Close()

	policy := state.Policy{
		MinPlayers: cfg.Game.MinReadyPlayers,
		MinTeams:   cfg.Game.MinReadyTeams,
	}

	timerManager := timer.NewTimerManager()
	defer timerManager.Stop()

	roomManager := room.NewManager(cfg.Game.RoomCapacity, policy)
	sessionManager := session.NewManager(cfg.Session.ReconnectWindow(), timerManager)

	tableService := services.NewTableService(store, bridge, roomManager,
		policy, cfg.Game.Countdown(), timerManager)

	mon := monitor.NewMonitor("puzzleserver")
	mon.StartServer(cfg.Server.MetricsAddress)
	tableService.SetMonitor(mon)

	// Mirror: the only writer of in-memory state, fed by the subscription
	broadcaster := broadcast.NewSessionBroadcaster(sessionManager)
	mirror := broadcast.NewMirror(roomManager, sessionManager, broadcaster)
	mirror.SetMonitor(mon)
	mirror.OnReadyChanged(tableService.EvaluateReadiness)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := bridge.Subscribe(ctx, mirror.HandleEvent); err != nil {
		logger.Log.Fatalf("Failed to subscribe to fanout: %v", err)
	}

	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, cfg.Server.RPCAddress,
		roomManager, sessionManager, tableService, mon)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Log.Info("Shutting down.")
		gameServer.Shutdown()
	}()

	logger.Log.Infof("Starting puzzle server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Infof("Server stopped: %v", err)
	}
}
