package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/adwski/proctor-signaling/backend/config"
	httpServer "github.com/adwski/proctor-signaling/backend/server/http"
	websocketServer "github.com/adwski/proctor-signaling/backend/server/websocket"
	"github.com/adwski/proctor-signaling/backend/service"
	store "github.com/adwski/proctor-signaling/backend/storage/memory"
	sw "github.com/adwski/proctor-signaling/backend/switch"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	relaySwitch := sw.NewSwitch(sw.Config{
		Logger:         &logger,
		Store:          store.NewMemStore(cfg.Shards),
		ForwardTimeout: cfg.ForwardTimeout,
	})
	svc := service.NewService(service.Config{
		Switch: relaySwitch,
		Logger: &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: relaySwitch,
		ListenAddr:  cfg.APIListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:           &logger,
		SignalingService: svc,
		ListenAddr:       cfg.WSListenAddr,
		SendQueueSize:    cfg.SendQueueSize,
		MaxMessageSize:   cfg.MaxMessageSize,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()

	if logger.GetLevel() <= zerolog.TraceLevel {
		logger.Trace().Msg("rooms at shutdown:\n" + spew.Sdump(relaySwitch.Rooms()))
	}
}
