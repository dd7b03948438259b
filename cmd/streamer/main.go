package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"bidcast/internal/capture"
	"bidcast/internal/client"
	"bidcast/pkg/config"
	"bidcast/pkg/logger"
)

func main() {
	username := flag.String("username", "", "display name announced to viewers")
	flag.Parse()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/bidcast/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	channel := client.NewChannel(client.ChannelConfig{
		HubHost:        cfg.Client.HubHost,
		Path:           cfg.Hub.Path,
		Secure:         cfg.Client.Secure,
		ReconnectDelay: cfg.Client.ReconnectDelay,
		SendBuffer:     cfg.Client.SendBuffer,
		DialTimeout:    cfg.Client.DialTimeout,
	}, log)

	bus := client.NewBus()
	streamer := client.NewStreamer(channel, bus, log, *username)

	bus.Subscribe(client.TopicViewers, func(payload any) {
		log.Infow("viewer count changed", "count", payload)
	})
	bus.Subscribe(client.TopicPrice, func(payload any) {
		log.Infow("price changed", "current", payload)
	})
	bus.Subscribe(client.TopicBid, func(payload any) {
		log.Infow("bid observed", "bid", payload)
	})
	bus.Subscribe(client.TopicBanList, func(payload any) {
		log.Infow("ban list updated", "banned", payload)
	})
	bus.Subscribe(client.TopicConnectionState, func(payload any) {
		log.Infow("session channel state", "state", payload)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := streamer.Start(ctx); err != nil {
		log.Fatalw("failed to start streamer session", "error", err)
	}

	source := capture.NewTestPatternSource(1280, 720, 0)
	pipeline := capture.NewPipeline(capture.Config{
		FramesPerSecond:  cfg.Capture.FramesPerSecond,
		MaxDimension:     cfg.Capture.MaxDimension,
		JPEGQuality:      cfg.Capture.JPEGQuality,
		ReadinessRecheck: cfg.Capture.ReadinessRecheck,
	}, source, streamer, log)

	pipeline.OnStateChange(func(state capture.State) {
		log.Infow("capture pipeline state", "state", state)
	})

	if err := pipeline.Start(ctx); err != nil {
		log.Fatalw("failed to start capture pipeline", "error", err)
	}

	log.Infow("streaming", "hub", cfg.Client.HubHost, "fps", cfg.Capture.FramesPerSecond)

	<-ctx.Done()

	log.Infow("shutting down streamer",
		"frames_sent", pipeline.FramesSent(),
		"frames_dropped", pipeline.FramesDropped(),
	)

	pipeline.Stop()
	streamer.Stop()

	os.Exit(0)
}
