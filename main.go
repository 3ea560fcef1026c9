package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"squadfire/battlecore/internal/config"
	feedgrpc "squadfire/battlecore/internal/grpc"
	httpapi "squadfire/battlecore/internal/http"
	"squadfire/battlecore/internal/logging"
	"squadfire/battlecore/internal/replay"
	"squadfire/battlecore/internal/scenario"
	"squadfire/battlecore/internal/simulation"
)

const (
	shutdownGrace = 5 * time.Second
	// Replay flush requests allowed per client and minute.
	flushRequestsPerMinute = 6
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "battlecore:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	logging.ReplaceGlobals(log)
	defer func() { _ = log.Sync() }()

	sc, err := loadScenario(cfg.ScenarioPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := newRunner(ctx, cfg, sc, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		r.close(closeCtx)
	}()

	//1.- Presentation transports and replay retention run beside the battle.
	stopFeed, err := serveFeed(cfg.Feed, r, r.log)
	if err != nil {
		return err
	}
	defer stopFeed()
	stopViewer, err := serveViewer(cfg.Feed, r, r.log)
	if err != nil {
		return err
	}
	defer stopViewer()
	if cfg.Replay.Dir != "" {
		cleaner := replay.NewCleaner(cfg.Replay.Dir, replay.RetentionPolicy{MaxBundles: cfg.Replay.MaxBundles, MaxAge: cfg.Replay.MaxAge}, r.log)
		cleaner.Protect(r.recorder.Snapshot().Directory)
		go cleaner.Run(ctx, time.Hour)
	}

	r.log.Info("battle starting",
		logging.String("scenario", sc.Name),
		logging.Int64("seed", r.seed),
		logging.Int("tick_hz", cfg.Simulation.TickHz),
	)
	result := r.run(ctx)

	//2.- Keep the feeds up for late viewers until interrupted.
	if result.Reason != simulation.ReasonCancelled && (cfg.Feed.GRPCAddr != "" || cfg.Feed.ViewerAddr != "") {
		r.log.Info("battle finished, serving feeds until interrupted")
		<-ctx.Done()
	}
	return nil
}

func loadScenario(path string) (*scenario.Scenario, error) {
	if path == "" {
		return scenario.Default(), nil
	}
	return scenario.Load(path)
}

// serveFeed starts the gRPC presentation feed when an address is configured.
func serveFeed(cfg config.FeedConfig, r *runner, log *logging.Logger) (func(), error) {
	if cfg.GRPCAddr == "" {
		return func() {}, nil
	}
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("listen feed %s: %w", cfg.GRPCAddr, err)
	}
	server := grpc.NewServer(feedgrpc.ServerOptions(cfg.Token)...)
	feedgrpc.NewService(r.stream, feedgrpc.WithLogger(log)).Register(server)
	go func() {
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("feed server failed", logging.Error(err))
		}
	}()
	log.Info("presentation feed listening", logging.String("url", advertisedURL("grpc", lis.Addr().String(), "")))
	return func() {
		done := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			server.Stop()
		}
	}, nil
}

// serveViewer starts the websocket viewer and status endpoints when an address is configured.
func serveViewer(cfg config.FeedConfig, r *runner, log *logging.Logger) (func(), error) {
	if cfg.ViewerAddr == "" {
		return func() {}, nil
	}
	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:         log,
		Stream:         r.stream,
		Status:         r.currentStatus,
		Replay:         httpapi.ReplayFlusherFunc(r.flushReplay),
		AdminToken:     cfg.Token,
		AllowedOrigins: cfg.AllowedOrigins,
		PingInterval:   cfg.PingInterval,
		Limiter:        httpapi.NewKeyedLimiter(time.Minute, flushRequestsPerMinute, nil),
	})
	mux := http.NewServeMux()
	handlers.Register(mux)

	lis, err := net.Listen("tcp", cfg.ViewerAddr)
	if err != nil {
		return nil, fmt.Errorf("listen viewer %s: %w", cfg.ViewerAddr, err)
	}
	server := &http.Server{Handler: logging.HTTPTraceMiddleware(log)(mux), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("viewer server failed", logging.Error(err))
		}
	}()
	log.Info("viewer listening",
		logging.String("url", advertisedURL("ws", lis.Addr().String(), "/ws")),
		logging.String("status", advertisedURL("http", lis.Addr().String(), "/status")),
	)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warn("viewer shutdown", logging.Error(err))
		}
	}, nil
}
