package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"loanguard/approval"
	"loanguard/config"
	"loanguard/db"
	qhttp "loanguard/http"
	"loanguard/logger"
	"loanguard/monitoring"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, *configPath)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loanguard: %v\n", err)
		os.Exit(1)
	}
}

// run 启动服务直到 ctx 结束；所有资源在返回前释放
func run(ctx context.Context, configPath string) error {
	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer zlog.Sync()

	// 2. Initialize database
	store, err := db.Open(cfg.Database.Path, cfg.Database.EnableWAL)
	if err != nil {
		zlog.Error("failed to initialize database", zap.String("path", cfg.Database.Path), zap.Error(err))
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	zlog.Info("database initialized", zap.String("path", cfg.Database.Path))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 3. Monitoring
	metrics := monitoring.NewMetricsCollector()
	metrics.Start(ctx, 10*time.Second)
	hub := monitoring.NewDecisionHub(zlog.Named("hub"))
	go hub.Run()
	defer hub.Stop()

	// 4. Train model
	engine, err := approval.NewEngine(ctx, cfg.Model, zlog.Named("approval"),
		approval.WithRecorder(store),
		approval.WithTrainingLog(store),
		approval.WithPublisher(hub))
	if err != nil {
		zlog.Error("failed to train model", zap.Error(err))
		return fmt.Errorf("train model: %w", err)
	}
	if snap, err := engine.Snapshot(ctx); err == nil {
		metrics.SetGauge(monitoring.MetricModelAccuracy, snap.Accuracy, nil)
	}
	if cfg.Model.SavePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Model.SavePath), 0o755); err != nil {
			zlog.Warn("failed to create model dir", zap.Error(err))
		} else if err := engine.SaveModel(cfg.Model.SavePath); err != nil {
			zlog.Warn("failed to save model", zap.String("path", cfg.Model.SavePath), zap.Error(err))
		}
	}

	err = config.Watch(ctx, configPath, cfg.Model, func(m config.ModelConfig) {
		if err := engine.Reconfigure(ctx, m); err != nil {
			zlog.Warn("failed to apply model config", zap.Error(err))
			return
		}
		if snap, err := engine.Snapshot(ctx); err == nil {
			metrics.SetGauge(monitoring.MetricModelAccuracy, snap.Accuracy, nil)
		}
	}, zlog.Named("config"))
	if err != nil {
		zlog.Warn("config hot reload disabled", zap.Error(err))
	}

	// 5. Start HTTP server
	handlers := qhttp.NewHandlers(engine, store, hub, metrics, zlog.Named("http"))
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
	}, handlers, metrics, zlog.Named("http"))

	// 6. Run until SIGINT/SIGTERM, then shut down gracefully
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("shutting down")
		return server.Stop()
	})

	if err := g.Wait(); err != nil {
		zlog.Error("server stopped with error", zap.Error(err))
		return err
	}
	zlog.Info("exiting")
	return nil
}
