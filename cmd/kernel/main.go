package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/boot"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/server"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/kernel"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse flags; each one overrides its environment counterpart.
	port := flag.String("port", "", "Monitor port (overrides MONITOR_PORT)")
	profilePath := flag.String("profile", "", "Machine profile file (overrides PROFILE_PATH)")
	dumpDir := flag.String("dump-dir", "", "State dump directory (overrides DUMP_DIR)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Monitor.Port = *port
	}
	if *profilePath != "" {
		cfg.Profile.Path = *profilePath
	}
	if *dumpDir != "" {
		cfg.Dump.Dir = *dumpDir
	}
	if *dev {
		cfg.Logging.Development = true
	}

	log := buildLogger(cfg)
	defer log.Sync()

	profile, err := boot.LoadOrDefault(cfg.Profile.Path)
	if err != nil {
		log.Fatal("Invalid machine profile", zap.Error(err))
	}

	metrics := monitoring.NewMetrics()

	k, err := kernel.New(cfg, profile, log)
	if err != nil {
		log.Fatal("Boot failed", zap.Error(err))
	}
	k.WithMetrics(metrics)

	// Serve the monitor in a goroutine; surface its failure like a signal.
	var srv *server.Server
	errChan := make(chan error, 1)
	if cfg.Monitor.Enabled {
		srv = server.New(cfg, k, metrics, log)
		go func() {
			if err := srv.Run(); err != nil {
				errChan <- err
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Signal received, shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		log.Error("Monitor server failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Monitor shutdown failed", zap.Error(err))
		}
	}
	if err := k.Shutdown(ctx); err != nil {
		log.Error("Kernel shutdown incomplete", zap.Error(err))
	}
}

func buildLogger(cfg *config.Config) *logging.Logger {
	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	log, err := logging.New(logCfg)
	if err != nil {
		log = logging.NewDefault()
		log.Warn("Invalid log level, using default", zap.String("level", cfg.Logging.Level))
	}
	return log
}
