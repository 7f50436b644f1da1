package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/corrudash/internal/app"
	"github.com/ternarybob/corrudash/internal/common"
	"github.com/ternarybob/corrudash/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	defer common.RecoverWithCrashFile()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFiles []string
		overrides   common.FlagOverrides
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("corrudash", pflag.ContinueOnError)
	flagSet.StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	flagSet.IntVarP(&overrides.Port, "port", "p", 0, "Server port (overrides config)")
	flagSet.StringVar(&overrides.Host, "host", "", "Server host (overrides config)")
	flagSet.StringVar(&overrides.SnapshotURL, "snapshot-url", "", "Job backend base URL (overrides config)")
	flagSet.StringVar(&overrides.LiveURL, "live-url", "", "Live stream websocket URL (overrides config)")
	flagSet.StringVar(&overrides.LogLevel, "log-level", "", "Log level (overrides config)")
	flagSet.BoolVarP(&showVersion, "version", "v", false, "Print version information")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	common.LoadVersionFromFile()
	if showVersion {
		fmt.Printf("Corrudash version %s\n", common.GetFullVersion())
		return nil
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("corrudash.toml"); err == nil {
			configFiles = append(configFiles, "corrudash.toml")
		}
	}

	// Startup sequence: defaults -> files -> env -> flags, then logger, then banner
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Error().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		return err
	}
	common.ApplyFlagOverrides(config, overrides)
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := common.InitLogger(config)
	common.InstallCrashHandler("")
	common.PrintBanner(config)

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Bool("production", config.IsProduction()).
		Str("log_level", config.Logging.Level).
		Int("port", config.Server.Port).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return err
	}
	defer application.Close()

	srv := server.New(application)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(srv.Start)

	group.Go(func() error {
		if err := application.Start(); err != nil {
			return err
		}
		logger.Info().
			Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
			Msg("Server ready - Press Ctrl+C to stop")
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		if ctx.Err() != nil {
			logger.Info().Msg("Interrupt signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
		return err
	}

	logger.Info().Msg("Server stopped")
	return nil
}
