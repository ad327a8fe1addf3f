package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gitlab.com/dirk.krummacker/customers-service/internal/config"
	"gitlab.com/dirk.krummacker/customers-service/internal/logger"
	"gitlab.com/dirk.krummacker/customers-service/internal/metrics"
	"gitlab.com/dirk.krummacker/customers-service/internal/service"
	"gitlab.com/dirk.krummacker/customers-service/internal/store"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Usage example on the command line:
// > PORT=8080 DBUSER=dirk DBPWD=bullo92 GIN_MODE=release GIN_LOGGING=OFF go run main.go
// > go run main.go --config ../../config.toml
func main() {
	var configFile string
	cmd := &cobra.Command{
		Use:          "customers-service",
		Short:        "REST API for managing customers",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to the configuration file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	// A missing .env file is fine in production.
	_ = godotenv.Load()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	s, err := store.Open(cfg.Database)
	if err != nil {
		log.Error("Failed to open database", zap.Error(err))
		return err
	}
	defer s.Close()
	if cfg.Database.MigrateOnStart {
		if err := s.Migrate(ctx); err != nil {
			log.Error("Failed to migrate database", zap.Error(err))
			return err
		}
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	opts := service.RouterOptions{
		Logger:         log,
		RequestLogging: cfg.Log.HTTPRequests,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = metrics.NewCollector()
		opts.MetricsPath = cfg.Metrics.Path
	}
	router := service.SetupHttpRouter(service.New(s, log), opts)

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		log.Info("Starting server",
			zap.String("app", cfg.App.Name),
			zap.String("addr", server.Addr),
			zap.String("database", cfg.Database.Driver))
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
