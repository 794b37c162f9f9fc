package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"riskagent/browser"
	"riskagent/routes"
	"riskagent/utils"
)

const CheckPeriod = 1 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := utils.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logger)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *utils.Config, logger *zap.Logger) error {
	profiles, err := browser.LoadProfiles(cfg.Browser.ProfilesPath)
	if err != nil {
		return err
	}
	if _, ok := profiles.Get(cfg.Browser.DefaultProfile); !ok {
		return fmt.Errorf("default profile %q is not defined", cfg.Browser.DefaultProfile)
	}

	geo, err := utils.OpenTimezoneResolver(cfg.GeoIP.DatabasePath)
	if err != nil {
		return err
	}
	defer geo.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := routes.NewServer(cfg, profiles, geo, registry, logger)
	server.BaseContext = ctx
	defer server.Close()

	e := echo.New()

	// Debug Setting
	e.Logger.SetOutput(io.Discard)
	e.HideBanner = true
	e.HidePort = true
	e.Debug = false

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:     true,
		LogURI:        true,
		LogStatus:     true,
		LogLatency:    true,
		LogError:      true,
		HandleError:   true,
		LogValuesFunc: routes.LogRequests(logger),
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	server.Register(e)

	// Expired sessions
	go func() {
		ticker := time.NewTicker(CheckPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := server.Sweep(now); n > 0 {
					logger.Info("expired sessions closed", zap.Int("count", n))
				}
			}
		}
	}()

	// Start server
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server is running", zap.Int("port", cfg.Server.Port))
		if err := e.Start(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
