package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/areal/internal/api"
	"github.com/sells-group/areal/internal/config"
	"github.com/sells-group/areal/internal/resilience"
	"github.com/sells-group/areal/pkg/valhalla"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve areal statistics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initData(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		reg, err := newRegistry(ctx, cfg, env, cfg.Data.Eager)
		if err != nil {
			return err
		}
		zap.L().Info("datasets registered", zap.Strings("ids", reg.IDs()), zap.Bool("eager", cfg.Data.Eager))
		for _, s := range reg.List() {
			if s.Error != "" {
				zap.L().Warn("dataset unavailable", zap.String("dataset", s.ID), zap.String("error", s.Error))
			}
		}

		server := api.NewServer(reg, api.Options{
			CORSOrigins:  cfg.Server.CORSOrigins,
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
			Isochrones:   newIsochroneClient(cfg.Valhalla),
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newIsochroneClient returns nil when no Valhalla server is configured.
func newIsochroneClient(c config.ValhallaConfig) valhalla.Client {
	if c.URL == "" {
		zap.L().Debug("AREAL_VALHALLA_URL not set, isochrone endpoint disabled")
		return nil
	}
	timeout := time.Duration(c.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return valhalla.NewClient(c.URL,
		valhalla.WithHTTPClient(&http.Client{Timeout: timeout}),
		valhalla.WithRetryPolicy(resilience.DefaultPolicy("valhalla.isochrone")),
	)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
