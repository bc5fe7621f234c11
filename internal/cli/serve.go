package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	jwttoken "claimguard/internal/jwt_token"
	"claimguard/internal/platform/config"
	"claimguard/internal/platform/httpserver"
	"claimguard/internal/platform/logger"
	platformmetrics "claimguard/internal/platform/metrics"
	httptransport "claimguard/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard API",
	Long: `Serve starts the HTTP API used by the executive dashboard. Sessions,
claims and results are persisted to the configured record store and every
audit event goes to memory or Kafka.

Example:
  CLAIMGUARD_STORE_BACKEND=redis claimguard serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ai, err := aiFromConfig(cfg.AI)
	if err != nil {
		return err
	}
	st, err := buildStack(ctx, cfg, log, reg, ai)
	if err != nil {
		return err
	}
	defer st.Close()

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	handler := httptransport.New(st.service, log)
	router := httptransport.NewRouter(handler, httptransport.RouterDeps{
		Logger:         log,
		Metrics:        platformmetrics.New(reg),
		Gatherer:       reg,
		Health:         st.prober,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		OnAuthFailure:  st.recordAuthFailure,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	log.Info("starting claimguard",
		"addr", cfg.Server.Addr,
		"store", cfg.Store.Backend,
		"simulated_ai", cfg.AI.Simulated,
		"hard_cap_usd", cfg.Budget.HardCapUSD,
	)
	runErr := httpserver.Run(ctx, httpserver.New(cfg.Server.Addr, router), log, cfg.Server.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	st.service.Shutdown(shutdownCtx)
	return runErr
}
