package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/asakaida/relbox/internal/app"
	"github.com/asakaida/relbox/internal/demo"
	"github.com/asakaida/relbox/internal/infrastructure/config"
	"github.com/asakaida/relbox/internal/infrastructure/logging"
	"github.com/asakaida/relbox/internal/repositories"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const metricsUpdateInterval = 10 * time.Second

var (
	envFlag   string
	driverArg string
	cfg       *config.Config
	logger    *slog.Logger
	registry  = prometheus.NewRegistry()
)

var rootCmd = &cobra.Command{
	Use:   "relbox",
	Short: "Object store with lazily resolved to-one relations",
	Long: `relbox stores entities in SQLite or PostgreSQL and links them
with to-one relations that resolve their targets on first access.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or migrate the database schema",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Store and resolve a small order/customer graph",
	Args:  cobra.NoArgs,
	RunE:  runDemo,
}

var getCmd = &cobra.Command{
	Use:   "get <entity> <id>",
	Short: "Print a stored record and its foreign keys",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

var countCmd = &cobra.Command{
	Use:   "count <entity>",
	Short: "Print the number of stored records of an entity",
	Args:  cobra.ExactArgs(1),
	RunE:  runCount,
}

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve Prometheus metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServeMetrics,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")
	rootCmd.PersistentFlags().StringVar(&driverArg, "driver", "", "Override STORE_DRIVER (sqlite or postgres)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(serveMetricsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if driverArg != "" {
		cfg.Store.Driver = driverArg
	}

	logger, err = logging.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", slog.String("env", envFlag), slog.String("driver", cfg.Store.Driver))
	return nil
}

// open wires the store and registers the demo entities.
func open(ctx context.Context) (*app.App, *demo.Boxes, error) {
	a, err := app.New(ctx, cfg, logger, registry)
	if err != nil {
		return nil, nil, err
	}
	boxes, err := demo.Register(a.Store)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, boxes, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	a, _, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.HealthCheck(); err != nil {
		return err
	}
	logger.Info("schema ready", slog.Any("entities", a.Store.Entities()))
	return nil
}

func runDemo(cmd *cobra.Command, args []string) error {
	a, boxes, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	return demo.Run(cmd.Context(), boxes, cmd.OutOrStdout())
}

func runGet(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[1], err)
	}

	a, _, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Store.Box(args[0]); err != nil {
		return err
	}
	record, err := a.Store.Repository().Get(cmd.Context(), args[0], id)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return fmt.Errorf("%s#%d not found", args[0], id)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s updated %s\n", record, record.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "data  %s\n", record.Data)
	for name, target := range record.Links {
		fmt.Fprintf(out, "link  %s -> %d\n", name, target)
	}
	return nil
}

func runCount(cmd *cobra.Command, args []string) error {
	a, _, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Store.Box(args[0]); err != nil {
		return err
	}
	n, err := a.Store.Repository().Count(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}

func runServeMetrics(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, _, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.Exporter.Update()
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", slog.String("addr", cfg.Metrics.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down metrics server: %w", err)
	}
	return nil
}
