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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fping-exporter/internal/api"
	"fping-exporter/internal/collector"
	"fping-exporter/internal/config"
	"fping-exporter/internal/metrics"
	"fping-exporter/internal/netinfo"
	"fping-exporter/internal/probe"
	"fping-exporter/internal/registry"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	apiBase string
)

var rootCmd = &cobra.Command{
	Use:          "fping-exporter",
	Short:        "Prometheus exporter for fping latency and loss metrics",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collection loop, metrics endpoint and target API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the exporter version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file populated with the defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			return fmt.Errorf("--config is required")
		}
		if _, err := os.Stat(cfgFile); err == nil {
			return fmt.Errorf("%s already exists", cfgFile)
		}
		if err := config.Save(cfgFile, config.Default()); err != nil {
			return err
		}
		fmt.Println("wrote", cfgFile)
		return nil
	},
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage the monitored target list via a running exporter",
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered targets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := api.NewClient(apiBase).Targets(cmd.Context())
		if err != nil {
			return err
		}
		for _, target := range resp.Targets {
			fmt.Println(target)
		}
		return nil
	},
}

var targetsAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Register a new target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := api.NewClient(apiBase).Add(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printMutation(resp)
		return nil
	},
}

var targetsRemoveCmd = &cobra.Command{
	Use:   "remove <address>",
	Short: "Remove a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := api.NewClient(apiBase).Remove(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printMutation(resp)
		return nil
	},
}

var targetsRenameCmd = &cobra.Command{
	Use:   "rename <old-address> <new-address>",
	Short: "Replace a target's address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := api.NewClient(apiBase).Rename(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		printMutation(resp)
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (built-in defaults when empty)")
	configInitCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path of the config file to create")
	targetsCmd.PersistentFlags().StringVar(&apiBase, "api", "http://127.0.0.1:8080", "base URL of the running exporter's target API")
	targetsCmd.AddCommand(targetsListCmd, targetsAddCmd, targetsRemoveCmd, targetsRenameCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(serveCmd, targetsCmd, configCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logrus.SetLevel(level)
	logrus.WithFields(logrus.Fields{
		"version": version,
		"pinger":  cfg.Pinger,
	}).Info("starting fping-exporter")

	reg := registry.Load(cfg.TargetsPath)
	sink := metrics.NewSink(prometheus.NewRegistry())
	col := collector.New(buildProber(cfg), reg, sink, cfg.PacketCount, cfg.CollectionInterval())
	apiSrv := api.NewServer(cfg.APIListen, reg, sink, col)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A component that cannot come up, typically a listener failing to bind,
	// must take the others down with it instead of leaving the collector
	// cycling with no exposition endpoint.
	g, runCtx := errgroup.WithContext(ctx)

	sink.SetInfo("", netinfo.NATTypeUnknown, version)
	if len(cfg.STUNServers) > 0 {
		go discoverPublicAddress(runCtx, cfg.STUNServers, sink)
	}

	if cfg.WatchEnabled() {
		go func() {
			if err := reg.Watch(runCtx, sink.Remove); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithError(err).Warn("target list watch stopped")
			}
		}()
	}

	g.Go(func() error { return col.Run(runCtx) })
	g.Go(func() error { return apiSrv.ListenAndServe(runCtx) })
	g.Go(func() error { return serveMetrics(runCtx, cfg.MetricsListen, sink) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logrus.Info("shutdown complete")
	return nil
}

func loadConfig() (config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.Load(cfgFile)
}

func buildProber(cfg config.Config) probe.Prober {
	if cfg.Pinger == config.PingerNative {
		return &probe.NativeProber{
			Count:      cfg.PacketCount,
			Timeout:    cfg.ProbeTimeout(),
			Privileged: os.Geteuid() == 0,
		}
	}
	return &probe.FpingProber{
		Runner: &probe.FpingRunner{
			Path:            cfg.FpingPath,
			Count:           cfg.PacketCount,
			PacketTimeoutMs: cfg.PacketTimeoutMs,
			Timeout:         cfg.ProbeTimeout(),
		},
		Count: cfg.PacketCount,
	}
}

// discoverPublicAddress resolves the exporter's public IP and NAT flavor over
// STUN and publishes both on the info metric. Failures only cost the labels.
func discoverPublicAddress(ctx context.Context, servers []string, sink *metrics.Sink) {
	host, natType, err := netinfo.PublicAddress(ctx, servers, 10*time.Second)
	if err != nil {
		logrus.WithError(err).Warn("public address discovery failed")
		return
	}
	logrus.WithFields(logrus.Fields{
		"public_ip": host,
		"nat_type":  natType,
	}).Info("discovered public address")
	sink.SetInfo(host, natType, version)
}

func serveMetrics(ctx context.Context, listen string, sink *metrics.Sink) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", sink.Handler())

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logrus.WithField("listen", listen).Info("metrics endpoint listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printMutation(resp api.MutationResponse) {
	fmt.Printf("%s %s\n", resp.Status, resp.Target)
	if resp.Warning != "" {
		fmt.Fprintln(os.Stderr, "warning: "+resp.Warning)
	}
}
