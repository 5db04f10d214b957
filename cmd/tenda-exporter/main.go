package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fexd12/prometheus-tenda-exporter/pkg/gather"
	"github.com/fexd12/prometheus-tenda-exporter/pkg/reporter"
	"github.com/fexd12/prometheus-tenda-exporter/pkg/tracker"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:          "tenda-exporter",
		Short:        "Export WAN rates and connected clients of a Tenda router",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, o)
		},
	}
	o.bindPersistentFlags(root)
	o.bindServeFlags(root)

	root.AddCommand(
		newScanCommand(o),
		newStatusCommand(o),
	)

	return root
}

// setup loads the configuration and returns the process-wide client registry.
func setup(cmd *cobra.Command, o *options) (Config, *gather.Registry, error) {
	cfg, err := o.load(cmd)
	if err != nil {
		return Config{}, nil, err
	}
	if err := configureLogging(cfg); err != nil {
		return Config{}, nil, err
	}

	opts, err := cfg.GatherOptions()
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, gather.NewRegistry(opts...), nil
}

func runServe(cmd *cobra.Command, o *options) error {
	cfg, registry, err := setup(cmd, o)
	if err != nil {
		return err
	}

	// The tracker and the reporter poll the same router; the registry hands
	// both the same client so they share one session.
	devices, err := registry.GetOrCreate(cfg.Host, cfg.Password)
	if err != nil {
		return err
	}
	status, err := registry.GetOrCreate(cfg.Host, cfg.Password)
	if err != nil {
		return err
	}

	server, err := NewServer(tracker.NewScanner(devices), reporter.New(status), cfg.Interval)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logrus.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"interval": cfg.Interval,
		"source":   cfg.DeviceSource,
	}).Info("starting exporter")

	return server.Run(ctx, cfg.Listen)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
