package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"historytree/pkg/api"
	"historytree/pkg/config"
	"historytree/pkg/document"
	"historytree/pkg/monitor"
	"historytree/pkg/network"
	"historytree/pkg/storage"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:   "historytree-server",
		Short: "Serve history tree documents over HTTP and TCP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to historytree.yaml")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := config.NewLogger(os.Stderr, cfg.Log)

	factory, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer factory.Close()

	stats := monitor.NewStats()
	registry := document.NewRegistry(factory, stats, logger)
	defer registry.Close()

	logger.Info("historytree server starting",
		"http", cfg.Server.Addr, "tcp", cfg.Server.TCPAddr, "backend", factory.Name())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- network.NewTCPServer(registry, logger).Start(ctx, cfg.Server.TCPAddr)
	}()
	go func() {
		errCh <- api.NewServer(registry, stats, logger).Start(ctx, cfg.Server.Addr)
	}()

	// The first server to stop takes the other one down with it.
	err = <-errCh
	cancel()
	if second := <-errCh; err == nil {
		err = second
	}
	logger.Info("historytree server stopped")
	return err
}
