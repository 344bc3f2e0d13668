// Command meshd is the standalone process wrapper around the channel
// messaging client runtime: it exposes the Channel API over the local
// TCP bridge for callers that have no native Go binding.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/relaymesh/channelsdk/internal/bridge"
	"github.com/relaymesh/channelsdk/internal/channelapi"
	"github.com/relaymesh/channelsdk/internal/config"
	"github.com/relaymesh/channelsdk/internal/httptransport"
	"github.com/relaymesh/channelsdk/internal/logging"
	"github.com/relaymesh/channelsdk/internal/session"
	"github.com/relaymesh/channelsdk/internal/udptransport"
)

func main() {
	root := &cobra.Command{
		Use:   "meshd",
		Short: "local TCP bridge for the channel messaging client runtime",
		RunE:  run,
	}

	root.Flags().String("api-url", "", "base URL of the messaging service (overrides config/env)")
	root.Flags().String("api-key", "", "developer API key (overrides config/env)")
	root.Flags().Int("tcp-port", 0, "local TCP bridge port (default 7071, overrides config/env)")
	root.Flags().Int("udp-port", 0, "UDP transport port (default 9999, overrides config/env)")
	root.Flags().String("udp-host", "127.0.0.1", "UDP transport host")
	root.Flags().String("config", "", "path to config.yaml (default ~/.messaging-sdk/config.yaml)")
	root.Flags().String("session-dir", "", "directory for session snapshot persistence (default ~/.messaging-sdk)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		if path, err := config.DefaultConfigPath(); err == nil {
			configPath = path
		}
	}

	mgr := config.NewManager()
	if err := mgr.Load(configPath); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := mgr.Get()

	if v, _ := cmd.Flags().GetString("api-url"); v != "" {
		cfg.APIURL = v
	}
	if v, _ := cmd.Flags().GetString("api-key"); v != "" {
		cfg.APIKey = v
	}
	if v, _ := cmd.Flags().GetInt("tcp-port"); v != 0 {
		cfg.TCPPort = v
	}
	if v, _ := cmd.Flags().GetInt("udp-port"); v != 0 {
		cfg.UDPPort = v
	}

	httpClient := httptransport.New(cfg.APIURL, cfg.APIKey)

	var udpClient *udptransport.Client
	if cfg.UDPPort != 0 {
		udpHost, _ := cmd.Flags().GetString("udp-host")
		var err error
		udpClient, err = udptransport.New(udpHost, cfg.UDPPort)
		if err != nil {
			return fmt.Errorf("open udp transport: %w", err)
		}
	}
	api := channelapi.New(httpClient, udpClient, "")

	sessionDir, _ := cmd.Flags().GetString("session-dir")
	if sessionDir == "" {
		dir, err := config.UserConfigDir()
		if err != nil {
			return fmt.Errorf("resolve session dir: %w", err)
		}
		sessionDir = dir
	}
	store, err := session.NewStore(sessionDir)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	bridgeSrv := bridge.NewServer(api, store, cfg.TCPPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := mgr.Watch(ctx); err != nil {
		logging.Warn("config hot-reload disabled", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bridgeSrv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("meshd: %w", err)
	}
	logging.Info("meshd shut down cleanly")
	return nil
}
