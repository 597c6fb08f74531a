package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftchat/client/internal/chat"
	"github.com/driftchat/client/internal/config"
	"github.com/driftchat/client/internal/directory"
	"github.com/driftchat/client/internal/metrics"
	"github.com/driftchat/client/internal/model"
	"github.com/driftchat/client/internal/presence"
	"github.com/driftchat/client/internal/session"
	"github.com/driftchat/client/internal/storage"
	"github.com/driftchat/client/internal/transport"
)

// app wires the client stack together: storage, directory, relay,
// conversation store, presence tracker and session controller.
type app struct {
	cfg     config.Config
	kv      storage.KV
	client  *directory.Client
	roster  *directory.Roster
	relay   transport.Relay
	store   *chat.Store
	tracker *presence.Tracker
	session *session.Controller
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var kv storage.KV
	if cfg.RedisAddr != "" {
		store, err := storage.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		kv = store
	} else {
		store, err := storage.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open data directory: %w", err)
		}
		kv = store
	}

	client := directory.NewClient(cfg.DirectoryURL)

	roster := directory.NewRoster(client, kv)
	if err := roster.Load(ctx); err != nil {
		log.Printf("[drift] load roster: %v", err)
	}

	var relay transport.Relay
	switch cfg.RelayBackend {
	case "nats":
		natsConfig := transport.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		relay = transport.NewNATSRelay(natsConfig)
	default:
		wsConfig := transport.DefaultWSConfig()
		wsConfig.URL = cfg.RelayURL
		wsConfig.DialTimeout = cfg.DialTimeout()
		wsConfig.ReconnectWait = cfg.ReconnectWait()
		wsConfig.MaxReconnects = cfg.MaxReconnects
		relay = transport.NewWSRelay(wsConfig)
	}

	store := chat.New(relay, client, roster, kv)
	if err := store.Load(ctx); err != nil {
		log.Printf("[drift] load chats: %v", err)
	}

	tracker := presence.NewTracker()
	controller := session.NewController(relay, store, tracker, roster, kv)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("[drift] metrics server: %v", err)
			}
		}()
	}

	return &app{
		cfg:     cfg,
		kv:      kv,
		client:  client,
		roster:  roster,
		relay:   relay,
		store:   store,
		tracker: tracker,
		session: controller,
	}, nil
}

// requireSession resumes the persisted identity or fails with a hint.
func requireSession(ctx context.Context, a *app) (model.User, error) {
	user, ok := a.session.Resume(ctx)
	if !ok {
		return model.User{}, fmt.Errorf("no identity found; run 'drift setup' first")
	}
	return user, nil
}

var rootCmd = &cobra.Command{
	Use:          "drift",
	Short:        "Drift chat client",
	Long:         "Drift is a realtime chat client: direct messages, group rooms and random matching against a shared relay.",
	SilenceUsage: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(config.Default()); err != nil {
			return err
		}
		path, err := config.Path()
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func main() {
	log.SetFlags(log.LstdFlags)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
