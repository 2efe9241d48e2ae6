package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mschirtzinger/tradejournal/internal/livefeed"
	"github.com/mschirtzinger/tradejournal/internal/ui"
)

var (
	serveAddr  string
	serveKinds []string
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Serve journal snapshots over WebSocket",
	Long: `Subscribe to the owner's collections and push every snapshot to WebSocket
clients connected to /ws. Each frame is a JSON object:

  {"type":"snapshot","topic":"u1/trade","timestamp":"...","data":{...}}

where data has the same shape as a 'tjsync watch' line. A client that
connects late first receives the latest snapshot of every topic.
GET /health reports the number of connected clients.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default feed.addr)")
	serveCmd.Flags().StringSliceVar(&serveKinds, "kinds",
		[]string{"trades", "accounts", "strategies", "tags", "settings", "profile"},
		"collections to serve")
}

// feedSink publishes events as snapshot frames.
type feedSink struct {
	server *livefeed.Server
}

func (f *feedSink) write(e watchEvent) {
	data, err := json.Marshal(e)
	if err != nil {
		logger.Warn("failed to encode snapshot", zap.String("kind", string(e.Kind)), zap.Error(err))
		return
	}
	f.server.Publish(livefeed.Message{
		Type:  livefeed.MessageTypeSnapshot,
		Topic: e.Owner + "/" + string(e.Kind),
		Data:  data,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	ownerID, err := resolveOwner()
	if err != nil {
		return err
	}
	kinds, err := parseKinds(serveKinds)
	if err != nil {
		return err
	}
	addr := serveAddr
	if addr == "" {
		addr = cfg.Feed.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, store, err := openService(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	server := livefeed.NewServer(&livefeed.Config{
		Addr:         addr,
		WriteTimeout: cfg.Feed.WriteTimeout,
		Logger:       logger,
	})
	if err := server.Start(); err != nil {
		return err
	}
	defer func() {
		if err := server.Stop(); err != nil {
			logger.Warn("failed to stop feed", zap.Error(err))
		}
	}()

	fmt.Printf("%s Serving %s on ws://%s/ws\n", ui.RenderAccent("📡"), ownerID, server.Addr())
	fmt.Println("Press Ctrl+C to stop...")

	return followKinds(ctx, stop, svc, ownerID, kinds, &feedSink{server: server})
}
