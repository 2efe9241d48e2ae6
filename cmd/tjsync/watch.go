package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mschirtzinger/tradejournal/internal/auth"
	"github.com/mschirtzinger/tradejournal/internal/docstore"
	"github.com/mschirtzinger/tradejournal/internal/journal"
	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
)

var watchKinds []string

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Stream journal snapshots as JSON lines",
	Long: `Subscribe to the owner's collections and print every snapshot as one JSON
object per line:

  {"owner":"u1","kind":"trade","pending":false,"fromCache":false,"records":[...]}

"pending" is true while the snapshot includes writes the store has not
acknowledged and "fromCache" while it was served from the local cache.
Runs until interrupted.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchKinds, "kinds",
		[]string{"trades", "accounts", "strategies", "tags", "settings", "profile"},
		"collections to watch")
}

// watchEvent is one line of watch output.
type watchEvent struct {
	Owner     string           `json:"owner"`
	Kind      schema.Kind      `json:"kind"`
	Pending   bool             `json:"pending"`
	FromCache bool             `json:"fromCache"`
	Records   []map[string]any `json:"records"`
}

// eventSink receives events from concurrent subscriptions.
type eventSink interface {
	write(e watchEvent)
}

// eventWriter prints events as JSON lines.
type eventWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (w *eventWriter) write(e watchEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(e); err != nil {
		logger.Warn("failed to write event", zap.Error(err))
	}
}

func recordObjects[T any, P localRecord[T]](records []T) []map[string]any {
	out := make([]map[string]any, len(records))
	for i := range records {
		p := P(&records[i])
		obj := p.ToDoc()
		obj[schema.FieldID] = p.RecordID()
		out[i] = obj
	}
	return out
}

func collectionEvent[T any, P localRecord[T]](w eventSink, ownerID string, kind schema.Kind) func(journal.Snapshot[T]) {
	return func(s journal.Snapshot[T]) {
		w.write(watchEvent{
			Owner:     ownerID,
			Kind:      kind,
			Pending:   s.HasPendingWrites,
			FromCache: s.FromCache,
			Records:   recordObjects[T, P](s.Records),
		})
	}
}

func singletonEvent[T schema.Settings | schema.Profile](w eventSink, ownerID string, kind schema.Kind) func(journal.ValueSnapshot[T]) {
	return func(s journal.ValueSnapshot[T]) {
		e := watchEvent{
			Owner:     ownerID,
			Kind:      kind,
			Pending:   s.HasPendingWrites,
			FromCache: s.FromCache,
			Records:   []map[string]any{},
		}
		if s.Value != nil {
			e.Records = append(e.Records, any(s.Value).(schema.Record).ToDoc())
		}
		w.write(e)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ownerID, err := resolveOwner()
	if err != nil {
		return err
	}
	kinds, err := parseKinds(watchKinds)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, store, err := openService(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	return followKinds(ctx, stop, svc, ownerID, kinds, &eventWriter{enc: json.NewEncoder(os.Stdout)})
}

func parseKinds(names []string) ([]schema.Kind, error) {
	kinds := make([]schema.Kind, 0, len(names))
	for _, name := range names {
		kind, err := schema.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// followKinds signs ownerID in and keeps one subscription per kind open for
// the signed-in owner until ctx is done. A subscription that ends with an
// error calls stop.
func followKinds(ctx context.Context, stop context.CancelFunc, svc *journal.Service, ownerID string, kinds []schema.Kind, w eventSink) error {
	session := auth.NewSession(logger)
	if err := session.SignIn(ownerID); err != nil {
		return err
	}

	return session.Follow(ctx, func(ctx context.Context, ownerID string) error {
		for _, kind := range kinds {
			sub, err := subscribeKind(ctx, svc, w, ownerID, kind)
			if err != nil {
				return fmt.Errorf("failed to watch %s: %w", kind, err)
			}
			context.AfterFunc(ctx, sub.Cancel)
			go func() {
				<-sub.Done()
				if err := sub.Err(); err != nil {
					logger.Error("watch ended", zap.String("kind", string(kind)), zap.Error(err))
					stop()
				}
			}()
		}
		logger.Info("watching", zap.String("owner", ownerID), zap.Int("count", len(kinds)))
		return nil
	})
}

func subscribeKind(ctx context.Context, svc *journal.Service, w eventSink, ownerID string, kind schema.Kind) (*docstore.Subscription, error) {
	switch kind {
	case schema.KindTrade:
		return svc.SubscribeToTrades(ctx, ownerID, collectionEvent[schema.Trade](w, ownerID, kind))
	case schema.KindAccount:
		return svc.SubscribeToAccounts(ctx, ownerID, collectionEvent[schema.Account](w, ownerID, kind))
	case schema.KindStrategy:
		return svc.SubscribeToStrategies(ctx, ownerID, collectionEvent[schema.Strategy](w, ownerID, kind))
	case schema.KindTag:
		return svc.SubscribeToTags(ctx, ownerID, collectionEvent[schema.Tag](w, ownerID, kind))
	case schema.KindSettings:
		return svc.SubscribeToSettings(ctx, ownerID, singletonEvent[schema.Settings](w, ownerID, kind))
	case schema.KindProfile:
		return svc.SubscribeToProfile(ctx, ownerID, singletonEvent[schema.Profile](w, ownerID, kind))
	}
	return nil, fmt.Errorf("unknown kind %q", kind)
}
