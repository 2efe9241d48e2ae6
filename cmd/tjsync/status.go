package main

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
	"github.com/mschirtzinger/tradejournal/internal/journal/localdata"
	"github.com/mschirtzinger/tradejournal/internal/journal/paths"
	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
	"github.com/mschirtzinger/tradejournal/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show store, owner and local data status",
	Long: `Display the configured store, the record counts stored for the owner, and
the local data waiting to be migrated.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Printf("\n%s Trade Journal Sync Status\n\n", ui.RenderAccent("📊"))

	fmt.Print(ui.Section("Store", [][2]string{
		{"driver", cfg.Store.Driver},
		{"dsn", redact(cfg.Store.DSN)},
		{"offline layer", fmt.Sprintf("%t", cfg.Offline.Enabled)},
		{"batch size", fmt.Sprintf("%d", cfg.Migration.BatchSize)},
	}))
	fmt.Println()

	ownerID, ownerErr := resolveOwner()
	if ownerErr != nil {
		fmt.Printf("%s Not signed in: %v\n\n", ui.RenderWarn("⚠"), ownerErr)
	} else {
		rows, err := storeRows(cmd, ownerID)
		if err != nil {
			fmt.Printf("%s Store unavailable: %v\n\n", ui.RenderFail("✗"), err)
		} else {
			fmt.Print(ui.Section("Stored for "+ownerID, rows))
			fmt.Println()
		}
	}

	dir := cfg.Migration.LocalDir
	data, err := localdata.Load(dir)
	if err != nil {
		return err
	}
	marker, err := localdata.ReadMarker(dir)
	if err != nil {
		return err
	}
	rows := countRows(data, marker)
	switch {
	case marker == nil:
		rows = append(rows, [2]string{"migrated", ui.RenderWarn("no")})
	case marker.Complete:
		rows = append(rows, [2]string{"migrated", ui.RenderPass(fmt.Sprintf("yes, for %s at %s", marker.OwnerID, marker.MigratedAt.Format(time.RFC3339)))})
	default:
		rows = append(rows, [2]string{"migrated", ui.RenderWarn("partially, run 'tjsync migrate' to resume")})
	}
	fmt.Print(ui.Section("Local data ("+dir+")", rows))
	return nil
}

func storeRows(cmd *cobra.Command, ownerID string) ([][2]string, error) {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	var rows [][2]string
	for _, kind := range schema.CollectionKinds {
		docs, err := store.Query(ctx, docstore.Query{Collection: paths.Collection(ownerID, kind)})
		if err != nil {
			return nil, err
		}
		rows = append(rows, [2]string{paths.CollectionName(kind), fmt.Sprintf("%d", len(docs))})
	}
	for _, kind := range []schema.Kind{schema.KindSettings, schema.KindProfile} {
		value := ui.RenderPass("present")
		if _, err := store.Get(ctx, paths.Singleton(ownerID, kind)); errors.Is(err, docstore.ErrNotFound) {
			value = ui.RenderMuted("absent")
		} else if err != nil {
			return nil, err
		}
		rows = append(rows, [2]string{string(kind), value})
	}
	return rows, nil
}

// redact hides credentials in store URLs.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	q := u.Query()
	if q.Has("authToken") {
		q.Set("authToken", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
