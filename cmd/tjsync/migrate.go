package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mschirtzinger/tradejournal/internal/journal"
	"github.com/mschirtzinger/tradejournal/internal/journal/localdata"
	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
	"github.com/mschirtzinger/tradejournal/internal/ui"
)

var (
	migrateDir    string
	migrateDryRun bool
	migrateForce  bool
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "sync",
	Short:   "Upload journal data kept on this device",
	Long: `Upload trades, accounts, strategies, tags, settings and profile that were
recorded before signing in.

Records keep their ids; records without one get a generated id. Collections
are uploaded concurrently in batches of migration.batch_size. When a batch
fails, the batches before it stay uploaded: the local file of that
collection is rewritten to hold only the records still to upload (the
original is kept as a .backup file) and running migrate again resumes.

A migrated.json marker prevents uploading twice; use --force to upload
again.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDir, "dir", "", "local data directory (default migration.local_dir)")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "show what would be uploaded without writing")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "upload even if a completed migration is recorded")
}

// uploadResult collects per-kind outcomes from concurrent uploads.
type uploadResult struct {
	mu     sync.Mutex
	counts map[string]int
	done   []string
}

func (r *uploadResult) finish(kind schema.Kind, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[string(kind)] = n
	r.done = append(r.done, string(kind))
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ownerID, err := resolveOwner()
	if err != nil {
		return err
	}
	dir := migrateDir
	if dir == "" {
		dir = cfg.Migration.LocalDir
	}

	marker, err := localdata.ReadMarker(dir)
	if err != nil {
		return err
	}
	if marker != nil && marker.OwnerID != ownerID && !migrateForce {
		return fmt.Errorf("local data was uploaded for owner %q; use --force to upload it for %q", marker.OwnerID, ownerID)
	}
	if marker != nil && marker.Complete && !migrateForce {
		fmt.Printf("%s Already migrated for %s at %s\n", ui.RenderPass("✓"), marker.OwnerID, marker.MigratedAt.Format(time.RFC3339))
		return nil
	}
	if migrateForce || (marker != nil && marker.OwnerID != ownerID) {
		marker = nil
	}

	data, err := localdata.Load(dir)
	if err != nil {
		return err
	}
	if data.Empty() {
		fmt.Printf("%s No local data in %s\n", ui.RenderWarn("⚠"), dir)
		return nil
	}

	if migrateDryRun {
		fmt.Print(ui.Section("Would upload for "+ownerID, countRows(data, marker)))
		return nil
	}

	ctx := cmd.Context()
	svc, store, err := openService(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("%s Uploading %s for %s...\n", ui.RenderAccent("🔄"), dir, ownerID)
	start := time.Now()
	result := &uploadResult{counts: make(map[string]int)}
	if marker != nil {
		result.done = append(result.done, marker.Done...)
		for k, n := range marker.Counts {
			result.counts[k] = n
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	upload := func(kind schema.Kind, fn func(context.Context) (int, error)) {
		if marker.IsDone(kind) {
			return
		}
		g.Go(func() error {
			n, err := fn(gctx)
			if err != nil {
				return err
			}
			result.finish(kind, n)
			return nil
		})
	}

	upload(schema.KindTrade, func(ctx context.Context) (int, error) {
		return uploadKind(ctx, dir, ownerID, data.Trades, svc.UploadLocalTrades)
	})
	upload(schema.KindAccount, func(ctx context.Context) (int, error) {
		return uploadKind(ctx, dir, ownerID, data.Accounts, svc.UploadLocalAccounts)
	})
	upload(schema.KindStrategy, func(ctx context.Context) (int, error) {
		return uploadKind(ctx, dir, ownerID, data.Strategies, svc.UploadLocalStrategies)
	})
	upload(schema.KindTag, func(ctx context.Context) (int, error) {
		return uploadKind(ctx, dir, ownerID, data.Tags, svc.UploadLocalTags)
	})
	if data.Settings != nil {
		upload(schema.KindSettings, func(ctx context.Context) (int, error) {
			return 1, svc.SaveSettings(ctx, ownerID, *data.Settings)
		})
	}
	if data.Profile != nil {
		upload(schema.KindProfile, func(ctx context.Context) (int, error) {
			return 1, svc.SaveProfile(ctx, ownerID, *data.Profile)
		})
	}

	uploadErr := g.Wait()
	sort.Strings(result.done)
	next := localdata.Marker{
		OwnerID:    ownerID,
		MigratedAt: time.Now().UTC(),
		Counts:     result.counts,
		Complete:   uploadErr == nil,
		Done:       result.done,
	}
	if err := localdata.MarkMigrated(dir, next); err != nil {
		return errors.Join(uploadErr, err)
	}

	if uploadErr != nil {
		fmt.Printf("%s Migration incomplete: %v\n", ui.RenderFail("✗"), uploadErr)
		if len(result.done) > 0 {
			fmt.Printf("   Uploaded: %s\n", strings.Join(result.done, ", "))
		}
		fmt.Printf("   Run 'tjsync migrate' again to resume\n")
		return uploadErr
	}

	fmt.Printf("%s Migration complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
	fmt.Print(ui.Section("Uploaded for "+ownerID, markerRows(next)))
	return nil
}

// localRecord is the pointer type of a collection record.
type localRecord[T any] interface {
	*T
	schema.Record
	RecordID() string
}

// uploadKind uploads one collection. After a partial failure the local file
// is rewritten with the records that are still to upload, keeping the ids
// they were assigned.
func uploadKind[T any, P localRecord[T]](
	ctx context.Context,
	dir, ownerID string,
	records []T,
	upload func(context.Context, string, []T) ([]T, error),
) (int, error) {
	out, err := upload(ctx, ownerID, records)
	if err == nil {
		return len(out), nil
	}
	var pme *journal.PartialMigrationError
	if !errors.As(err, &pme) {
		return 0, err
	}

	remaining := journal.Unmigrated[T](err)
	objects := make([]map[string]any, len(remaining))
	for i := range remaining {
		p := P(&remaining[i])
		obj := p.ToDoc()
		obj[schema.FieldID] = p.RecordID()
		objects[i] = obj
	}
	backup, rerr := localdata.Rewrite(dir, pme.Kind, objects)
	if rerr != nil {
		return 0, errors.Join(err, rerr)
	}
	logger.Warn("partial upload, local file rewritten with remaining records",
		zap.String("kind", string(pme.Kind)),
		zap.Int("batch", pme.FailedBatch),
		zap.Int("count", len(remaining)),
		zap.String("backup", backup))
	return 0, err
}

func countRows(data *localdata.Data, marker *localdata.Marker) [][2]string {
	counts := data.Counts()
	kinds := append(append([]schema.Kind{}, schema.CollectionKinds...), schema.KindSettings, schema.KindProfile)
	rows := make([][2]string, 0, len(kinds))
	for _, kind := range kinds {
		value := fmt.Sprintf("%d", counts[kind])
		if marker.IsDone(kind) {
			value += " " + ui.RenderMuted("(already uploaded)")
		}
		rows = append(rows, [2]string{string(kind), value})
	}
	return rows
}

func markerRows(m localdata.Marker) [][2]string {
	keys := make([]string, 0, len(m.Counts))
	for k := range m.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][2]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, [2]string{k, fmt.Sprintf("%d", m.Counts[k])})
	}
	return rows
}
