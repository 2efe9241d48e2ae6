// Package localdata reads journal data that was kept on the device before
// the owner signed in, and records when it has been uploaded.
//
// The directory layout is one JSON object per line for each collection and
// a plain JSON object for each singleton:
//
//	trades.jsonl  accounts.jsonl  strategies.jsonl  tags.jsonl
//	settings.json profile.json
//
// Missing files are treated as empty.
package localdata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mschirtzinger/tradejournal/internal/journal/paths"
	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
)

// Data is the content of a local data directory.
type Data struct {
	Trades     []schema.Trade
	Accounts   []schema.Account
	Strategies []schema.Strategy
	Tags       []schema.Tag
	Settings   *schema.Settings
	Profile    *schema.Profile
}

// Counts returns the number of records per kind.
func (d *Data) Counts() map[schema.Kind]int {
	counts := map[schema.Kind]int{
		schema.KindTrade:    len(d.Trades),
		schema.KindAccount:  len(d.Accounts),
		schema.KindStrategy: len(d.Strategies),
		schema.KindTag:      len(d.Tags),
	}
	if d.Settings != nil {
		counts[schema.KindSettings] = 1
	}
	if d.Profile != nil {
		counts[schema.KindProfile] = 1
	}
	return counts
}

// Empty reports whether there is nothing to upload.
func (d *Data) Empty() bool {
	for _, n := range d.Counts() {
		if n > 0 {
			return false
		}
	}
	return true
}

// Load reads the local data in dir.
func Load(dir string) (*Data, error) {
	var (
		data Data
		err  error
	)
	if data.Trades, err = loadCollection[schema.Trade](dir, schema.KindTrade); err != nil {
		return nil, err
	}
	if data.Accounts, err = loadCollection[schema.Account](dir, schema.KindAccount); err != nil {
		return nil, err
	}
	if data.Strategies, err = loadCollection[schema.Strategy](dir, schema.KindStrategy); err != nil {
		return nil, err
	}
	if data.Tags, err = loadCollection[schema.Tag](dir, schema.KindTag); err != nil {
		return nil, err
	}
	if data.Settings, err = loadSingleton[schema.Settings](dir, schema.KindSettings); err != nil {
		return nil, err
	}
	if data.Profile, err = loadSingleton[schema.Profile](dir, schema.KindProfile); err != nil {
		return nil, err
	}
	return &data, nil
}

// FileName returns the local file name for kind.
func FileName(kind schema.Kind) string {
	if kind.Singleton() {
		return paths.CollectionName(kind) + ".json"
	}
	return paths.CollectionName(kind) + ".jsonl"
}

func loadCollection[T any](dir string, kind schema.Kind) ([]T, error) {
	objects, err := FromJSONL(filepath.Join(dir, FileName(kind)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	records := make([]T, 0, len(objects))
	for i, obj := range objects {
		var rec T
		if err := schema.Decode(obj, &rec); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", FileName(kind), i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func loadSingleton[T any](dir string, kind schema.Kind) (*T, error) {
	// #nosec G304 - path built from the configured data directory
	raw, err := os.ReadFile(filepath.Join(dir, FileName(kind)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", FileName(kind), err)
	}
	var obj map[string]any
	if err := unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", FileName(kind), err)
	}
	if obj == nil {
		return nil, nil
	}
	var rec T
	if err := schema.Decode(obj, &rec); err != nil {
		return nil, fmt.Errorf("%s: %w", FileName(kind), err)
	}
	return &rec, nil
}

// FromJSONL reads one JSON object per line. Numbers are kept as
// json.Number so prices keep their exact decimal form.
func FromJSONL(path string) ([]map[string]any, error) {
	// #nosec G304 - path built from the configured data directory
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	decoder.UseNumber()

	var objects []map[string]any
	for line := 1; ; line++ {
		var obj map[string]any
		if err := decoder.Decode(&obj); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d of %s: %w", line, filepath.Base(path), err)
		}
		if obj != nil {
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

// Rewrite replaces the file of a collection kind with objects, one per
// line. The previous file is kept as a timestamped backup whose path is
// returned.
func Rewrite(dir string, kind schema.Kind, objects []map[string]any) (string, error) {
	target := filepath.Join(dir, FileName(kind))

	var backup string
	// #nosec G304 - path built from the configured data directory
	if input, err := os.ReadFile(target); err == nil {
		backup = target + ".backup." + time.Now().Format("20060102-150405")
		if err := os.WriteFile(backup, input, 0600); err != nil {
			return "", fmt.Errorf("failed to create backup: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to read input for backup: %w", err)
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, obj := range objects {
		if err := encoder.Encode(obj); err != nil {
			return "", fmt.Errorf("failed to marshal %s record: %w", kind, err)
		}
	}

	// Write atomically via temp file
	tmpPath := target + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0600); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}
	return backup, nil
}

func unmarshal(raw []byte, v any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	return decoder.Decode(v)
}

// ===== Migration marker =====

// MarkerFile is the name of the file that records a completed upload.
const MarkerFile = "migrated.json"

// Marker records an upload of the local data for an owner.
type Marker struct {
	OwnerID    string         `json:"owner_id"`
	MigratedAt time.Time      `json:"migrated_at"`
	Counts     map[string]int `json:"counts,omitempty"`

	// Complete is false after an upload that failed part way. Done lists
	// the kinds that were fully uploaded by then.
	Complete bool     `json:"complete"`
	Done     []string `json:"done,omitempty"`
}

// IsDone reports whether kind was fully uploaded.
func (m *Marker) IsDone(kind schema.Kind) bool {
	if m == nil {
		return false
	}
	if m.Complete {
		return true
	}
	for _, k := range m.Done {
		if k == string(kind) {
			return true
		}
	}
	return false
}

// MarkMigrated writes the marker to dir.
func MarkMigrated(dir string, m Marker) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal marker: %w", err)
	}

	// Write atomically via temp file
	markerPath := filepath.Join(dir, MarkerFile)
	tmpPath := markerPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, markerPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// ReadMarker returns the marker in dir, or nil if there is none.
func ReadMarker(dir string) (*Marker, error) {
	// #nosec G304 - path built from the configured data directory
	raw, err := os.ReadFile(filepath.Join(dir, MarkerFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read marker: %w", err)
	}
	var m Marker
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("invalid marker: %w", err)
	}
	return &m, nil
}
