// Package sqlite implements docstore.Store on SQLite and libSQL.
//
// Local databases are opened with the embedded ncruces/go-sqlite3 driver in
// WAL mode, so several processes can share one file. Remote libSQL (Turso)
// databases are reached through the "libsql" driver, which the binary must
// register by importing github.com/tursodatabase/go-libsql.
//
// Every document lives in one table keyed by its full path:
//
//	documents(seq, path, collection, doc_id, data, create_time, update_time)
//
// seq is assigned on first insert and never changes, which gives each
// collection a stable storage order. Merges are computed in Go inside the
// write transaction, so batches are atomic.
//
// Watches are driven by an in-process hub that is signalled after every
// commit. Writes from other processes are picked up through fsnotify on the
// database directory, and remote databases are re-read every PollInterval.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
)

// Config configures a Store.
type Config struct {
	// Driver is the database/sql driver name. Empty selects "libsql" for
	// remote DSNs and "sqlite3" otherwise.
	Driver string

	// AuthToken is appended to remote libSQL DSNs.
	AuthToken string

	// WatchFiles enables fsnotify on the database directory so watches see
	// writes made by other processes. Ignored for remote databases.
	WatchFiles bool

	// Debounce coalesces bursts of file events.
	Debounce time.Duration

	// PollInterval re-reads watched collections periodically. Zero disables
	// polling for local files; remote databases default to 2s.
	PollInterval time.Duration

	// RetryDelay is how long a watch waits before re-reading after a
	// transient failure.
	RetryDelay time.Duration

	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration

	// Logger receives watch diagnostics. Nil disables logging.
	Logger *zap.Logger

	// Now returns the commit time used for timestamps. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default configuration for local databases.
func DefaultConfig() *Config {
	return &Config{
		WatchFiles:  true,
		Debounce:    50 * time.Millisecond,
		RetryDelay:  500 * time.Millisecond,
		BusyTimeout: 5 * time.Second,
	}
}

// Store is a docstore.Store backed by SQLite or libSQL.
type Store struct {
	conn   *sql.DB
	dsn    string
	remote bool
	config *Config
	logger *zap.Logger

	hub   *hub
	files *fileWatcher

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ docstore.Store = (*Store)(nil)

// Open opens the database at dsn with the default configuration and
// creates the schema if needed.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := sqlite.Open(".tradejournal/journal.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(dsn string) (*Store, error) {
	return OpenWithConfig(dsn, DefaultConfig())
}

// OpenWithConfig opens the database at dsn. dsn is either a file path or a
// libsql://, https:// or wss:// URL.
func OpenWithConfig(dsn string, config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	remote := IsRemote(dsn)
	driverName := cfg.Driver
	if driverName == "" {
		driverName = "sqlite3"
		if remote {
			driverName = "libsql"
		}
	}

	var connStr string
	if remote {
		connStr = withAuthToken(dsn, cfg.AuthToken)
		if cfg.PollInterval == 0 {
			cfg.PollInterval = 2 * time.Second
		}
	} else {
		path := strings.TrimPrefix(dsn, "file:")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path
		connStr = fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
			path, cfg.BusyTimeout.Milliseconds())
	}

	conn, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:   conn,
		dsn:    dsn,
		remote: remote,
		config: &cfg,
		logger: cfg.Logger.With(zap.String("store", "sqlite")),
		hub:    newHub(),
		done:   make(chan struct{}),
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if !remote && cfg.WatchFiles {
		files, err := newFileWatcher(dsn, cfg.Debounce, s.hub.notifyAll, s.logger)
		if err != nil {
			s.logger.Warn("cross-process change detection disabled", zap.Error(err))
		} else {
			s.files = files
		}
	}

	if cfg.PollInterval > 0 {
		s.wg.Add(1)
		go s.poll(cfg.PollInterval)
	}

	return s, nil
}

// IsRemote reports whether dsn names a remote libSQL database.
func IsRemote(dsn string) bool {
	for _, prefix := range []string{"libsql://", "https://", "http://", "wss://", "ws://"} {
		if strings.HasPrefix(dsn, prefix) {
			return true
		}
	}
	return false
}

func withAuthToken(dsn, token string) string {
	if token == "" {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	q := u.Query()
	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close stops all watches and closes the database connection. Local
// databases are checkpointed first. Close must not be called from a watch
// handler.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	if s.files != nil {
		if err := s.files.stop(); err != nil {
			s.logger.Warn("failed to stop file watcher", zap.Error(err))
		}
	}
	s.wg.Wait()

	if !s.remote {
		if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Warn("failed to checkpoint WAL", zap.Error(err))
		}
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		collection TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		data TEXT NOT NULL,  -- JSON, timestamps tagged as {"$time": ...}
		create_time TEXT NOT NULL,
		update_time TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection, seq);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const selectColumns = `seq, path, doc_id, data, create_time, update_time`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (docstore.Document, error) {
	var (
		doc                    docstore.Document
		data                   string
		createTime, updateTime string
	)
	if err := row.Scan(&doc.Seq, &doc.Path, &doc.ID, &data, &createTime, &updateTime); err != nil {
		return doc, err
	}
	d, err := docstore.DecodeJSON([]byte(data))
	if err != nil {
		return doc, fmt.Errorf("failed to decode %s: %w", doc.Path, err)
	}
	doc.Data = d
	doc.CreateTime, _ = time.Parse(timeLayout, createTime)
	doc.UpdateTime, _ = time.Parse(timeLayout, updateTime)
	return doc, nil
}

// Get returns the document at path.
func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	if err := docstore.CheckDocPath("get", path); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, docstore.NewError("get", path, docstore.CodeClosed, nil)
	}

	row := s.conn.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM documents WHERE path = ?`, path)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.NewError("get", path, docstore.CodeNotFound, nil)
	}
	if err != nil {
		return nil, classify("get", path, err)
	}
	return &doc, nil
}

// Query returns every document of q.Collection in query order.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := docstore.CheckCollectionPath("query", q.Collection); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, docstore.NewError("query", q.Collection, docstore.CodeClosed, nil)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE collection = ? ORDER BY seq`, q.Collection)
	if err != nil {
		return nil, classify("query", q.Collection, err)
	}
	defer rows.Close()

	docs := []docstore.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, classify("query", q.Collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query", q.Collection, err)
	}

	docstore.SortDocuments(docs, q)
	return docs, nil
}

// Set writes data to path, replacing or merging per opts.
func (s *Store) Set(ctx context.Context, path string, data docstore.Doc, opts ...docstore.SetOption) error {
	if err := docstore.CheckDocPath("set", path); err != nil {
		return err
	}
	return s.commit(ctx, "set", []docstore.Write{{
		Op: docstore.OpSet, Path: path, Data: data, Merge: docstore.IsMerge(opts...),
	}})
}

// Update replaces the given top-level fields of an existing document.
func (s *Store) Update(ctx context.Context, path string, fields docstore.Doc) error {
	if err := docstore.CheckDocPath("update", path); err != nil {
		return err
	}
	return s.commit(ctx, "update", []docstore.Write{{Op: docstore.OpUpdate, Path: path, Data: fields}})
}

// Delete removes the document at path.
// Returns nil if the document doesn't exist (idempotent).
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := docstore.CheckDocPath("delete", path); err != nil {
		return err
	}
	return s.commit(ctx, "delete", []docstore.Write{{Op: docstore.OpDelete, Path: path}})
}

// Batch starts an atomic write batch.
func (s *Store) Batch() *docstore.Batch {
	return docstore.NewBatch(func(ctx context.Context, writes []docstore.Write) error {
		return s.commit(ctx, "commit", writes)
	})
}
