// Package mongostore implements docstore.Store on MongoDB.
//
// All documents live in one MongoDB collection keyed by their full path:
//
//	{_id: "owner/u1/trades/trade_x", collection: "owner/u1/trades",
//	 docId: "trade_x", data: {...}, seq, createTime, updateTime}
//
// Merges become dotted $set updates, ServerTimestamp becomes $currentDate
// and batches run in a multi-document transaction. Watches use change
// streams, so the deployment must be a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mschirtzinger/tradejournal/internal/docstore"
)

// Config configures a Store.
type Config struct {
	Database   string
	Collection string
	// Timeout bounds the initial ping.
	Timeout time.Duration
	Logger  *zap.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database:   "tradejournal",
		Collection: "documents",
		Timeout:    10 * time.Second,
	}
}

// Store is a docstore.Store backed by MongoDB.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

var _ docstore.Store = (*Store)(nil)

// Open connects to the MongoDB deployment at uri.
func Open(ctx context.Context, uri string, config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "collection", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create collection index: %w", err)
	}

	base, stop := context.WithCancel(context.Background())
	return &Store{
		client: client,
		coll:   coll,
		logger: cfg.Logger.With(zap.String("store", "mongo")),
		base:   base,
		cancel: stop,
	}, nil
}

// Close stops all watches and disconnects the client.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// record is the stored shape of a document.
type record struct {
	Path       string    `bson:"_id"`
	Collection string    `bson:"collection"`
	DocID      string    `bson:"docId"`
	Data       bson.M    `bson:"data"`
	Seq        int64     `bson:"seq"`
	CreateTime time.Time `bson:"createTime"`
	UpdateTime time.Time `bson:"updateTime"`
}

func (r record) document() docstore.Document {
	data := docstore.Doc{}
	for k, v := range r.Data {
		data[k] = fromBSON(v)
	}
	return docstore.Document{
		Path:       r.Path,
		ID:         r.DocID,
		Data:       data,
		Seq:        r.Seq,
		CreateTime: r.CreateTime.UTC(),
		UpdateTime: r.UpdateTime.UTC(),
	}
}

// fromBSON converts decoded BSON values to the plain Go values docstore
// uses elsewhere.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		return fromBSONMap(t)
	case map[string]any:
		return fromBSONMap(t)
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = fromBSON(e.Value)
		}
		return m
	case bson.A:
		return fromBSONSlice(t)
	case []any:
		return fromBSONSlice(t)
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case int32:
		return int64(t)
	case primitive.Decimal128:
		return t.String()
	default:
		return v
	}
}

func fromBSONMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fromBSON(v)
	}
	return out
}

func fromBSONSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = fromBSON(v)
	}
	return out
}

// Get returns the document at path.
func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	if err := docstore.CheckDocPath("get", path); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, docstore.NewError("get", path, docstore.CodeClosed, nil)
	}

	var r record
	err := s.coll.FindOne(ctx, bson.M{"_id": path}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, docstore.NewError("get", path, docstore.CodeNotFound, nil)
	}
	if err != nil {
		return nil, classify("get", path, err)
	}
	doc := r.document()
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

	cursor, err := s.coll.Find(ctx, bson.M{"collection": q.Collection},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, classify("query", q.Collection, err)
	}
	defer cursor.Close(ctx)

	var records []record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, classify("query", q.Collection, err)
	}

	docs := make([]docstore.Document, 0, len(records))
	for _, r := range records {
		docs = append(docs, r.document())
	}
	docstore.SortDocuments(docs, q)
	return docs, nil
}

// Set writes data to path, replacing or merging per opts.
func (s *Store) Set(ctx context.Context, path string, data docstore.Doc, opts ...docstore.SetOption) error {
	if err := docstore.CheckDocPath("set", path); err != nil {
		return err
	}
	return s.applyWrite(ctx, "set", docstore.Write{
		Op: docstore.OpSet, Path: path, Data: data, Merge: docstore.IsMerge(opts...),
	})
}

// Update replaces the given top-level fields of an existing document.
func (s *Store) Update(ctx context.Context, path string, fields docstore.Doc) error {
	if err := docstore.CheckDocPath("update", path); err != nil {
		return err
	}
	return s.applyWrite(ctx, "update", docstore.Write{Op: docstore.OpUpdate, Path: path, Data: fields})
}

// Delete removes the document at path.
// Returns nil if the document doesn't exist (idempotent).
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := docstore.CheckDocPath("delete", path); err != nil {
		return err
	}
	return s.applyWrite(ctx, "delete", docstore.Write{Op: docstore.OpDelete, Path: path})
}

// Batch starts a write batch that commits in one transaction.
func (s *Store) Batch() *docstore.Batch {
	return docstore.NewBatch(func(ctx context.Context, writes []docstore.Write) error {
		if s.isClosed() {
			return docstore.NewError("commit", "", docstore.CodeClosed, nil)
		}

		session, err := s.client.StartSession()
		if err != nil {
			return classify("commit", "", fmt.Errorf("failed to start session: %w", err))
		}
		defer session.EndSession(ctx)

		_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			for _, w := range writes {
				if err := s.applyWrite(sc, "commit", w); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
		return classify("commit", "", err)
	})
}

func (s *Store) applyWrite(ctx context.Context, op string, w docstore.Write) error {
	if s.isClosed() {
		return docstore.NewError(op, w.Path, docstore.CodeClosed, nil)
	}

	filter := bson.M{"_id": w.Path}
	now := time.Now().UTC()

	switch w.Op {
	case docstore.OpDelete:
		if _, err := s.coll.DeleteOne(ctx, filter); err != nil {
			return classify(op, w.Path, err)
		}
		return nil

	case docstore.OpUpdate:
		res, err := s.coll.UpdateOne(ctx, filter, buildUpdate(w.Data, false, now))
		if err != nil {
			return classify(op, w.Path, err)
		}
		if res.MatchedCount == 0 {
			return docstore.NewError(op, w.Path, docstore.CodeNotFound, nil)
		}
		return nil

	case docstore.OpSet:
		var update bson.M
		if w.Merge {
			update = buildUpdate(w.Data, true, now)
		} else {
			update = bson.M{
				"$set":         bson.M{"data": map[string]any(docstore.Resolve(w.Data, nil, now))},
				"$currentDate": bson.M{"updateTime": true},
			}
		}
		onInsert, _ := update["$setOnInsert"].(bson.M)
		if onInsert == nil {
			onInsert = bson.M{}
		}
		onInsert["collection"] = docstore.Parent(w.Path)
		onInsert["docId"] = docstore.Base(w.Path)
		onInsert["seq"] = now.UnixNano()
		onInsert["createTime"] = now
		update["$setOnInsert"] = onInsert

		if _, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return classify(op, w.Path, err)
		}
		return nil
	}

	return docstore.NewError(op, w.Path, docstore.CodeInvalidArgument, fmt.Errorf("unknown write op %d", int(w.Op)))
}

// buildUpdate turns a field map into update operators on the data
// subdocument. With merge set, nested maps become dotted paths so sibling
// fields survive; otherwise each top-level field is replaced whole.
// DefaultServerTimestamp is only honored when the write inserts the
// document.
func buildUpdate(fields docstore.Doc, merge bool, now time.Time) bson.M {
	set := bson.M{}
	unset := bson.M{}
	current := bson.M{"updateTime": true}
	onInsert := bson.M{}

	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := prefix + "." + k
			switch v {
			case docstore.DeleteField:
				unset[key] = ""
				continue
			case docstore.ServerTimestamp:
				current[key] = true
				continue
			case docstore.DefaultServerTimestamp:
				onInsert[key] = now
				continue
			}
			if merge {
				if sub, ok := docstore.AsMap(v); ok && len(sub) > 0 {
					walk(key, sub)
					continue
				}
			}
			set[key] = docstore.Resolve(docstore.Doc{"v": v}, nil, now)["v"]
		}
	}
	walk("data", fields)

	update := bson.M{"$currentDate": current}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(onInsert) > 0 {
		update["$setOnInsert"] = onInsert
	}
	return update
}

// WatchQuery delivers the full result of q now and after every change to
// the collection.
func (s *Store) WatchQuery(ctx context.Context, q docstore.Query, fn func(docstore.QuerySnapshot)) (*docstore.Subscription, error) {
	if err := docstore.CheckCollectionPath("watch", q.Collection); err != nil {
		return nil, err
	}
	pattern := "^" + regexp.QuoteMeta(q.Collection+"/") + "[^/]+$"
	return s.watch(ctx, q.Collection, pattern, func(ctx context.Context) ([]byte, func(), error) {
		docs, err := s.Query(ctx, q)
		if err != nil {
			return nil, nil, err
		}
		return docstore.Fingerprint(docs), func() { fn(docstore.QuerySnapshot{Docs: docs}) }, nil
	})
}

// WatchDoc delivers the document at path now and after every change to it.
func (s *Store) WatchDoc(ctx context.Context, path string, fn func(docstore.DocSnapshot)) (*docstore.Subscription, error) {
	if err := docstore.CheckDocPath("watch", path); err != nil {
		return nil, err
	}
	pattern := "^" + regexp.QuoteMeta(path) + "$"
	return s.watch(ctx, path, pattern, func(ctx context.Context) ([]byte, func(), error) {
		doc, err := s.Get(ctx, path)
		if errors.Is(err, docstore.ErrNotFound) {
			return []byte{}, func() { fn(docstore.DocSnapshot{}) }, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return docstore.Fingerprint([]docstore.Document{*doc}), func() { fn(docstore.DocSnapshot{Doc: doc}) }, nil
	})
}

type loadFunc func(ctx context.Context) (fingerprint []byte, deliver func(), err error)

// watch opens a change stream filtered to paths matching pattern and
// re-reads the target on every event.
func (s *Store) watch(ctx context.Context, target, pattern string, load loadFunc) (*docstore.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.NewError("watch", target, docstore.CodeClosed, nil)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	stopOnClose := context.AfterFunc(s.base, cancel)

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "documentKey._id", Value: bson.D{{Key: "$regex", Value: pattern}}},
		}}},
	}
	stream, err := s.coll.Watch(ctx, pipeline)
	if err != nil {
		stopOnClose()
		cancel()
		s.wg.Done()
		return nil, classify("watch", target, err)
	}

	sub := docstore.NewSubscription(cancel)
	logger := s.logger.With(zap.String("target", target))

	go func() {
		defer s.wg.Done()
		defer stopOnClose()
		defer stream.Close(context.Background())

		var last []byte
		delivered := false
		refresh := func() error {
			fingerprint, deliver, err := load(ctx)
			if err != nil {
				return err
			}
			if !delivered || string(fingerprint) != string(last) {
				last, delivered = fingerprint, true
				if sub.Active() {
					deliver()
				}
			}
			return nil
		}

		if err := refresh(); err != nil && ctx.Err() == nil {
			logger.Error("watch stopped", zap.Error(err))
			sub.Finish(err)
			return
		}
		for stream.Next(ctx) {
			if err := refresh(); err != nil {
				if ctx.Err() != nil {
					break
				}
				if docstore.IsTransient(err) {
					logger.Warn("watch read failed", zap.Error(err))
					continue
				}
				logger.Error("watch stopped", zap.Error(err))
				sub.Finish(err)
				return
			}
		}

		switch {
		case s.base.Err() != nil:
			sub.Finish(docstore.NewError("watch", target, docstore.CodeClosed, nil))
		case ctx.Err() != nil:
			sub.Finish(nil)
		default:
			sub.Finish(classify("watch", target, stream.Err()))
		}
	}()

	return sub, nil
}
