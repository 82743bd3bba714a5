// Package mongostore implements the storage adapter on MongoDB. Every record
// is one document in the "documents" collection; a second "collections"
// collection remembers which kinds have already been seeded.
//
// Writes are conditional on the stored version, so a stale writer fails with
// a conflict. MongoDB only offers multi-document transactions on replica
// sets, so a save first checks every expected version and then writes; a
// writer racing between the two steps is still caught by the conditional
// write, but changes applied before it are kept.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Compile-time check that Store satisfies store.Adapter.
var _ store.Adapter = (*Store)(nil)

const (
	documentsCollection   = "documents"
	collectionsCollection = "collections"
)

// document is the stored form of one record.
type document struct {
	Key     string `bson:"_id"`
	Kind    string `bson:"kind"`
	ID      string `bson:"rid"`
	Seq     int64  `bson:"seq"`
	Version int64  `bson:"version"`
	Body    bson.M `bson:"body"`
}

// collectionMarker records that a kind exists and has been seeded.
type collectionMarker struct {
	Kind      string    `bson:"_id"`
	CreatedAt time.Time `bson:"createdAt"`
}

// Store is a MongoDB-backed store.Adapter.
type Store struct {
	client      *mongo.Client
	documents   *mongo.Collection
	collections *mongo.Collection
	seeds       map[string][]domain.Record
	logger      *slog.Logger
}

// Connect dials uri and returns a Store using database.
func Connect(ctx context.Context, uri, database string, seeds map[string][]domain.Record, logger *slog.Logger) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := New(client, database, seeds, logger)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string, seeds map[string][]domain.Record, logger *slog.Logger) *Store {
	if client == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("client cannot be nil for mongostore")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for mongostore")
	}
	db := client.Database(database)
	return &Store{
		client:      client,
		documents:   db.Collection(documentsCollection),
		collections: db.Collection(collectionsCollection),
		seeds:       seeds,
		logger:      logger.With(slog.String("component", "mongostore")),
	}
}

// EnsureIndexes creates the index used to list a kind in insertion order.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.documents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetName("kind_seq"),
	})
	if err != nil {
		return fmt.Errorf("failed to create documents index: %w", err)
	}
	return nil
}

// Load implements store.Adapter.
func (s *Store) Load(ctx context.Context, kind string) (*store.Collection, error) {
	if err := s.ensureCollection(ctx, kind); err != nil {
		return nil, store.StorageFailure(kind, "seed", err)
	}

	cursor, err := s.documents.Find(ctx,
		bson.D{{Key: "kind", Value: kind}},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "rid", Value: 1}}))
	if err != nil {
		return nil, store.StorageFailure(kind, "load", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	records := []domain.Record{}
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, store.StorageFailure(kind, "load", fmt.Errorf("%w: %v", store.ErrInvalidEntity, err))
		}
		records = append(records, fromBSON(doc.Body))
	}
	if err := cursor.Err(); err != nil {
		return nil, store.StorageFailure(kind, "load", err)
	}

	return store.NewCollection(kind, records), nil
}

func (s *Store) ensureCollection(ctx context.Context, kind string) error {
	_, err := s.collections.InsertOne(ctx, collectionMarker{Kind: kind, CreatedAt: time.Now().UTC()})
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return err
	}

	seeds := s.seeds[kind]
	if len(seeds) > 0 {
		docs := make([]interface{}, 0, len(seeds))
		for i, r := range seeds {
			docs = append(docs, newDocument(kind, r, int64(i+1)))
		}
		if _, err := s.documents.InsertMany(ctx, docs); err != nil && !mongo.IsDuplicateKeyError(err) {
			return err
		}
	}
	s.logger.InfoContext(ctx, "created collection",
		slog.String("kind", kind),
		slog.Int("seed_records", len(seeds)))
	return nil
}

// Save implements store.Adapter.
func (s *Store) Save(ctx context.Context, c *store.Collection) error {
	changes := c.Changes()
	if changes.Empty() {
		return nil
	}

	if err := s.verify(ctx, c.Kind, changes); err != nil {
		return err
	}

	for _, u := range changes.Upserts {
		if err := s.upsert(ctx, c.Kind, u); err != nil {
			return err
		}
	}
	for _, d := range changes.Deletes {
		res, err := s.documents.DeleteOne(ctx, bson.D{
			{Key: "_id", Value: key(c.Kind, d.ID)},
			{Key: "version", Value: d.Expected},
		})
		if err != nil {
			return store.StorageFailure(c.Kind, "save", err)
		}
		if res.DeletedCount == 0 {
			return store.ConflictFailure(c.Kind, "save", d.ID, d.Expected, s.currentVersion(ctx, c.Kind, d.ID))
		}
	}
	return nil
}

// verify checks every expected version before anything is written. Inserts
// expect the record to be absent; updates and deletes expect it present at
// the version it was loaded with.
func (s *Store) verify(ctx context.Context, kind string, changes store.Changeset) error {
	type want struct {
		insert  bool
		version int64
	}
	expected := make(map[string]want, len(changes.Upserts)+len(changes.Deletes))
	for _, u := range changes.Upserts {
		expected[u.Record.ID()] = want{insert: u.Insert, version: u.Expected}
	}
	for _, d := range changes.Deletes {
		expected[d.ID] = want{version: d.Expected}
	}
	keys := make([]string, 0, len(expected))
	for id := range expected {
		keys = append(keys, key(kind, id))
	}

	cursor, err := s.documents.Find(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: keys}}}},
		options.Find().SetProjection(bson.D{{Key: "rid", Value: 1}, {Key: "version", Value: 1}}))
	if err != nil {
		return store.StorageFailure(kind, "save", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	found := make(map[string]int64, len(expected))
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return store.StorageFailure(kind, "save", err)
		}
		found[doc.ID] = doc.Version
	}
	if err := cursor.Err(); err != nil {
		return store.StorageFailure(kind, "save", err)
	}

	for id, w := range expected {
		got, exists := found[id]
		switch {
		case w.insert && exists:
			return store.ConflictFailure(kind, "save", id, 0, got)
		case !w.insert && !exists:
			return store.ConflictFailure(kind, "save", id, w.version, 0)
		case !w.insert && got != w.version:
			return store.ConflictFailure(kind, "save", id, w.version, got)
		}
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, kind string, u store.Upsert) error {
	id := u.Record.ID()

	if u.Insert {
		seq, err := s.nextSeq(ctx, kind)
		if err != nil {
			return store.StorageFailure(kind, "save", err)
		}
		_, err = s.documents.InsertOne(ctx, newDocument(kind, u.Record, seq))
		if mongo.IsDuplicateKeyError(err) {
			return store.ConflictFailure(kind, "save", id, 0, s.currentVersion(ctx, kind, id))
		}
		if err != nil {
			return store.StorageFailure(kind, "save", err)
		}
		return nil
	}

	res, err := s.documents.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: key(kind, id)}, {Key: "version", Value: u.Expected}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "version", Value: u.Record.Version()},
			{Key: "body", Value: toBSON(u.Record)},
		}}})
	if err != nil {
		return store.StorageFailure(kind, "save", err)
	}
	if res.MatchedCount == 0 {
		return store.ConflictFailure(kind, "save", id, u.Expected, s.currentVersion(ctx, kind, id))
	}
	return nil
}

func (s *Store) nextSeq(ctx context.Context, kind string) (int64, error) {
	var last document
	err := s.documents.FindOne(ctx,
		bson.D{{Key: "kind", Value: kind}},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}).SetProjection(bson.D{{Key: "seq", Value: 1}}),
	).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return last.Seq + 1, nil
}

func (s *Store) currentVersion(ctx context.Context, kind, id string) int64 {
	var doc document
	if err := s.documents.FindOne(ctx, bson.D{{Key: "_id", Value: key(kind, id)}}).Decode(&doc); err != nil {
		return 0
	}
	return doc.Version
}

// Close implements store.Adapter.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func key(kind, id string) string {
	return kind + "/" + id
}

func newDocument(kind string, r domain.Record, seq int64) document {
	return document{
		Key:     key(kind, r.ID()),
		Kind:    kind,
		ID:      r.ID(),
		Seq:     seq,
		Version: r.Version(),
		Body:    toBSON(r),
	}
}
