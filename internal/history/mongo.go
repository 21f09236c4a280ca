package history

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

const (
	collectionName = "sessions"
	defaultLimit   = 20
)

type recordDoc struct {
	ID         string   `bson:"_id"`
	Locator    string   `bson:"locator"`
	Title      string   `bson:"title"`
	StartedAt  int64    `bson:"startedAt"`
	EndedAt    int64    `bson:"endedAt"`
	Outcome    string   `bson:"outcome"`
	ExitCode   int      `bson:"exitCode"`
	MediaFiles []string `bson:"mediaFiles,omitempty"`
}

type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect dials uri with the otel command monitor and checks the primary answers.
func Connect(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	opts := options.Client().ApplyURI(uri).SetMonitor(otelmongo.NewMonitor())
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return NewMongoStore(client, dbName), nil
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	return &MongoStore{client: client, collection: client.Database(dbName).Collection(collectionName)}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "startedAt", Value: -1}},
	})
	return err
}

func (s *MongoStore) Save(ctx context.Context, rec Record) error {
	doc := toDoc(rec)
	_, err := s.collection.ReplaceOne(
		ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []recordDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, fromDoc(doc))
	}
	return records, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func toDoc(rec Record) recordDoc {
	doc := recordDoc{
		ID:         rec.ID,
		Locator:    rec.Locator,
		Title:      rec.Title,
		StartedAt:  rec.StartedAt.UnixMilli(),
		Outcome:    string(rec.Outcome),
		ExitCode:   rec.ExitCode,
		MediaFiles: rec.MediaFiles,
	}
	if !rec.EndedAt.IsZero() {
		doc.EndedAt = rec.EndedAt.UnixMilli()
	}
	return doc
}

func fromDoc(doc recordDoc) Record {
	rec := Record{
		ID:         doc.ID,
		Locator:    doc.Locator,
		Title:      doc.Title,
		StartedAt:  time.UnixMilli(doc.StartedAt).UTC(),
		Outcome:    Outcome(doc.Outcome),
		ExitCode:   doc.ExitCode,
		MediaFiles: doc.MediaFiles,
	}
	if doc.EndedAt != 0 {
		rec.EndedAt = time.UnixMilli(doc.EndedAt).UTC()
	}
	return rec
}
