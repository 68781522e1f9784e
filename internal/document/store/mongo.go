package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists documents and event-log entries in two collections of
// the same database so a document mutation and its event entry commit in one
// multi-document transaction. Requires a replica set (standalone mongod does
// not support transactions).
type MongoStore struct {
	client *mongo.Client
	docs   *mongo.Collection
	events *mongo.Collection
}

// NewMongoStore wires the store to the given database and ensures the event
// poll index exists.
func NewMongoStore(client *mongo.Client, db string) *MongoStore {
	s := &MongoStore{
		client: client,
		docs:   client.Database(db).Collection("documents"),
		events: client.Database(db).Collection("eventlog"),
	}
	idx := mongo.IndexModel{Keys: bson.D{{Key: "topic", Value: 1}, {Key: "created", Value: 1}}}
	_, _ = s.events.Indexes().CreateOne(context.Background(), idx)
	return s
}

type mongoTx struct {
	s *MongoStore
}

func (s *MongoStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTx{s: s})
	})
	return err
}

func (t *mongoTx) Find(ctx context.Context, id string) (*Record, error) {
	return t.s.findRecord(ctx, id)
}

func (t *mongoTx) Insert(ctx context.Context, rec *Record) error {
	_, err := t.s.docs.InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	return err
}

func (t *mongoTx) Replace(ctx context.Context, rec *Record, expectedVersion int) error {
	res, err := t.s.docs.ReplaceOne(ctx, bson.M{"_id": rec.ID, "version": expectedVersion}, rec)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// distinguish a lost version race from a vanished record
		if _, ferr := t.s.findRecord(ctx, rec.ID); errors.Is(ferr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (t *mongoTx) Delete(ctx context.Context, id string) error {
	res, err := t.s.docs.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *mongoTx) AppendEvent(ctx context.Context, ev *Event) error {
	_, err := t.s.events.InsertOne(ctx, ev)
	return err
}

func (s *MongoStore) Find(ctx context.Context, id string) (*Record, error) {
	return s.findRecord(ctx, id)
}

func (s *MongoStore) findRecord(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.docs.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *MongoStore) IterateAll(ctx context.Context, fn func(rec *Record) error) error {
	cur, err := s.docs.Find(ctx, bson.M{})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var rec Record
		if err := cur.Decode(&rec); err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return cur.Err()
}

func (s *MongoStore) PollEvents(ctx context.Context, max int, topics ...string) ([]*Event, error) {
	filter := bson.M{"topic": bson.M{"$in": topics}}
	opts := options.Find().SetSort(bson.D{{Key: "created", Value: 1}})
	if max > 0 {
		opts.SetLimit(int64(max))
	}
	cur, err := s.events.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Event{}
	for cur.Next(ctx) {
		var ev Event
		if err := cur.Decode(&ev); err != nil {
			return nil, err
		}
		out = append(out, &ev)
	}
	return out, cur.Err()
}

func (s *MongoStore) DeleteEvent(ctx context.Context, id string) error {
	// deleting an already-deleted event is fine, redelivery makes this
	// path reachable
	_, err := s.events.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoStore) UpdateEvent(ctx context.Context, id, topic string, data map[string][]any) error {
	set := bson.M{"topic": topic}
	if data != nil {
		set["data"] = data
	}
	res, err := s.events.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
