package memory

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCloseTimeout = 5 * time.Second

// MongoStore keeps facts and steps in two collections keyed by session.
type MongoStore struct {
	client *mongo.Client
	facts  *mongo.Collection
	steps  *mongo.Collection
}

type mongoFactDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	SessionID  string             `bson:"session_id"`
	Key        string             `bson:"key"`
	Value      string             `bson:"value"`
	Importance string             `bson:"importance"`
	Step       int                `bson:"step"`
	At         time.Time          `bson:"at"`
}

type mongoStepDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	SessionID string             `bson:"session_id"`
	Index     int                `bson:"index"`
	Action    string             `bson:"action"`
	Result    string             `bson:"result"`
	At        time.Time          `bson:"at"`
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	db := client.Database(database)
	return &MongoStore{
		client: client,
		facts:  db.Collection("memory_facts"),
		steps:  db.Collection("memory_steps"),
	}, nil
}

func factDocument(session string, f Fact) mongoFactDocument {
	return mongoFactDocument{
		SessionID:  session,
		Key:        f.Key,
		Value:      f.Value,
		Importance: string(f.Importance),
		Step:       f.Step,
		At:         f.At.UTC(),
	}
}

func (d mongoFactDocument) toFact() Fact {
	return Fact{Key: d.Key, Value: d.Value, Importance: Importance(d.Importance), Step: d.Step, At: d.At}
}

func stepDocument(session string, s Step) mongoStepDocument {
	return mongoStepDocument{SessionID: session, Index: s.Index, Action: s.Action, Result: s.Result, At: s.At.UTC()}
}

func (d mongoStepDocument) toStep() Step {
	return Step{Index: d.Index, Action: d.Action, Result: d.Result, At: d.At}
}

func (ms *MongoStore) SaveFact(ctx context.Context, session string, f Fact) error {
	if ms == nil || ms.facts == nil {
		return nil
	}
	_, err := ms.facts.InsertOne(ctx, factDocument(session, f))
	return err
}

func (ms *MongoStore) SaveStep(ctx context.Context, session string, s Step) error {
	if ms == nil || ms.steps == nil {
		return nil
	}
	_, err := ms.steps.InsertOne(ctx, stepDocument(session, s))
	return err
}

// Load returns the session's facts and steps in insertion order.
func (ms *MongoStore) Load(ctx context.Context, session string) (Snapshot, error) {
	var snap Snapshot
	if ms == nil || ms.facts == nil || ms.steps == nil {
		return snap, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := ms.facts.Find(ctx, bson.M{"session_id": session}, opts)
	if err != nil {
		return snap, err
	}
	var facts []mongoFactDocument
	if err := cursor.All(ctx, &facts); err != nil {
		return snap, err
	}
	for _, d := range facts {
		snap.Facts = append(snap.Facts, d.toFact())
	}

	cursor, err = ms.steps.Find(ctx, bson.M{"session_id": session}, opts)
	if err != nil {
		return snap, err
	}
	var steps []mongoStepDocument
	if err := cursor.All(ctx, &steps); err != nil {
		return snap, err
	}
	for _, d := range steps {
		snap.Steps = append(snap.Steps, d.toStep())
	}
	return snap, nil
}

func (ms *MongoStore) Close() error {
	if ms == nil || ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
