package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const serverSelectionTimeout = 5 * time.Second

// Indexer is implemented by stores that support secondary indexes.
type Indexer interface {
	EnsureIndex(ctx context.Context, collection string, keys ...SortField) error
}

type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo creates a client for uri. The driver connects lazily, so an
// unreachable server surfaces as ErrUnavailable on first use rather than here.
func OpenMongo(uri, database string) (*MongoStore, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(serverAPI).
		SetServerSelectionTimeout(serverSelectionTimeout)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Kind() string { return "mongo" }

func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{coll: s.db.Collection(name)}
}

func (s *MongoStore) CollectionNames(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, classifyMongoError(err)
	}
	return names, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return classifyMongoError(s.client.Ping(ctx, nil))
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) EnsureIndex(ctx context.Context, collection string, keys ...SortField) error {
	model := mongo.IndexModel{Keys: sortToBSON(keys)}
	if _, err := s.db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		return classifyMongoError(err)
	}
	return nil
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Find(ctx context.Context, filter Filter, o FindOptions) ([]bson.Raw, error) {
	opts := options.Find()
	if len(o.Sort) > 0 {
		opts.SetSort(sortToBSON(o.Sort))
	}
	if o.Skip > 0 {
		opts.SetSkip(o.Skip)
	}
	if o.Limit > 0 {
		opts.SetLimit(o.Limit)
	}

	cur, err := c.coll.Find(ctx, filterToBSON(filter), opts)
	if err != nil {
		return nil, classifyMongoError(err)
	}
	defer cur.Close(ctx)

	out := []bson.Raw{}
	for cur.Next(ctx) {
		out = append(out, append(bson.Raw(nil), cur.Current...))
	}
	if err := cur.Err(); err != nil {
		return nil, classifyMongoError(err)
	}
	return out, nil
}

func (c *mongoCollection) FindOne(ctx context.Context, filter Filter) (bson.Raw, error) {
	raw, err := c.coll.FindOne(ctx, filterToBSON(filter)).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, classifyMongoError(err)
	}
	return raw, nil
}

func (c *mongoCollection) Count(ctx context.Context, filter Filter) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, filterToBSON(filter))
	if err != nil {
		return 0, classifyMongoError(err)
	}
	return n, nil
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc any) (bson.ObjectID, error) {
	m, err := toDocument(doc)
	if err != nil {
		return bson.NilObjectID, err
	}
	id, ok := documentID(m)
	if !ok {
		id = bson.NewObjectID()
		m[IDField] = id
	}
	if _, err := c.coll.InsertOne(ctx, m); err != nil {
		return bson.NilObjectID, classifyMongoError(err)
	}
	return id, nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter Filter, set bson.M) (int64, error) {
	res, err := c.coll.UpdateOne(ctx, filterToBSON(filter), setToBSON(set))
	if err != nil {
		return 0, classifyMongoError(err)
	}
	return res.MatchedCount, nil
}

func (c *mongoCollection) UpdateMany(ctx context.Context, filter Filter, set bson.M) (int64, error) {
	res, err := c.coll.UpdateMany(ctx, filterToBSON(filter), setToBSON(set))
	if err != nil {
		return 0, classifyMongoError(err)
	}
	return res.MatchedCount, nil
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter Filter) (int64, error) {
	res, err := c.coll.DeleteOne(ctx, filterToBSON(filter))
	if err != nil {
		return 0, classifyMongoError(err)
	}
	return res.DeletedCount, nil
}

// filterToBSON renders f as {$and: [...], $or: [...]}. Each condition becomes its
// own clause so repeated fields never collide.
func filterToBSON(f Filter) bson.D {
	out := bson.D{}
	if len(f.And) > 0 {
		and := make(bson.A, 0, len(f.And))
		for _, c := range f.And {
			and = append(and, bson.D{condToBSON(c)})
		}
		out = append(out, bson.E{Key: "$and", Value: and})
	}
	if len(f.Or) > 0 {
		or := make(bson.A, 0, len(f.Or))
		for _, c := range f.Or {
			or = append(or, bson.D{condToBSON(c)})
		}
		out = append(out, bson.E{Key: "$or", Value: or})
	}
	return out
}

func condToBSON(c Cond) bson.E {
	switch c.Op {
	case OpNe:
		return bson.E{Key: c.Field, Value: bson.D{{Key: "$ne", Value: c.Value}}}
	case OpIn:
		return bson.E{Key: c.Field, Value: bson.D{{Key: "$in", Value: bson.A(append([]any{}, c.Values...))}}}
	case OpContains:
		return bson.E{Key: c.Field, Value: bson.D{
			{Key: "$regex", Value: regexp.QuoteMeta(fmt.Sprint(c.Value))},
			{Key: "$options", Value: "i"},
		}}
	default:
		return bson.E{Key: c.Field, Value: bson.D{{Key: "$eq", Value: c.Value}}}
	}
}

func sortToBSON(keys []SortField) bson.D {
	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		dir := 1
		if k.Desc {
			dir = -1
		}
		out = append(out, bson.E{Key: k.Field, Value: dir})
	}
	return out
}

func setToBSON(set bson.M) bson.D {
	fields := make(bson.M, len(set))
	for k, v := range set {
		if k != IDField {
			fields[k] = v
		}
	}
	return bson.D{{Key: "$set", Value: fields}}
}

func classifyMongoError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
