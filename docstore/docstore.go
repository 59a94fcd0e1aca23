// Package docstore is a minimal adapter over a document database. It exposes
// per-collection find/insert/update/delete with filter, sort and skip/limit
// semantics that are identical across the MongoDB, SQL and in-memory backends.
package docstore

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	ErrNoDocuments = errors.New("docstore: no documents in result")
	ErrUnavailable = errors.New("docstore: store unavailable")
	ErrInvalidID   = errors.New("docstore: invalid document id")
)

// IDField is the primary key field of every document.
const IDField = "_id"

// Store is a document database reachable by collection name.
type Store interface {
	Collection(name string) Collection
	CollectionNames(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	Kind() string
}

// Collection operations. Writes are atomic per document only.
type Collection interface {
	Find(ctx context.Context, filter Filter, opts FindOptions) ([]bson.Raw, error)
	// FindOne returns the first match in natural order, or ErrNoDocuments.
	FindOne(ctx context.Context, filter Filter) (bson.Raw, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	// InsertOne stores doc and returns its id, assigning one when doc has none.
	InsertOne(ctx context.Context, doc any) (bson.ObjectID, error)
	// UpdateOne applies set to the first match and returns the matched count.
	UpdateOne(ctx context.Context, filter Filter, set bson.M) (int64, error)
	UpdateMany(ctx context.Context, filter Filter, set bson.M) (int64, error)
	DeleteOne(ctx context.Context, filter Filter) (int64, error)
}

type Op int

const (
	OpEq Op = iota
	OpNe
	// OpIn matches a scalar equal to one of Values, or an array sharing an element with them.
	OpIn
	// OpContains is a case-insensitive literal substring test. Arrays match on any element.
	OpContains
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpIn:
		return "in"
	case OpContains:
		return "contains"
	}
	return "unknown"
}

type Cond struct {
	Field  string
	Op     Op
	Value  any
	Values []any
}

func Eq(field string, value any) Cond { return Cond{Field: field, Op: OpEq, Value: value} }

func Ne(field string, value any) Cond { return Cond{Field: field, Op: OpNe, Value: value} }

func In(field string, values ...any) Cond { return Cond{Field: field, Op: OpIn, Values: values} }

func Contains(field, substr string) Cond {
	return Cond{Field: field, Op: OpContains, Value: substr}
}

// ByID matches the document with the given id.
func ByID(id bson.ObjectID) Filter { return Filter{And: []Cond{Eq(IDField, id)}} }

// Filter is a conjunction of And, plus the requirement that at least one of Or
// holds when Or is non-empty. The zero Filter matches everything.
type Filter struct {
	And []Cond
	Or  []Cond
}

func Where(conds ...Cond) Filter { return Filter{And: conds} }

// AnyOf returns a copy of f that additionally requires one of conds.
func (f Filter) AnyOf(conds ...Cond) Filter {
	f.Or = append(append([]Cond(nil), f.Or...), conds...)
	return f
}

// With returns a copy of f with conds appended to the conjunction.
func (f Filter) With(conds ...Cond) Filter {
	f.And = append(append([]Cond(nil), f.And...), conds...)
	return f
}

type SortField struct {
	Field string
	Desc  bool
}

func Asc(field string) SortField  { return SortField{Field: field} }
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

type FindOptions struct {
	Sort  []SortField
	Skip  int64
	Limit int64 // 0 means no limit
}

// ParseID decodes a hex encoded document id.
func ParseID(s string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(strings.TrimSpace(s))
	if err != nil {
		return bson.NilObjectID, ErrInvalidID
	}
	return id, nil
}

// toDocument normalises any encodable value into a bson.M holding decoded BSON
// types (bson.DateTime, bson.A, int32/int64), whatever Go types doc used.
func toDocument(doc any) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func cloneDocument(m bson.M) bson.M {
	out := make(bson.M, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
