package docstore

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// The in-process backends evaluate filters and ordering here, following MongoDB
// query semantics for the subset of operators the repository uses.

type dateMillis int64

func matches(doc bson.M, f Filter) bool {
	for _, c := range f.And {
		if !matchCond(doc, c) {
			return false
		}
	}
	if len(f.Or) == 0 {
		return true
	}
	for _, c := range f.Or {
		if matchCond(doc, c) {
			return true
		}
	}
	return false
}

func matchCond(doc bson.M, c Cond) bool {
	v, present := doc[c.Field]
	switch c.Op {
	case OpEq:
		if !present {
			return c.Value == nil
		}
		return equalOrContains(v, c.Value)
	case OpNe:
		return !present || !equalOrContains(v, c.Value)
	case OpIn:
		if !present {
			return false
		}
		for _, want := range c.Values {
			if equalOrContains(v, want) {
				return true
			}
		}
		return false
	case OpContains:
		if !present {
			return false
		}
		return containsFold(v, strings.ToLower(fmt.Sprint(c.Value)))
	}
	return false
}

// equalOrContains reports whether v equals want, or v is an array holding want.
func equalOrContains(v, want any) bool {
	if arr, ok := v.(bson.A); ok {
		for _, elem := range arr {
			if equalValues(elem, want) {
				return true
			}
		}
		return false
	}
	return equalValues(v, want)
}

func equalValues(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func containsFold(v any, needle string) bool {
	switch t := v.(type) {
	case string:
		return strings.Contains(strings.ToLower(t), needle)
	case bson.A:
		for _, elem := range t {
			if s, ok := elem.(string); ok && strings.Contains(strings.ToLower(s), needle) {
				return true
			}
		}
	}
	return false
}

func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case time.Time:
		return dateMillis(bson.NewDateTimeFromTime(t))
	case bson.DateTime:
		return dateMillis(t)
	}
	return v
}

// typeRank follows MongoDB's cross-type comparison order.
func typeRank(v any) int {
	switch v.(type) {
	case nil, bson.Null:
		return 0
	case float64:
		return 1
	case string:
		return 2
	case bson.M, bson.D:
		return 3
	case bson.A:
		return 4
	case bson.ObjectID:
		return 7
	case bool:
		return 8
	case dateMillis:
		return 9
	}
	return 10
}

func compareValues(a, b any) int {
	a, b = normalize(a), normalize(b)
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	case bson.ObjectID:
		y := b.(bson.ObjectID)
		return bytes.Compare(x[:], y[:])
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case dateMillis:
		y := b.(dateMillis)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return 0
}

func sortDocuments(docs []bson.M, keys []SortField) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			c := compareValues(docs[i][k.Field], docs[j][k.Field])
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// applyFind filters docs (given in natural order), sorts, then pages the result.
func applyFind(docs []bson.M, f Filter, opts FindOptions) []bson.M {
	out := make([]bson.M, 0, len(docs))
	for _, d := range docs {
		if matches(d, f) {
			out = append(out, d)
		}
	}
	sortDocuments(out, opts.Sort)
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(out)) {
			return out[:0]
		}
		out = out[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < int64(len(out)) {
		out = out[:opts.Limit]
	}
	return out
}

// applySet merges set into doc, returning the updated copy.
func applySet(doc bson.M, set bson.M) (bson.M, error) {
	normalized, err := toDocument(set)
	if err != nil {
		return nil, err
	}
	out := cloneDocument(doc)
	for k, v := range normalized {
		if k == IDField {
			continue
		}
		out[k] = v
	}
	return out, nil
}

func documentID(doc bson.M) (bson.ObjectID, bool) {
	id, ok := doc[IDField].(bson.ObjectID)
	return id, ok && !id.IsZero()
}

// idFromFilter returns the id when f is a plain lookup by primary key.
func idFromFilter(f Filter) (bson.ObjectID, bool) {
	if len(f.Or) != 0 {
		return bson.NilObjectID, false
	}
	for _, c := range f.And {
		if c.Field == IDField && c.Op == OpEq {
			if id, ok := c.Value.(bson.ObjectID); ok {
				return id, true
			}
		}
	}
	return bson.NilObjectID, false
}
