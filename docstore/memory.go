package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryStore keeps every collection in process memory. It is safe for
// concurrent use and backs DB_TYPE=memory as well as the package tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[bson.ObjectID]*memoryEntry
	seq         int64
	offline     bool
}

type memoryEntry struct {
	seq int64
	doc bson.M
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[bson.ObjectID]*memoryEntry)}
}

// SetOffline makes every operation fail with ErrUnavailable until cleared.
func (s *MemoryStore) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

func (s *MemoryStore) Kind() string { return "memory" }

func (s *MemoryStore) Collection(name string) Collection {
	return &memoryCollection{store: s, name: name}
}

func (s *MemoryStore) CollectionNames(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.offline {
		return nil, ErrUnavailable
	}
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.offline {
		return ErrUnavailable
	}
	return ctx.Err()
}

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

type memoryCollection struct {
	store *MemoryStore
	name  string
}

// snapshot returns the collection's documents in insertion order. Callers hold s.mu.
func (c *memoryCollection) snapshot() []bson.M {
	entries := c.store.collections[c.name]
	ordered := make([]*memoryEntry, 0, len(entries))
	for _, e := range entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	docs := make([]bson.M, len(ordered))
	for i, e := range ordered {
		docs[i] = e.doc
	}
	return docs
}

func (c *memoryCollection) readable(ctx context.Context) error {
	if c.store.offline {
		return ErrUnavailable
	}
	return ctx.Err()
}

func (c *memoryCollection) Find(ctx context.Context, filter Filter, opts FindOptions) ([]bson.Raw, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	if err := c.readable(ctx); err != nil {
		return nil, err
	}
	docs := applyFind(c.snapshot(), filter, opts)
	out := make([]bson.Raw, 0, len(docs))
	for _, d := range docs {
		raw, err := bson.Marshal(d)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (c *memoryCollection) FindOne(ctx context.Context, filter Filter) (bson.Raw, error) {
	docs, err := c.Find(ctx, filter, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs[0], nil
}

func (c *memoryCollection) Count(ctx context.Context, filter Filter) (int64, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	if err := c.readable(ctx); err != nil {
		return 0, err
	}
	var n int64
	for _, d := range c.snapshot() {
		if matches(d, filter) {
			n++
		}
	}
	return n, nil
}

func (c *memoryCollection) InsertOne(ctx context.Context, doc any) (bson.ObjectID, error) {
	m, err := toDocument(doc)
	if err != nil {
		return bson.NilObjectID, err
	}
	id, ok := documentID(m)
	if !ok {
		id = bson.NewObjectID()
		m[IDField] = id
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if err := c.readable(ctx); err != nil {
		return bson.NilObjectID, err
	}
	entries := c.store.collections[c.name]
	if entries == nil {
		entries = make(map[bson.ObjectID]*memoryEntry)
		c.store.collections[c.name] = entries
	}
	if _, exists := entries[id]; exists {
		return bson.NilObjectID, fmt.Errorf("docstore: duplicate id %s in %s", id.Hex(), c.name)
	}
	c.store.seq++
	entries[id] = &memoryEntry{seq: c.store.seq, doc: m}
	return id, nil
}

func (c *memoryCollection) update(ctx context.Context, filter Filter, set bson.M, many bool) (int64, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if err := c.readable(ctx); err != nil {
		return 0, err
	}
	entries := c.store.collections[c.name]
	var matched int64
	for _, d := range c.snapshot() {
		if !matches(d, filter) {
			continue
		}
		updated, err := applySet(d, set)
		if err != nil {
			return matched, err
		}
		id, _ := documentID(d)
		entries[id].doc = updated
		matched++
		if !many {
			break
		}
	}
	return matched, nil
}

func (c *memoryCollection) UpdateOne(ctx context.Context, filter Filter, set bson.M) (int64, error) {
	return c.update(ctx, filter, set, false)
}

func (c *memoryCollection) UpdateMany(ctx context.Context, filter Filter, set bson.M) (int64, error) {
	return c.update(ctx, filter, set, true)
}

func (c *memoryCollection) DeleteOne(ctx context.Context, filter Filter) (int64, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if err := c.readable(ctx); err != nil {
		return 0, err
	}
	for _, d := range c.snapshot() {
		if matches(d, filter) {
			id, _ := documentID(d)
			delete(c.store.collections[c.name], id)
			return 1, nil
		}
	}
	return 0, nil
}
