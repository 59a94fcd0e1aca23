package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rpupo63/portfolio-api/docstore"
	"github.com/rpupo63/portfolio-api/errs"
	"github.com/rpupo63/portfolio-api/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"
)

const (
	MaxPageLimit       = 100
	reorderParallelism = 8
)

// Input is a typed admin payload. Validate may also fill defaults.
type Input interface {
	Validate() error
}

// ActivitySink receives one entry per successful mutation. Implementations
// must not block the caller and swallow their own failures.
type ActivitySink interface {
	Record(ctx context.Context, entry models.ActivityLog)
}

// Query selects a page of documents. Page is 1-indexed.
type Query struct {
	Published      *bool
	Tag            string
	Search         string
	IncludeDeleted bool
	Page           int
	Limit          int
}

type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

type collectionConfig struct {
	entity       string
	sort         []docstore.SortField
	searchFields []string
	tagField     string
	uniqueField  string
	orderable    bool
	defaultLimit int
}

// Repository implements listing, lookup and admin mutations for one collection.
type Repository[T any, I Input] struct {
	coll docstore.Collection
	conf collectionConfig
	sink ActivitySink
	now  func() time.Time
}

func newRepository[T any, I Input](store docstore.Store, conf collectionConfig, sink ActivitySink) *Repository[T, I] {
	return &Repository[T, I]{
		coll: store.Collection(conf.entity),
		conf: conf,
		sink: sink,
		now:  time.Now,
	}
}

func (r *Repository[T, I]) Entity() string { return r.conf.entity }

func (r *Repository[T, I]) DefaultLimit() int { return r.conf.defaultLimit }

// List returns one page of matching documents in the collection's fixed order.
// Total counts every match before paging.
func (r *Repository[T, I]) List(ctx context.Context, q Query) (Page[T], error) {
	if q.Page < 1 {
		return Page[T]{}, errs.NewValidationError("page", "must be at least 1")
	}
	if q.Limit <= 0 || q.Limit > MaxPageLimit {
		return Page[T]{}, errs.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", MaxPageLimit))
	}
	if int64(q.Page-1) > math.MaxInt64/int64(q.Limit) {
		return Page[T]{}, errs.NewValidationError("page", "is too large")
	}

	filter := r.listFilter(q)
	total, err := r.coll.Count(ctx, filter)
	if err != nil {
		return Page[T]{}, r.storeError("count", err)
	}

	raws, err := r.coll.Find(ctx, filter, docstore.FindOptions{
		Sort:  r.conf.sort,
		Skip:  int64(q.Page-1) * int64(q.Limit),
		Limit: int64(q.Limit),
	})
	if err != nil {
		return Page[T]{}, r.storeError("list", err)
	}

	items := make([]T, 0, len(raws))
	for _, raw := range raws {
		item, err := decode[T](raw)
		if err != nil {
			return Page[T]{}, errs.NewDatabaseError("decode", r.conf.entity, err)
		}
		items = append(items, item)
	}
	return Page[T]{Items: items, Total: total, Page: q.Page, Limit: q.Limit}, nil
}

func (r *Repository[T, I]) listFilter(q Query) docstore.Filter {
	var f docstore.Filter
	if !q.IncludeDeleted {
		f = f.With(docstore.Ne("deleted", true))
	}
	if q.Published != nil {
		f = f.With(docstore.Eq("published", *q.Published))
	}
	if tag := strings.TrimSpace(q.Tag); tag != "" && r.conf.tagField != "" {
		f = f.With(docstore.In(r.conf.tagField, tag))
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		conds := make([]docstore.Cond, 0, len(r.conf.searchFields))
		for _, field := range r.conf.searchFields {
			conds = append(conds, docstore.Contains(field, search))
		}
		f = f.AnyOf(conds...)
	}
	return f
}

// Get loads a document by id. Soft-deleted documents are NotFound unless includeDeleted.
func (r *Repository[T, I]) Get(ctx context.Context, id string, includeDeleted bool) (T, error) {
	var zero T
	oid, err := parseID("id", id)
	if err != nil {
		return zero, err
	}
	filter := docstore.ByID(oid)
	if !includeDeleted {
		filter = filter.With(docstore.Ne("deleted", true))
	}
	return r.findOne(ctx, filter)
}

// GetBySlugOrID looks a document up by its unique field, falling back to the id
// when key is a well-formed id. Soft-deleted documents are never returned.
func (r *Repository[T, I]) GetBySlugOrID(ctx context.Context, key string, publishedOnly bool) (T, error) {
	var zero T
	if r.conf.uniqueField == "" {
		return zero, errs.NewInternalError(r.conf.entity + " has no lookup key")
	}
	base := docstore.Where(docstore.Ne("deleted", true))
	if publishedOnly {
		base = base.With(docstore.Eq("published", true))
	}

	item, err := r.findOne(ctx, base.With(docstore.Eq(r.conf.uniqueField, key)))
	if err == nil || !errs.IsNotFound(err) {
		return item, err
	}
	oid, parseErr := docstore.ParseID(key)
	if parseErr != nil {
		return zero, err
	}
	return r.findOne(ctx, base.With(docstore.Eq(docstore.IDField, oid)))
}

func (r *Repository[T, I]) findOne(ctx context.Context, filter docstore.Filter) (T, error) {
	var zero T
	raw, err := r.coll.FindOne(ctx, filter)
	if errors.Is(err, docstore.ErrNoDocuments) {
		return zero, errs.NewNotFound(r.conf.entity)
	}
	if err != nil {
		return zero, r.storeError("get", err)
	}
	item, err := decode[T](raw)
	if err != nil {
		return zero, errs.NewDatabaseError("decode", r.conf.entity, err)
	}
	return item, nil
}

// Create validates in, stamps both timestamps and inserts it. A unique field
// must not match any existing document, soft-deleted ones included.
func (r *Repository[T, I]) Create(ctx context.Context, in I) (bson.ObjectID, error) {
	if err := in.Validate(); err != nil {
		return bson.NilObjectID, err
	}
	fields, err := toFields(in)
	if err != nil {
		return bson.NilObjectID, errs.NewInternalErrorWithCause("encode "+r.conf.entity, err)
	}

	if r.conf.uniqueField != "" {
		value := fields[r.conf.uniqueField]
		n, err := r.coll.Count(ctx, docstore.Where(docstore.Eq(r.conf.uniqueField, value)))
		if err != nil {
			return bson.NilObjectID, r.storeError("create", err)
		}
		if n > 0 {
			return bson.NilObjectID, errs.NewConflictError(r.conf.entity, r.conf.uniqueField, fmt.Sprint(value))
		}
	}

	now := r.now().UTC()
	fields["created_at"] = now
	fields["updated_at"] = now

	id, err := r.coll.InsertOne(ctx, fields)
	if err != nil {
		return bson.NilObjectID, r.storeError("create", err)
	}
	r.record(ctx, models.ActionCreate, id.Hex(), nil)
	return id, nil
}

// Update replaces every mutable field of the document and refreshes updated_at.
// Soft-deleted documents can be updated; hard-deleted ones are NotFound.
func (r *Repository[T, I]) Update(ctx context.Context, id string, in I) error {
	oid, err := parseID("id", id)
	if err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}
	fields, err := toFields(in)
	if err != nil {
		return errs.NewInternalErrorWithCause("encode "+r.conf.entity, err)
	}
	fields["updated_at"] = r.now().UTC()

	matched, err := r.coll.UpdateOne(ctx, docstore.ByID(oid), fields)
	if err != nil {
		return r.storeError("update", err)
	}
	if matched == 0 {
		return errs.NewNotFound(r.conf.entity)
	}
	r.record(ctx, models.ActionUpdate, oid.Hex(), nil)
	return nil
}

// Delete flags the document as deleted, or removes it when hard is set.
// A missing id is not an error.
func (r *Repository[T, I]) Delete(ctx context.Context, id string, hard bool) error {
	oid, err := parseID("id", id)
	if err != nil {
		return err
	}
	if hard {
		_, err = r.coll.DeleteOne(ctx, docstore.ByID(oid))
	} else {
		_, err = r.coll.UpdateOne(ctx, docstore.ByID(oid), bson.M{"deleted": true, "updated_at": r.now().UTC()})
	}
	if err != nil {
		return r.storeError("delete", err)
	}

	var metadata map[string]any
	if hard {
		metadata = map[string]any{"hard": true}
	}
	r.record(ctx, models.ActionDelete, oid.Hex(), metadata)
	return nil
}

// BulkSetPublished sets the published flag on every listed document. Unknown
// ids are ignored; a malformed id rejects the whole request before any write.
func (r *Repository[T, I]) BulkSetPublished(ctx context.Context, ids []string, published bool) error {
	oids, err := parseIDs("ids", ids)
	if err != nil {
		return err
	}
	if len(oids) == 0 {
		return nil
	}
	values := make([]any, len(oids))
	for i, oid := range oids {
		values[i] = oid
	}
	set := bson.M{"published": published, "updated_at": r.now().UTC()}
	if _, err := r.coll.UpdateMany(ctx, docstore.Where(docstore.In(docstore.IDField, values...)), set); err != nil {
		return r.storeError("bulk publish", err)
	}
	return nil
}

// Reorder sets orderIndex to each id's position in orderedIDs. Writes are
// independent per id and unlisted documents keep their index. When an id
// repeats, its last position wins.
func (r *Repository[T, I]) Reorder(ctx context.Context, orderedIDs []string) error {
	if !r.conf.orderable {
		return errs.NewValidationError("ordered_ids", r.conf.entity+" cannot be reordered")
	}
	oids, err := parseIDs("ordered_ids", orderedIDs)
	if err != nil {
		return err
	}

	positions := make(map[bson.ObjectID]int, len(oids))
	for idx, oid := range oids {
		positions[oid] = idx
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reorderParallelism)
	for oid, idx := range positions {
		g.Go(func() error {
			_, err := r.coll.UpdateOne(gctx, docstore.ByID(oid), bson.M{"orderIndex": idx})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return r.storeError("reorder", err)
	}
	return nil
}

func (r *Repository[T, I]) record(ctx context.Context, action models.ActivityAction, id string, metadata map[string]any) {
	if r.sink == nil {
		return
	}
	r.sink.Record(ctx, models.ActivityLog{
		UserEmail: ActorFromContext(ctx),
		Action:    action,
		Entity:    r.conf.entity,
		EntityID:  id,
		Metadata:  metadata,
		Timestamp: r.now().UTC(),
	})
}

func (r *Repository[T, I]) storeError(operation string, err error) error {
	if errors.Is(err, docstore.ErrUnavailable) {
		return errs.NewStoreUnavailableError(operation+" "+r.conf.entity, err)
	}
	return errs.NewDatabaseError(operation, r.conf.entity, err)
}

func parseID(field, id string) (bson.ObjectID, error) {
	oid, err := docstore.ParseID(id)
	if err != nil {
		return bson.NilObjectID, errs.NewInvalidIDError(field, id)
	}
	return oid, nil
}

func parseIDs(field string, ids []string) ([]bson.ObjectID, error) {
	oids := make([]bson.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := parseID(field, id)
		if err != nil {
			return nil, err
		}
		oids = append(oids, oid)
	}
	return oids, nil
}

// toFields encodes a typed input into the document fields it sets.
func toFields(in any) (bson.M, error) {
	raw, err := bson.Marshal(in)
	if err != nil {
		return nil, err
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, docstore.IDField)
	return fields, nil
}

func decode[T any](raw bson.Raw) (T, error) {
	var v T
	err := bson.Unmarshal(raw, &v)
	return v, err
}
