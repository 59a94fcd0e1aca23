package docstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.mongodb.org/mongo-driver/v2/bson"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// documentRow stores one document as canonical Extended JSON so BSON types
// (ObjectID, dates, int32/int64) survive the round trip through SQL.
type documentRow struct {
	ID         string         `gorm:"primaryKey;size:24"`
	Collection string         `gorm:"size:128;not null;index"`
	Body       datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"index"`
	UpdatedAt  time.Time
}

func (documentRow) TableName() string { return "documents" }

type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SQLStore keeps documents in a single gorm managed table. Filtering and
// ordering run in process with the same matcher as MemoryStore, so a
// collection is read in full on every query.
type SQLStore struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn, applies pool limits and migrates the documents table.
func OpenPostgres(ctx context.Context, dsn string, opts PoolOptions) (*SQLStore, error) {
	gdb, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		PrepareStmt: false,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 || opts.MaxIdleConns > opts.MaxOpenConns {
		opts.MaxIdleConns = opts.MaxOpenConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	if opts.ConnMaxIdleTime <= 0 {
		opts.ConnMaxIdleTime = 5 * time.Minute
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return NewSQLStore(gdb)
}

// OpenSQLite opens a pure Go sqlite database at dsn, which may be a file path
// or a "file:name?mode=memory&cache=shared" URI.
func OpenSQLite(dsn string) (*SQLStore, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	return NewSQLStore(gdb)
}

func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Kind() string { return s.db.Dialector.Name() }

func (s *SQLStore) Collection(name string) Collection {
	return &sqlCollection{db: s.db, name: name}
}

func (s *SQLStore) CollectionNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&documentRow{}).Distinct("collection").Pluck("collection", &names).Error
	if err != nil {
		return nil, classifySQLError(err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return classifySQLError(sqlDB.PingContext(ctx))
}

func (s *SQLStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type sqlCollection struct {
	db   *gorm.DB
	name string
}

// candidates selects the rows a filter may match in insertion order. A primary
// key lookup is pushed down to SQL; every other condition is evaluated by the
// caller. forUpdate locks the rows until the surrounding transaction ends, so
// a read-modify-write cannot overwrite a concurrent commit. sqlite has no row
// locks and drops the clause; its single connection serializes writers.
func (c *sqlCollection) candidates(tx *gorm.DB, filter Filter, forUpdate bool) *gorm.DB {
	q := tx.Model(&documentRow{}).Where("collection = ?", c.name)
	if id, ok := idFromFilter(filter); ok {
		q = q.Where("id = ?", id.Hex())
	}
	q = q.Order("created_at asc").Order("id asc")
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (c *sqlCollection) load(tx *gorm.DB, filter Filter, forUpdate bool) ([]bson.M, error) {
	var rows []documentRow
	if err := c.candidates(tx, filter, forUpdate).Find(&rows).Error; err != nil {
		return nil, classifySQLError(err)
	}
	docs := make([]bson.M, 0, len(rows))
	for _, row := range rows {
		var m bson.M
		if err := bson.UnmarshalExtJSON(row.Body, true, &m); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", row.ID, err)
		}
		docs = append(docs, m)
	}
	return docs, nil
}

func (c *sqlCollection) Find(ctx context.Context, filter Filter, opts FindOptions) ([]bson.Raw, error) {
	docs, err := c.load(c.db.WithContext(ctx), filter, false)
	if err != nil {
		return nil, err
	}
	docs = applyFind(docs, filter, opts)
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

func (c *sqlCollection) FindOne(ctx context.Context, filter Filter) (bson.Raw, error) {
	docs, err := c.Find(ctx, filter, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs[0], nil
}

func (c *sqlCollection) Count(ctx context.Context, filter Filter) (int64, error) {
	docs, err := c.load(c.db.WithContext(ctx), filter, false)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, d := range docs {
		if matches(d, filter) {
			n++
		}
	}
	return n, nil
}

func (c *sqlCollection) InsertOne(ctx context.Context, doc any) (bson.ObjectID, error) {
	m, err := toDocument(doc)
	if err != nil {
		return bson.NilObjectID, err
	}
	id, ok := documentID(m)
	if !ok {
		id = bson.NewObjectID()
		m[IDField] = id
	}
	body, err := bson.MarshalExtJSON(m, true, false)
	if err != nil {
		return bson.NilObjectID, err
	}
	row := documentRow{ID: id.Hex(), Collection: c.name, Body: datatypes.JSON(body)}
	if err := c.db.WithContext(ctx).Create(&row).Error; err != nil {
		return bson.NilObjectID, classifySQLError(err)
	}
	return id, nil
}

func (c *sqlCollection) update(ctx context.Context, filter Filter, set bson.M, many bool) (int64, error) {
	var matched int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		docs, err := c.load(tx, filter, true)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if !matches(d, filter) {
				continue
			}
			updated, err := applySet(d, set)
			if err != nil {
				return err
			}
			body, err := bson.MarshalExtJSON(updated, true, false)
			if err != nil {
				return err
			}
			id, _ := documentID(d)
			err = tx.Model(&documentRow{}).
				Where("id = ? AND collection = ?", id.Hex(), c.name).
				Updates(map[string]any{"body": datatypes.JSON(body), "updated_at": time.Now()}).Error
			if err != nil {
				return classifySQLError(err)
			}
			matched++
			if !many {
				break
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return matched, nil
}

func (c *sqlCollection) UpdateOne(ctx context.Context, filter Filter, set bson.M) (int64, error) {
	return c.update(ctx, filter, set, false)
}

func (c *sqlCollection) UpdateMany(ctx context.Context, filter Filter, set bson.M) (int64, error) {
	return c.update(ctx, filter, set, true)
}

func (c *sqlCollection) DeleteOne(ctx context.Context, filter Filter) (int64, error) {
	var deleted int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		docs, err := c.load(tx, filter, true)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if !matches(d, filter) {
				continue
			}
			id, _ := documentID(d)
			res := tx.Where("id = ? AND collection = ?", id.Hex(), c.name).Delete(&documentRow{})
			if res.Error != nil {
				return classifySQLError(res.Error)
			}
			deleted = res.RowsAffected
			return nil
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func classifySQLError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "database is closed") ||
		strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
