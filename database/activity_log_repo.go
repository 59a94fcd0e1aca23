package database

import (
	"context"
	"errors"

	"github.com/rpupo63/portfolio-api/docstore"
	"github.com/rpupo63/portfolio-api/errs"
	"github.com/rpupo63/portfolio-api/models"
)

// ActivityLogRepo appends audit entries. Entries are never updated or removed.
type ActivityLogRepo struct {
	coll docstore.Collection
}

func NewActivityLogRepo(store docstore.Store) *ActivityLogRepo {
	return &ActivityLogRepo{coll: store.Collection(ActivityLogCollection)}
}

// Append inserts entry
func (r *ActivityLogRepo) Append(ctx context.Context, entry models.ActivityLog) error {
	if _, err := r.coll.InsertOne(ctx, entry); err != nil {
		if errors.Is(err, docstore.ErrUnavailable) {
			return errs.NewStoreUnavailableError("append activity", err)
		}
		return errs.NewDatabaseError("append", ActivityLogCollection, err)
	}
	return nil
}
