package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpupo63/portfolio-api/docstore"
	"github.com/rpupo63/portfolio-api/models"
)

// Collection names, shared with the activity log's entity field.
const (
	ProjectCollection     = "project"
	SkillCollection       = "skill"
	TestimonialCollection = "testimonial"
	CertificateCollection = "certificate"
	ActivityLogCollection = "activitylog"
)

type (
	ProjectRepo     = Repository[models.Project, *models.ProjectInput]
	SkillRepo       = Repository[models.Skill, *models.SkillInput]
	TestimonialRepo = Repository[models.Testimonial, *models.TestimonialInput]
	CertificateRepo = Repository[models.Certificate, *models.CertificateInput]
)

var (
	projectConfig = collectionConfig{
		entity: ProjectCollection,
		sort: []docstore.SortField{
			docstore.Desc("featured"), docstore.Asc("orderIndex"),
			docstore.Desc("created_at"), docstore.Desc(docstore.IDField),
		},
		searchFields: []string{"title", "shortDesc", "tags"},
		tagField:     "tags",
		uniqueField:  "slug",
		orderable:    true,
		defaultLimit: 20,
	}
	skillConfig = collectionConfig{
		entity: SkillCollection,
		sort: []docstore.SortField{
			docstore.Asc("orderIndex"), docstore.Desc("created_at"), docstore.Desc(docstore.IDField),
		},
		searchFields: []string{"name", "category"},
		tagField:     "category",
		orderable:    true,
		defaultLimit: MaxPageLimit,
	}
	testimonialConfig = collectionConfig{
		entity: TestimonialCollection,
		sort: []docstore.SortField{
			docstore.Asc("orderIndex"), docstore.Desc("created_at"), docstore.Desc(docstore.IDField),
		},
		searchFields: []string{"name", "role", "quote"},
		orderable:    true,
		defaultLimit: MaxPageLimit,
	}
	certificateConfig = collectionConfig{
		entity:       CertificateCollection,
		sort:         []docstore.SortField{docstore.Desc("created_at"), docstore.Desc(docstore.IDField)},
		searchFields: []string{"title", "issuer", "tags"},
		tagField:     "tags",
		defaultLimit: MaxPageLimit,
	}
)

type Database struct {
	store           docstore.Store
	projectRepo     *ProjectRepo
	skillRepo       *SkillRepo
	testimonialRepo *TestimonialRepo
	certificateRepo *CertificateRepo
}

// New initializes a new Database with each repository sharing one document store.
// sink receives an entry for every admin mutation.
func New(store docstore.Store, sink ActivitySink) Database {
	return Database{
		store:           store,
		projectRepo:     newRepository[models.Project, *models.ProjectInput](store, projectConfig, sink),
		skillRepo:       newRepository[models.Skill, *models.SkillInput](store, skillConfig, sink),
		testimonialRepo: newRepository[models.Testimonial, *models.TestimonialInput](store, testimonialConfig, sink),
		certificateRepo: newRepository[models.Certificate, *models.CertificateInput](store, certificateConfig, sink),
	}
}

// Accessor methods for each repository

func (d Database) Store() docstore.Store {
	return d.store
}

func (d Database) ProjectRepo() *ProjectRepo {
	return d.projectRepo
}

func (d Database) SkillRepo() *SkillRepo {
	return d.skillRepo
}

func (d Database) TestimonialRepo() *TestimonialRepo {
	return d.testimonialRepo
}

func (d Database) CertificateRepo() *CertificateRepo {
	return d.certificateRepo
}

// EnsureIndexes creates the secondary indexes used by the list queries when the
// store supports them. Other stores are left untouched.
func (d Database) EnsureIndexes(ctx context.Context) error {
	indexer, ok := d.store.(docstore.Indexer)
	if !ok {
		return nil
	}
	var errList []error
	for _, conf := range []collectionConfig{projectConfig, skillConfig, testimonialConfig, certificateConfig} {
		if err := indexer.EnsureIndex(ctx, conf.entity, conf.sort...); err != nil {
			errList = append(errList, fmt.Errorf("%s sort index: %w", conf.entity, err))
		}
		if conf.uniqueField != "" {
			if err := indexer.EnsureIndex(ctx, conf.entity, docstore.Asc(conf.uniqueField)); err != nil {
				errList = append(errList, fmt.Errorf("%s %s index: %w", conf.entity, conf.uniqueField, err))
			}
		}
	}
	return errors.Join(errList...)
}
