package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpupo63/portfolio-api/docstore"
	"github.com/rpupo63/portfolio-api/models"
)

func strPtr(s string) *string { return &s }

// SeedSampleData fills each empty collection with demo content. Collections that
// already hold documents, deleted ones included, are left alone. Seeded documents
// bypass the repositories and the activity log.
func (d Database) SeedSampleData(ctx context.Context) error {
	now := time.Now().UTC()
	base := func(published bool) models.Document {
		return models.Document{Published: published, CreatedAt: now, UpdatedAt: now}
	}

	projects := []any{
		models.Project{
			Document:    base(true),
			Title:       "Nebula UI Kit",
			Slug:        "nebula-ui-kit",
			ShortDesc:   "A polished, animated component kit with glassmorphism and neon accents.",
			LongDesc:    strPtr("Built with React, Tailwind, and Framer Motion."),
			Tech:        []string{"React", "Tailwind", "Framer Motion"},
			Tags:        []string{"design", "components"},
			LiveDemoURL: strPtr("https://ui.example.com"),
			GithubURL:   strPtr("https://github.com/example/nebula"),
			Images:      []string{"https://images.unsplash.com/photo-1526932848701-1f216ce59f87?q=80&w=1200&auto=format&fit=crop"},
			Featured:    true,
			OrderIndex:  0,
		},
		models.Project{
			Document:    base(true),
			Title:       "Cosmic Commerce",
			Slug:        "cosmic-commerce",
			ShortDesc:   "Headless shop with 3D product previews and blazing-fast UX.",
			LongDesc:    strPtr("Go API with a document store behind a React storefront."),
			Tech:        []string{"Go", "MongoDB", "React"},
			Tags:        []string{"ecommerce", "3d"},
			LiveDemoURL: strPtr("https://shop.example.com"),
			GithubURL:   strPtr("https://github.com/example/cosmic-commerce"),
			Images:      []string{"https://images.unsplash.com/photo-1547658719-da2b51169166?q=80&w=1200&auto=format&fit=crop"},
			OrderIndex:  1,
		},
		models.Project{
			Document:    base(true),
			Title:       "Orbit Analytics",
			Slug:        "orbit-analytics",
			ShortDesc:   "Realtime dashboards with glowing charts and delightful micro-interactions.",
			LongDesc:    strPtr("Streaming insights with websockets and ECharts."),
			Tech:        []string{"WebSockets", "ECharts", "Tailwind"},
			Tags:        []string{"analytics", "dashboard"},
			LiveDemoURL: strPtr("https://dash.example.com"),
			GithubURL:   strPtr("https://github.com/example/orbit-analytics"),
			Images:      []string{"https://images.unsplash.com/photo-1520607162513-77705c0f0d4a?q=80&w=1200&auto=format&fit=crop"},
			OrderIndex:  2,
		},
	}

	skills := []any{
		models.Skill{Document: base(true), Name: "React", Level: 90, Category: "Frontend", OrderIndex: 0},
		models.Skill{Document: base(true), Name: "Go", Level: 85, Category: "Backend", OrderIndex: 1},
		models.Skill{Document: base(true), Name: "MongoDB", Level: 80, Category: "Database", OrderIndex: 2},
		models.Skill{Document: base(true), Name: "Tailwind CSS", Level: 88, Category: "Frontend", OrderIndex: 3},
	}

	testimonials := []any{
		models.Testimonial{
			Document: base(true), Name: "Ava Stone", Role: strPtr("Product Lead @ Nova"),
			Quote: "Delivers stunning interfaces with impeccable attention to detail.", OrderIndex: 0,
		},
		models.Testimonial{
			Document: base(true), Name: "Leo Park", Role: strPtr("CTO @ Orbit Labs"),
			Quote: "Reliable, fast, and creative. A joy to collaborate with.", OrderIndex: 1,
		},
	}

	certificates := []any{
		models.Certificate{
			Document: base(true), Title: "Certified Go Developer", Issuer: "Go Academy", IssueDate: "2024-01",
			Image: strPtr("https://images.unsplash.com/photo-1557800636-894a64c1696f?q=80&w=1200&auto=format&fit=crop"),
			Tags:  []string{"backend"},
		},
		models.Certificate{
			Document: base(true), Title: "MongoDB Essentials", Issuer: "MongoDB University", IssueDate: "2023-09",
			Image: strPtr("https://images.unsplash.com/photo-1556157382-97eda2d62296?q=80&w=1200&auto=format&fit=crop"),
			Tags:  []string{"database"},
		},
	}

	var errList []error
	for _, seed := range []struct {
		collection string
		docs       []any
	}{
		{ProjectCollection, projects},
		{SkillCollection, skills},
		{TestimonialCollection, testimonials},
		{CertificateCollection, certificates},
	} {
		if err := d.seedCollection(ctx, seed.collection, seed.docs); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

func (d Database) seedCollection(ctx context.Context, collection string, docs []any) error {
	coll := d.store.Collection(collection)
	n, err := coll.Count(ctx, docstore.Filter{})
	if err != nil {
		return fmt.Errorf("count %s: %w", collection, err)
	}
	if n > 0 {
		return nil
	}
	for _, doc := range docs {
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			return fmt.Errorf("seed %s: %w", collection, err)
		}
	}
	return nil
}
