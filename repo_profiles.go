package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles stores the profile documents keyed by principal identifier
type Profiles interface {
	repository.Repository[*ProfileDocument]

	GetByPrincipalID(ctx context.Context, id string) (*ProfileDocument, error)
	GetByPrincipalIDTx(ctx context.Context, tx bun.IDB, id string) (*ProfileDocument, error)

	// Merge writes the non-zero fields of doc over the stored document,
	// creating it when missing.
	Merge(ctx context.Context, id string, doc *ProfileDocument) (*ProfileDocument, error)
	MergeTx(ctx context.Context, tx bun.IDB, id string, doc *ProfileDocument) (*ProfileDocument, error)

	TouchLastLogin(ctx context.Context, id string) error
	TouchLastLoginTx(ctx context.Context, tx bun.IDB, id string) error
}

type profilesRepo struct {
	repository.Repository[*ProfileDocument]
	db *bun.DB
}

var (
	_ Profiles                                = (*profilesRepo)(nil)
	_ repository.Repository[*ProfileDocument] = (*profilesRepo)(nil)
)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*ProfileDocument](db, repository.ModelHandlers[*ProfileDocument]{
		NewRecord: func() *ProfileDocument { return &ProfileDocument{} },
		GetID: func(p *ProfileDocument) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *ProfileDocument, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
	})

	return &profilesRepo{
		Repository: repo,
		db:         db,
	}
}

func (p *profilesRepo) GetByPrincipalID(ctx context.Context, id string) (*ProfileDocument, error) {
	return p.GetByPrincipalIDTx(ctx, p.db, id)
}

func (p *profilesRepo) GetByPrincipalIDTx(ctx context.Context, tx bun.IDB, id string) (*ProfileDocument, error) {
	record := &ProfileDocument{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id,
				})
		}
		return nil, err
	}

	return record, nil
}

func (p *profilesRepo) Merge(ctx context.Context, id string, doc *ProfileDocument) (*ProfileDocument, error) {
	return p.MergeTx(ctx, p.db, id, doc)
}

func (p *profilesRepo) MergeTx(ctx context.Context, tx bun.IDB, id string, doc *ProfileDocument) (*ProfileDocument, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id,
			})
	}

	existing, err := p.GetByPrincipalIDTx(ctx, tx, id)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			return nil, err
		}

		doc.ID = pid
		if doc.CreatedAt == nil {
			now := time.Now()
			doc.CreatedAt = &now
		}
		return p.Repository.CreateTx(ctx, tx, doc)
	}

	doc.ID = existing.ID
	return p.Repository.UpdateTx(ctx, tx, doc,
		repository.UpdateByID(existing.ID.String()),
		repository.UpdateSkipZeroValues(),
	)
}

func (p *profilesRepo) TouchLastLogin(ctx context.Context, id string) error {
	return p.TouchLastLoginTx(ctx, p.db, id)
}

func (p *profilesRepo) TouchLastLoginTx(ctx context.Context, tx bun.IDB, id string) error {
	now := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "profiles" AS "prf"
		SET
			"last_login_at" = ?,
			"email_verified" = TRUE
		WHERE
			("prf".id = ?);
	`, now, id).Exec(ctx)

	return err
}
