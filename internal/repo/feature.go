// Package repo contains all database access logic for the map editor API.
// Features live in a PostGIS table; geometry crosses the boundary as GeoJSON
// text and tags as jsonb. No business logic lives here, only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/mcraigtyler/map-editor/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Integration tests pass a transaction that is rolled back after each test.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FeatureRepo defines the persistence operations for features.
// The service layer depends on this interface so it can be unit-tested with a mock.
type FeatureRepo interface {
	// List returns one page of features ordered by created_at descending and
	// the number of features matching the bbox filter.
	List(ctx context.Context, f domain.FeatureFilter) ([]domain.FeatureRecord, int64, error)

	// GetByID returns domain.ErrNotFound if no feature has that id.
	GetByID(ctx context.Context, id uuid.UUID) (domain.FeatureRecord, error)

	// Create inserts a feature and returns the persisted row. If the insert
	// returns no row, the error wraps domain.ErrNotFound.
	Create(ctx context.Context, w domain.FeatureWrite) (domain.FeatureRecord, error)

	// Update replaces kind, geometry and tags. Returns domain.ErrNotFound if absent.
	Update(ctx context.Context, id uuid.UUID, w domain.FeatureWrite) (domain.FeatureRecord, error)

	// ReplaceTags overwrites the tag map. Returns domain.ErrNotFound if absent.
	ReplaceTags(ctx context.Context, id uuid.UUID, tags domain.Tags) (domain.FeatureRecord, error)

	// Delete returns domain.ErrNotFound if nothing was removed.
	Delete(ctx context.Context, id uuid.UUID) error
}

// pgFeatureRepo is the PostGIS implementation of FeatureRepo.
type pgFeatureRepo struct {
	db db
}

// NewFeatureRepo constructs a FeatureRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewFeatureRepo(db db) FeatureRepo {
	return &pgFeatureRepo{db: db}
}

// featureColumns is shared by every statement that returns a feature row.
const featureColumns = `id, kind, ST_AsGeoJSON(geom) AS geometry, tags, created_at, updated_at`

// bboxPredicate matches rows whose bounding box intersects the envelope.
// A NULL min_lon disables the filter.
const bboxPredicate = `(@min_lon::float8 IS NULL
	OR geom && ST_MakeEnvelope(@min_lon::float8, @min_lat::float8, @max_lon::float8, @max_lat::float8, 4326))`

func (r *pgFeatureRepo) List(ctx context.Context, f domain.FeatureFilter) ([]domain.FeatureRecord, int64, error) {
	args := pgx.NamedArgs{
		"min_lon": (*float64)(nil),
		"min_lat": (*float64)(nil),
		"max_lon": (*float64)(nil),
		"max_lat": (*float64)(nil),
		"limit":   f.Limit,
		"offset":  f.Offset,
	}
	if b := f.BBox; b != nil {
		args["min_lon"], args["min_lat"] = b.MinLon, b.MinLat
		args["max_lon"], args["max_lat"] = b.MaxLon, b.MaxLat
	}

	const countQ = `SELECT count(*) FROM features WHERE ` + bboxPredicate

	var total int64
	if err := r.db.QueryRow(ctx, countQ, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.FeatureRepo.List: count: %w", err)
	}

	const q = `
		SELECT ` + featureColumns + `
		FROM features
		WHERE ` + bboxPredicate + `
		ORDER BY created_at DESC, id
		LIMIT @limit OFFSET @offset`

	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.FeatureRepo.List: %w", err)
	}
	defer rows.Close()

	records := []domain.FeatureRecord{}
	for rows.Next() {
		rec, err := scanFeature(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repo.FeatureRepo.List: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.FeatureRepo.List: rows: %w", err)
	}
	return records, total, nil
}

func (r *pgFeatureRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.FeatureRecord, error) {
	const q = `SELECT ` + featureColumns + ` FROM features WHERE id = @id`

	rec, err := scanFeature(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.FeatureRecord{}, fmt.Errorf("repo.FeatureRepo.GetByID: %w", err)
	}
	return rec, nil
}

// Create uses clock_timestamp so rows inserted in one transaction still
// get distinct, increasing timestamps.
func (r *pgFeatureRepo) Create(ctx context.Context, w domain.FeatureWrite) (domain.FeatureRecord, error) {
	const q = `
		INSERT INTO features (kind, geom, tags, created_at, updated_at)
		SELECT @kind::text, ST_SetSRID(ST_GeomFromGeoJSON(@geometry::text), 4326), @tags::jsonb, ts.now, ts.now
		FROM (SELECT clock_timestamp() AS now) AS ts
		RETURNING ` + featureColumns

	rec, err := scanFeature(r.db.QueryRow(ctx, q, writeArgs(w)))
	if err != nil {
		return domain.FeatureRecord{}, fmt.Errorf("repo.FeatureRepo.Create: %w", err)
	}
	return rec, nil
}

func (r *pgFeatureRepo) Update(ctx context.Context, id uuid.UUID, w domain.FeatureWrite) (domain.FeatureRecord, error) {
	const q = `
		UPDATE features
		SET kind       = @kind,
		    geom       = ST_SetSRID(ST_GeomFromGeoJSON(@geometry::text), 4326),
		    tags       = @tags::jsonb,
		    updated_at = clock_timestamp()
		WHERE id = @id
		RETURNING ` + featureColumns

	args := writeArgs(w)
	args["id"] = id

	rec, err := scanFeature(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.FeatureRecord{}, fmt.Errorf("repo.FeatureRepo.Update: %w", err)
	}
	return rec, nil
}

func (r *pgFeatureRepo) ReplaceTags(ctx context.Context, id uuid.UUID, tags domain.Tags) (domain.FeatureRecord, error) {
	const q = `
		UPDATE features
		SET tags       = @tags::jsonb,
		    updated_at = clock_timestamp()
		WHERE id = @id
		RETURNING ` + featureColumns

	if tags == nil {
		tags = domain.Tags{}
	}
	rec, err := scanFeature(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id, "tags": tags}))
	if err != nil {
		return domain.FeatureRecord{}, fmt.Errorf("repo.FeatureRepo.ReplaceTags: %w", err)
	}
	return rec, nil
}

func (r *pgFeatureRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM features WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return fmt.Errorf("repo.FeatureRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.FeatureRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

func writeArgs(w domain.FeatureWrite) pgx.NamedArgs {
	tags := w.Tags
	if tags == nil {
		tags = domain.Tags{}
	}
	return pgx.NamedArgs{
		"kind":     string(w.Kind),
		"geometry": w.Geometry,
		"tags":     tags,
	}
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanFeature maps a row into a domain.FeatureRecord. Geometry and tags are
// scanned into untyped values: text for ST_AsGeoJSON, a decoded map for jsonb.
func scanFeature(s scanner) (domain.FeatureRecord, error) {
	var (
		rec domain.FeatureRecord
		id  pgtype.UUID
	)
	err := s.Scan(&id, &rec.Kind, &rec.Geometry, &rec.Tags, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FeatureRecord{}, domain.ErrNotFound
		}
		return domain.FeatureRecord{}, err
	}
	rec.ID = uuid.UUID(id.Bytes)
	return rec, nil
}
