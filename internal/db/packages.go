package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const packageColumns = `id, subject_id, name, source_description, disk_path, ingested_at,
file_count, total_size_bytes, status, package_type, picked_up, tags, metadata`

func scanPackage(row pgx.Row) (*Package, error) {
	var p Package
	err := row.Scan(
		&p.ID, &p.SubjectID, &p.Name, &p.SourceDescription, &p.DiskPath,
		&p.IngestedAt, &p.FileCount, &p.TotalSizeBytes, &p.Status,
		&p.PackageType, &p.PickedUp, &p.Tags, &p.Metadata,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type InsertPackageParams struct {
	SubjectID         pgtype.UUID
	Name              string
	SourceDescription string
	DiskPath          string
	PackageType       PackageType
	Tags              []string
	Metadata          PackageMetadata
}

const insertPackage = `
INSERT INTO packages (id, subject_id, name, source_description, disk_path, status, package_type, tags, metadata)
VALUES ($1, $2, $3, $4, $5, 'processing', $6, $7, $8)
RETURNING ` + packageColumns + `
`

// InsertPackage creates a package in processing status. The row is committed
// before any files are copied so a crashed run is visible to the recovery
// sweep on the next startup.
func (q *Queries) InsertPackage(ctx context.Context, params InsertPackageParams) (*Package, error) {
	tags := params.Tags
	if tags == nil {
		tags = []string{}
	}
	return scanPackage(q.db.QueryRow(ctx, insertPackage,
		NewUUID(), params.SubjectID, params.Name, TextOrNil(params.SourceDescription),
		TextOrNil(params.DiskPath), params.PackageType, tags, params.Metadata,
	))
}

const finalizePackage = `
UPDATE packages
SET status = 'ready',
    file_count = (SELECT count(*) FROM assets WHERE package_id = $1),
    total_size_bytes = (SELECT coalesce(sum(file_size_bytes), 0) FROM assets WHERE package_id = $1)
WHERE id = $1
RETURNING ` + packageColumns + `
`

// FinalizePackage recomputes the package totals from its assets and flips
// the status to ready.
func (q *Queries) FinalizePackage(ctx context.Context, packageID pgtype.UUID) (*Package, error) {
	return scanPackage(q.db.QueryRow(ctx, finalizePackage, packageID))
}

const markPackageError = `
UPDATE packages
SET status = 'error',
    metadata = metadata || jsonb_build_object('error', $2::text)
WHERE id = $1
`

func (q *Queries) MarkPackageError(ctx context.Context, packageID pgtype.UUID, message string) error {
	_, err := q.db.Exec(ctx, markPackageError, packageID, message)
	return err
}

const mergePackageMetadata = `
UPDATE packages
SET metadata = metadata || $2
WHERE id = $1
`

// MergePackageMetadata shallow-merges the given blob into the stored JSONB.
func (q *Queries) MergePackageMetadata(ctx context.Context, packageID pgtype.UUID, meta PackageMetadata) error {
	_, err := q.db.Exec(ctx, mergePackageMetadata, packageID, meta)
	return err
}

const linkPackageSubject = `
INSERT INTO packages_subjects (package_id, subject_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

// LinkPackageSubject records that a package contains media for a subject
// beyond its primary one.
func (q *Queries) LinkPackageSubject(ctx context.Context, packageID, subjectID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, linkPackageSubject, packageID, subjectID)
	return err
}

const recoverStuckPackages = `
UPDATE packages
SET status = 'error',
    metadata = metadata || '{"error": "interrupted by server restart"}'::jsonb
WHERE status = 'processing'
RETURNING id, name
`

// StuckPackage identifies a package left in processing by a crashed run.
type StuckPackage struct {
	ID   pgtype.UUID
	Name string
}

// RecoverStuckPackages marks every package still in processing status as
// errored. Meant to run once at startup, before the server accepts requests.
func (q *Queries) RecoverStuckPackages(ctx context.Context) ([]StuckPackage, error) {
	rows, err := q.db.Query(ctx, recoverStuckPackages)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stuck []StuckPackage
	for rows.Next() {
		var s StuckPackage
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		stuck = append(stuck, s)
	}
	return stuck, rows.Err()
}
