package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const assetColumns = `id, package_id, subject_id, filename, file_type, asset_type, mime_type,
file_size_bytes, disk_path, proxy_path, thumbnail_path, width, height, duration_seconds,
codec, camera, review_status, is_on_disk, picked_up, tags, metadata, created_at`

func scanAsset(row pgx.Row) (*Asset, error) {
	var a Asset
	err := row.Scan(
		&a.ID, &a.PackageID, &a.SubjectID, &a.Filename, &a.FileType, &a.AssetType,
		&a.MimeType, &a.FileSizeBytes, &a.DiskPath, &a.ProxyPath, &a.ThumbnailPath,
		&a.Width, &a.Height, &a.DurationSeconds, &a.Codec, &a.Camera,
		&a.ReviewStatus, &a.IsOnDisk, &a.PickedUp, &a.Tags, &a.Metadata, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type InsertAssetParams struct {
	PackageID       pgtype.UUID
	SubjectID       pgtype.UUID
	Filename        string
	FileType        FileType
	AssetType       string
	MimeType        string
	FileSizeBytes   int64
	DiskPath        string
	ProxyPath       string
	ThumbnailPath   string
	Width           pgtype.Int4
	Height          pgtype.Int4
	DurationSeconds pgtype.Float8
	Codec           string
	Camera          string
	Tags            []string
	Metadata        AssetMetadata
}

const insertAsset = `
INSERT INTO assets (id, package_id, subject_id, filename, file_type, asset_type, mime_type,
	file_size_bytes, disk_path, proxy_path, thumbnail_path, width, height, duration_seconds,
	codec, camera, tags, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
RETURNING ` + assetColumns + `
`

func (q *Queries) InsertAsset(ctx context.Context, params InsertAssetParams) (*Asset, error) {
	assetType := params.AssetType
	if assetType == "" {
		assetType = "raw"
	}
	tags := params.Tags
	if tags == nil {
		tags = []string{}
	}
	return scanAsset(q.db.QueryRow(ctx, insertAsset,
		NewUUID(), params.PackageID, params.SubjectID, params.Filename,
		params.FileType, assetType, TextOrNil(params.MimeType),
		pgtype.Int8{Int64: params.FileSizeBytes, Valid: true}, params.DiskPath,
		TextOrNil(params.ProxyPath), TextOrNil(params.ThumbnailPath),
		params.Width, params.Height, params.DurationSeconds,
		TextOrNil(params.Codec), TextOrNil(params.Camera), tags, params.Metadata,
	))
}

const deleteAssetsByPackage = `
DELETE FROM assets WHERE package_id = $1
`

// DeleteAssetsByPackage removes every asset row of a package. Used to roll
// back a failed ingest run before the package itself is marked or removed.
func (q *Queries) DeleteAssetsByPackage(ctx context.Context, packageID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, deleteAssetsByPackage, packageID)
	return err
}
