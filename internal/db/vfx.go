package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// VFXRollup is the cross-asset aggregate computed over an extraction
// package once its assets are inserted.
type VFXRollup struct {
	FaceTypes           []string
	AlignedCount        int
	SourceWidth         int
	SourceHeight        int
	SourceVideoPath     string
	SourceVideoFilename string
	GridAssetID         string
	PlateAssetID        string
	PoseData            []PoseBin
}

const vfxFaceAggregate = `
SELECT
    coalesce(array_agg(DISTINCT metadata->'face'->>'face_type')
        FILTER (WHERE metadata->'face'->>'face_type' IS NOT NULL), '{}') AS face_types,
    count(*) FILTER (WHERE asset_type = 'aligned') AS aligned_count,
    max((metadata->'face'->>'source_width')::int) AS source_width,
    max((metadata->'face'->>'source_height')::int) AS source_height
FROM assets
WHERE package_id = $1
`

const vfxSourceVideo = `
SELECT metadata->'face'->>'source_filepath' AS path,
       coalesce(metadata->'face'->>'source_filename', '') AS name
FROM assets
WHERE package_id = $1 AND asset_type = 'aligned'
  AND metadata->'face'->>'source_filepath' IS NOT NULL
LIMIT 1
`

const vfxAssetByType = `
SELECT id, disk_path FROM assets
WHERE package_id = $1 AND asset_type = $2
LIMIT 1
`

const vfxPoseBins = `
SELECT (floor((metadata->'face'->>'yaw')::float / 10) * 10)::int AS y,
       (floor((metadata->'face'->>'pitch')::float / 10) * 10)::int AS p,
       count(*) AS count
FROM assets
WHERE package_id = $1 AND asset_type = 'aligned'
  AND metadata->'face'->>'yaw' IS NOT NULL
GROUP BY 1, 2
ORDER BY 1, 2
`

// VFXPackageRollup aggregates face metadata, source references, and the
// yaw/pitch pose histogram for one package.
func (q *Queries) VFXPackageRollup(ctx context.Context, packageID pgtype.UUID) (*VFXRollup, error) {
	var r VFXRollup

	var srcW, srcH pgtype.Int4
	err := q.db.QueryRow(ctx, vfxFaceAggregate, packageID).Scan(
		&r.FaceTypes, &r.AlignedCount, &srcW, &srcH,
	)
	if err != nil {
		return nil, err
	}
	r.SourceWidth = int(srcW.Int32)
	r.SourceHeight = int(srcH.Int32)

	var path, name string
	err = q.db.QueryRow(ctx, vfxSourceVideo, packageID).Scan(&path, &name)
	if err == nil {
		r.SourceVideoPath = path
		r.SourceVideoFilename = name
	} else if err != pgx.ErrNoRows {
		return nil, err
	}

	var id pgtype.UUID
	var diskPath string
	err = q.db.QueryRow(ctx, vfxAssetByType, packageID, "grid").Scan(&id, &diskPath)
	if err == nil {
		r.GridAssetID = UUIDString(id)
	} else if err != pgx.ErrNoRows {
		return nil, err
	}

	err = q.db.QueryRow(ctx, vfxAssetByType, packageID, "plate").Scan(&id, &diskPath)
	if err == nil {
		r.PlateAssetID = UUIDString(id)
		if r.SourceVideoPath == "" {
			r.SourceVideoPath = diskPath
		}
	} else if err != pgx.ErrNoRows {
		return nil, err
	}

	rows, err := q.db.Query(ctx, vfxPoseBins, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var b PoseBin
		if err := rows.Scan(&b.Yaw, &b.Pitch, &b.Count); err != nil {
			return nil, err
		}
		r.PoseData = append(r.PoseData, b)
	}
	return &r, rows.Err()
}

// Metadata converts the rollup into a package metadata merge blob.
func (r *VFXRollup) Metadata() PackageMetadata {
	return PackageMetadata{
		FaceTypes:           r.FaceTypes,
		AlignedCount:        r.AlignedCount,
		SourceWidth:         r.SourceWidth,
		SourceHeight:        r.SourceHeight,
		SourceVideoPath:     r.SourceVideoPath,
		SourceVideoFilename: r.SourceVideoFilename,
		GridAssetID:         r.GridAssetID,
		PlateAssetID:        r.PlateAssetID,
		PoseData:            r.PoseData,
	}
}
