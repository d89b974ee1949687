package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// PackageStatus tracks a package through its ingest lifecycle.
type PackageStatus string

const (
	PackageStatusIngested   PackageStatus = "ingested"
	PackageStatusProcessing PackageStatus = "processing"
	PackageStatusReady      PackageStatus = "ready"
	PackageStatusError      PackageStatus = "error"
)

// PackageType distinguishes the two recognized delivery layouts.
type PackageType string

const (
	PackageTypeAtman PackageType = "atman"
	PackageTypeVFX   PackageType = "vfx"
)

// FileType is the coarse media class of an asset.
type FileType string

const (
	FileTypeVideo FileType = "video"
	FileTypeImage FileType = "image"
	FileTypeAudio FileType = "audio"
	FileTypeOther FileType = "other"
)

type Project struct {
	ID          pgtype.UUID
	Name        string
	Description string
	ProjectType string
	Client      pgtype.Text
	Notes       pgtype.Text
	Tags        []string
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

type Subject struct {
	ID           pgtype.UUID
	ProjectID    pgtype.UUID
	Name         string
	Description  string
	ThumbnailURL pgtype.Text
	DatasetDir   pgtype.Text
	Notes        pgtype.Text
	Tags         []string
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

type Package struct {
	ID                pgtype.UUID
	SubjectID         pgtype.UUID
	Name              string
	SourceDescription string
	DiskPath          pgtype.Text
	IngestedAt        pgtype.Timestamptz
	FileCount         int32
	TotalSizeBytes    int64
	Status            PackageStatus
	PackageType       PackageType
	PickedUp          bool
	Tags              []string
	Metadata          PackageMetadata
}

type Asset struct {
	ID              pgtype.UUID
	PackageID       pgtype.UUID
	SubjectID       pgtype.UUID
	Filename        string
	FileType        FileType
	AssetType       string
	MimeType        pgtype.Text
	FileSizeBytes   pgtype.Int8
	DiskPath        string
	ProxyPath       pgtype.Text
	ThumbnailPath   pgtype.Text
	Width           pgtype.Int4
	Height          pgtype.Int4
	DurationSeconds pgtype.Float8
	Codec           pgtype.Text
	Camera          pgtype.Text
	ReviewStatus    string
	IsOnDisk        bool
	PickedUp        bool
	Tags            []string
	Metadata        AssetMetadata
	CreatedAt       pgtype.Timestamptz
}
