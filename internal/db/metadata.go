package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5/pgtype"
)

// FaceMetadata holds the known fields embedded in aligned face PNG headers.
type FaceMetadata struct {
	FaceType       string   `json:"face_type,omitempty"`
	Yaw            *float64 `json:"yaw,omitempty"`
	Pitch          *float64 `json:"pitch,omitempty"`
	Roll           *float64 `json:"roll,omitempty"`
	Sharpness      *float64 `json:"sharpness,omitempty"`
	SourceFilename string   `json:"source_filename,omitempty"`
	SourceFilepath string   `json:"source_filepath,omitempty"`
	SourceWidth    int      `json:"source_width,omitempty"`
	SourceHeight   int      `json:"source_height,omitempty"`
}

// AssetMetadata is the per-asset JSONB blob: typed known fields plus an
// Extra map so unknown keys round-trip losslessly.
type AssetMetadata struct {
	FPS             *float64      `json:"fps,omitempty"`
	PixelFormat     string        `json:"pixel_format,omitempty"`
	ColorSpace      string        `json:"color_space,omitempty"`
	Bitrate         int64         `json:"bitrate,omitempty"`
	AudioCodec      string        `json:"audio_codec,omitempty"`
	AudioSampleRate string        `json:"audio_sample_rate,omitempty"`
	Channels        int           `json:"channels,omitempty"`
	ContainerFormat string        `json:"container_format,omitempty"`
	Face            *FaceMetadata `json:"face,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// PoseBin is one cell of the yaw/pitch pose histogram on a VFX package.
type PoseBin struct {
	Yaw   int `json:"y"`
	Pitch int `json:"p"`
	Count int `json:"count"`
}

// PackageMetadata is the per-package JSONB blob.
type PackageMetadata struct {
	PackageType         string    `json:"package_type,omitempty"`
	Error               string    `json:"error,omitempty"`
	FaceTypes           []string  `json:"face_types,omitempty"`
	AlignedCount        int       `json:"aligned_count,omitempty"`
	SourceWidth         int       `json:"source_width,omitempty"`
	SourceHeight        int       `json:"source_height,omitempty"`
	SourceVideoPath     string    `json:"source_video_path,omitempty"`
	SourceVideoFilename string    `json:"source_video_filename,omitempty"`
	GridAssetID         string    `json:"grid_asset_id,omitempty"`
	PlateAssetID        string    `json:"plate_asset_id,omitempty"`
	PoseData            []PoseBin `json:"pose_data,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// marshalWithExtra marshals the typed fields of v and merges unknown keys back in.
func marshalWithExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	known, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return known, nil
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, taken := merged[k]; !taken {
			merged[k] = raw
		}
	}
	return json.Marshal(merged)
}

// unmarshalWithExtra decodes data into v and collects keys v does not declare.
func unmarshalWithExtra(data []byte, v any) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}

	all := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, key := range jsonKeys(v) {
		delete(all, key)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// jsonKeys lists the json tag names of v's struct fields.
func jsonKeys(v any) []string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		for j, r := range tag {
			if r == ',' {
				tag = tag[:j]
				break
			}
		}
		keys = append(keys, tag)
	}
	return keys
}

func (m AssetMetadata) MarshalJSON() ([]byte, error) {
	type plain AssetMetadata
	return marshalWithExtra(plain(m), m.Extra)
}

func (m *AssetMetadata) UnmarshalJSON(data []byte) error {
	type plain AssetMetadata
	var p plain
	extra, err := unmarshalWithExtra(data, &p)
	if err != nil {
		return err
	}
	*m = AssetMetadata(p)
	m.Extra = extra
	return nil
}

func (m PackageMetadata) MarshalJSON() ([]byte, error) {
	type plain PackageMetadata
	return marshalWithExtra(plain(m), m.Extra)
}

func (m *PackageMetadata) UnmarshalJSON(data []byte) error {
	type plain PackageMetadata
	var p plain
	extra, err := unmarshalWithExtra(data, &p)
	if err != nil {
		return err
	}
	*m = PackageMetadata(p)
	m.Extra = extra
	return nil
}

// Scan implements sql.Scanner for reading from the database.
func (m *AssetMetadata) Scan(value any) error {
	if value == nil {
		*m = AssetMetadata{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("db.AssetMetadata.Scan: expected []byte or string, got %T", value)
	}
}

// Value implements driver.Valuer for writing to the database.
func (m AssetMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// ScanText implements the pgtype.TextScanner interface for pgx v5.
func (m *AssetMetadata) ScanText(v pgtype.Text) error {
	if !v.Valid {
		*m = AssetMetadata{}
		return nil
	}
	return json.Unmarshal([]byte(v.String), m)
}

// TextValue implements the pgtype.TextValuer interface for pgx v5.
func (m AssetMetadata) TextValue() (pgtype.Text, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return pgtype.Text{}, err
	}
	return pgtype.Text{String: string(b), Valid: true}, nil
}

func (m *PackageMetadata) Scan(value any) error {
	if value == nil {
		*m = PackageMetadata{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("db.PackageMetadata.Scan: expected []byte or string, got %T", value)
	}
}

func (m PackageMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *PackageMetadata) ScanText(v pgtype.Text) error {
	if !v.Valid {
		*m = PackageMetadata{}
		return nil
	}
	return json.Unmarshal([]byte(v.String), m)
}

func (m PackageMetadata) TextValue() (pgtype.Text, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return pgtype.Text{}, err
	}
	return pgtype.Text{String: string(b), Valid: true}, nil
}
