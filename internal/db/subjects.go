package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const subjectColumns = `id, project_id, name, description, thumbnail_url, dataset_dir, notes, tags, created_at, updated_at`

func scanSubject(row pgx.Row) (*Subject, error) {
	var s Subject
	err := row.Scan(
		&s.ID, &s.ProjectID, &s.Name, &s.Description, &s.ThumbnailURL,
		&s.DatasetDir, &s.Notes, &s.Tags, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

const getSubjectByName = `
SELECT ` + subjectColumns + `
FROM subjects
WHERE project_id = $1 AND name = $2
`

func (q *Queries) GetSubjectByName(ctx context.Context, projectID pgtype.UUID, name string) (*Subject, error) {
	return scanSubject(q.db.QueryRow(ctx, getSubjectByName, projectID, name))
}

const upsertSubject = `
INSERT INTO subjects (id, project_id, name)
VALUES ($1, $2, $3)
ON CONFLICT (project_id, name) DO UPDATE SET updated_at = now()
RETURNING ` + subjectColumns + `
`

// GetOrCreateSubject returns the subject with the given normalized name
// within a project, creating it if it does not exist yet.
func (q *Queries) GetOrCreateSubject(ctx context.Context, projectID pgtype.UUID, name string) (*Subject, error) {
	return scanSubject(q.db.QueryRow(ctx, upsertSubject, NewUUID(), projectID, name))
}

const setSubjectDatasetDir = `
UPDATE subjects
SET dataset_dir = $2, updated_at = now()
WHERE id = $1
`

func (q *Queries) SetSubjectDatasetDir(ctx context.Context, subjectID pgtype.UUID, dir string) error {
	_, err := q.db.Exec(ctx, setSubjectDatasetDir, subjectID, TextOrNil(dir))
	return err
}

const setSubjectThumbnail = `
UPDATE subjects
SET thumbnail_url = $2, updated_at = now()
WHERE id = $1 AND thumbnail_url IS NULL
`

// SetSubjectThumbnailIfEmpty assigns a thumbnail only when the subject has
// none yet, so the first ingested asset wins.
func (q *Queries) SetSubjectThumbnailIfEmpty(ctx context.Context, subjectID pgtype.UUID, url string) error {
	_, err := q.db.Exec(ctx, setSubjectThumbnail, subjectID, url)
	return err
}
