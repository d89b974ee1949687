package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getProjectByID = `
SELECT id, name, description, project_type, client, notes, tags, created_at, updated_at
FROM projects
WHERE id = $1
`

func (q *Queries) GetProjectByID(ctx context.Context, id pgtype.UUID) (*Project, error) {
	var p Project
	err := q.db.QueryRow(ctx, getProjectByID, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.ProjectType, &p.Client, &p.Notes,
		&p.Tags, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
