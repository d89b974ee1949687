package ingest_api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ingesthub.systems/ingesthub/internal/datasets"
	"ingesthub.systems/ingesthub/internal/db"
)

type resolveSubject struct {
	Name string `json:"name"`
}

type resolveDatasetsRequest struct {
	ProjectID string           `json:"project_id"`
	Subjects  []resolveSubject `json:"subjects"`
}

// HandleResolveDatasets suggests a dataset directory for each subject of a
// pending ingest.
func HandleResolveDatasets(dbc *db.DatabaseConnection, datasetsRoot string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req resolveDatasetsRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if len(req.Subjects) == 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "subjects is required"})
		}
		projectID, err := db.ParseUUID(req.ProjectID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid project_id"})
		}

		names := make([]string, len(req.Subjects))
		for i, s := range req.Subjects {
			names[i] = s.Name
		}

		ctx := c.Request().Context()
		resolver := datasets.NewResolver(dbc.Queries(ctx), datasetsRoot)
		return c.JSON(http.StatusOK, resolver.Resolve(ctx, projectID, names))
	}
}

// HandleDatasetDirs lists the dataset directories available for manual
// assignment.
func HandleDatasetDirs(datasetsRoot string) echo.HandlerFunc {
	return func(c echo.Context) error {
		dirs := datasets.ListDirs(datasetsRoot)
		if dirs == nil {
			dirs = []string{}
		}
		return c.JSON(http.StatusOK, map[string]any{
			"datasets_root": datasetsRoot,
			"dirs":          dirs,
		})
	}
}
