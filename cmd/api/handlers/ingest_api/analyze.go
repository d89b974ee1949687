package ingest_api

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"ingesthub.systems/ingesthub/internal/ingest"
)

type analyzeRequest struct {
	SourcePath string `json:"source_path"`
}

// HandleAnalyze scans a delivery directory and returns the classification
// proposal for operator review.
func HandleAnalyze(classifier *ingest.Classifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req analyzeRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if req.SourcePath == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "source_path is required"})
		}
		if info, err := os.Stat(req.SourcePath); err != nil || !info.IsDir() {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "source path not found: " + req.SourcePath})
		}

		analysis, err := classifier.Analyze(c.Request().Context(), req.SourcePath)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, analysis)
	}
}
