package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"ingesthub.systems/ingesthub/cmd/api/handlers/fileserver"
	"ingesthub.systems/ingesthub/cmd/api/handlers/ingest_api"
	"ingesthub.systems/ingesthub/internal/config"
	"ingesthub.systems/ingesthub/internal/db"
	"ingesthub.systems/ingesthub/internal/ingest"
	"ingesthub.systems/ingesthub/internal/media"
)

type Webserver struct {
	*echo.Echo
	dbc  *db.DatabaseConnection
	conf *config.Config
}

func NewWebserver(ctx context.Context, dbc *db.DatabaseConnection, conf *config.Config) (*Webserver, error) {
	s := &Webserver{
		Echo: echo.New(),
		dbc:  dbc,
		conf: conf,
	}

	var assist *ingest.Assist
	if conf.AssistEnabled() {
		assist = ingest.NewAssist(conf.OpenAIAPIKey, conf.OpenAIBaseURL, conf.OpenAIModel)
	}
	classifier := &ingest.Classifier{Assist: assist}

	orchestrator := ingest.NewOrchestrator(ingest.Options{
		Store:      dbc.Queries(ctx),
		Generator:  media.NewTranscoder(conf.ProxyHeight, conf.IngestWorkers),
		ProxyDir:   conf.ProxyDir,
		MediaRoots: conf.MediaRoots(),
	})

	s.registerRoutes(classifier, orchestrator)
	s.setupMiddleware()

	return s, nil
}

func (s *Webserver) setupMiddleware() {
	s.HideBanner = true
	s.HidePort = true
	s.Use(middleware.BodyLimit("8M"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		// Gzip buffering would defeat SSE flushing and recompressing
		// proxies wastes cycles.
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/api/ingest/execute" || c.Path() == "/media/*"
		},
	}))
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/api/ingest/execute"
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))
}

func (s *Webserver) registerRoutes(classifier *ingest.Classifier, orchestrator *ingest.Orchestrator) {
	s.GET("/healthz", func(c echo.Context) error {
		if err := s.dbc.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	apiGroup := s.Group("/api")
	apiGroup.POST("/ingest/analyze", ingest_api.HandleAnalyze(classifier))
	apiGroup.POST("/ingest/resolve-datasets", ingest_api.HandleResolveDatasets(s.dbc, s.conf.DatasetsRoot))
	apiGroup.GET("/ingest/dataset-dirs", ingest_api.HandleDatasetDirs(s.conf.DatasetsRoot))
	apiGroup.POST("/ingest/execute", ingest_api.HandleExecute(orchestrator))

	s.GET("/media/*", fileserver.HandleMedia(s.conf.MediaRoots()))
}
