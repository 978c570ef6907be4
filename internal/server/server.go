// Copyright Dasan Software Lab, 2026. All rights reserved.

// Package server exposes the verification pipeline over HTTP: spreadsheet
// upload, background verification jobs with progress and download, and
// direct single-book search endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dasanlab/bookcheck/internal/batch"
	"github.com/dasanlab/bookcheck/internal/cache"
	"github.com/dasanlab/bookcheck/internal/holdings"
	"github.com/dasanlab/bookcheck/internal/xlsx"
	"github.com/dasanlab/bookcheck/pkg/types"
)

const previewRows = 5

// Server wires the HTTP surface to the pipeline stages. Direct search
// endpoints share one result cache; each verification job gets its own.
type Server struct {
	app      *fiber.App
	cfg      types.PipelineConfig
	resolver batch.Resolver
	searcher batch.Searcher
	cache    *cache.ResultCache
	jobs     *JobStore
	log      *zap.Logger
}

// New builds the server and registers all routes. The resolver and
// searcher are normally the catalog and holdings clients.
func New(cfg types.PipelineConfig, resolver batch.Resolver, searcher batch.Searcher, jobs *JobStore, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8300"
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = "uploads"
	}
	if cfg.Server.OutputDir == "" {
		cfg.Server.OutputDir = "outputs"
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			BodyLimit:             20 * 1024 * 1024,
		}),
		cfg:      cfg,
		resolver: resolver,
		searcher: searcher,
		cache:    cache.New(),
		jobs:     jobs,
		log:      log,
	}

	s.app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
			s.log.Error("request failed", fields...)
			return err
		}
		s.log.Info("request", fields...)
		return nil
	})

	s.app.Get("/", s.handleHealth)
	api := s.app.Group("/api")
	api.Get("/regions", s.handleRegions)
	api.Post("/upload", s.handleUpload)
	api.Post("/verify/:fileID", s.handleVerify)
	api.Get("/jobs", s.handleJobList)
	api.Get("/jobs/:id", s.handleJobStatus)
	api.Get("/jobs/:id/download", s.handleJobDownload)
	api.Post("/search/catalog", s.handleCatalogSearch)
	api.Post("/search/holdings", s.handleHoldingsSearch)
	api.Post("/search/book", s.handleBookSearch)

	return s
}

// App exposes the fiber application for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen starts serving on the configured address and blocks.
func (s *Server) Listen() error {
	s.log.Info("starting server", zap.String("addr", s.cfg.Server.Addr))
	return s.app.Listen(s.cfg.Server.Addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "service": "bookcheck"})
}

func (s *Server) handleRegions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"regions":    holdings.Regions(),
		"partitions": holdings.AllPartitions(),
	})
}

// handleUpload accepts a multipart spreadsheet, stores it under the upload
// directory, and returns a file ID plus a short preview of the parsed rows.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing file field"})
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".xlsx") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "only .xlsx files are accepted"})
	}

	if err := os.MkdirAll(s.cfg.Server.UploadDir, 0o755); err != nil {
		return fmt.Errorf("creating upload directory: %w", err)
	}

	fileID := uuid.NewString()
	dest := s.uploadPath(fileID)
	if err := c.SaveFile(fh, dest); err != nil {
		return fmt.Errorf("saving upload: %w", err)
	}

	rows, err := xlsx.ReadInput(dest)
	if err != nil {
		os.Remove(dest)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": fmt.Sprintf("unreadable spreadsheet: %v", err)})
	}

	preview := rows
	if len(preview) > previewRows {
		preview = preview[:previewRows]
	}

	s.log.Info("spreadsheet uploaded",
		zap.String("file_id", fileID),
		zap.String("name", fh.Filename),
		zap.Int("rows", len(rows)))

	return c.JSON(fiber.Map{
		"file_id": fileID,
		"rows":    len(rows),
		"preview": preview,
	})
}

// handleVerify starts a background verification job for an uploaded file.
func (s *Server) handleVerify(c *fiber.Ctx) error {
	fileID := c.Params("fileID")
	path := s.uploadPath(fileID)

	rows, err := xlsx.ReadInput(path)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown file id"})
	}
	if len(rows) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "spreadsheet has no data rows"})
	}

	job, err := s.jobs.Create(c.Context(), path, len(rows))
	if err != nil {
		return fmt.Errorf("creating job: %w", err)
	}

	region := c.Query("region", s.cfg.Batch.Region)
	go s.runJob(job, rows, region)

	return c.Status(fiber.StatusAccepted).JSON(job)
}

// runJob executes one verification job to completion. It runs detached
// from the request that started it.
func (s *Server) runJob(job Job, rows []types.Row, region string) {
	ctx := context.Background()
	log := s.log.With(zap.String("job", job.ID))

	if err := s.jobs.MarkRunning(ctx, job.ID); err != nil {
		log.Error("could not start job", zap.Error(err))
		return
	}

	if err := os.MkdirAll(s.cfg.Server.OutputDir, 0o755); err != nil {
		log.Error("output directory unavailable", zap.Error(err))
		s.jobs.MarkFailed(ctx, job.ID, err.Error())
		return
	}
	outPath := filepath.Join(s.cfg.Server.OutputDir, job.ID+".xlsx")
	sink := xlsx.Writer{OutputPath: outPath}

	partitions := s.partitionsFor(region)
	orch := batch.New(s.resolver, s.searcher, nil, s.cfg.Catalog.Threshold, partitions, s.cfg.Batch, log)
	orch.Progress = func(done, total int) {
		if err := s.jobs.Progress(ctx, job.ID, done); err != nil {
			log.Warn("progress update failed", zap.Error(err))
		}
	}

	records, err := orch.Run(ctx, rows, sink)
	if err != nil {
		s.jobs.MarkFailed(ctx, job.ID, err.Error())
		return
	}
	if err := xlsx.WriteOutput(outPath, records); err != nil {
		log.Error("output write failed", zap.Error(err))
		s.jobs.MarkFailed(ctx, job.ID, err.Error())
		return
	}
	if err := s.jobs.MarkCompleted(ctx, job.ID, outPath); err != nil {
		log.Error("could not complete job", zap.Error(err))
		return
	}
	log.Info("job completed", zap.Int("rows", len(records)))
}

func (s *Server) handleJobList(c *fiber.Ctx) error {
	jobs, err := s.jobs.List(c.Context())
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}
	return c.JSON(fiber.Map{"jobs": jobs})
}

func (s *Server) handleJobStatus(c *fiber.Ctx) error {
	job, err := s.jobs.Get(c.Context(), c.Params("id"))
	if errors.Is(err, ErrJobNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown job id"})
	}
	if err != nil {
		return fmt.Errorf("fetching job: %w", err)
	}
	return c.JSON(job)
}

func (s *Server) handleJobDownload(c *fiber.Ctx) error {
	job, err := s.jobs.Get(c.Context(), c.Params("id"))
	if errors.Is(err, ErrJobNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown job id"})
	}
	if err != nil {
		return fmt.Errorf("fetching job: %w", err)
	}
	if job.State != JobCompleted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": fmt.Sprintf("job is %s, not completed", job.State),
		})
	}
	return c.Download(job.OutputPath, "bookcheck-results.xlsx")
}

type catalogSearchRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

func (s *Server) handleCatalogSearch(c *fiber.Ctx) error {
	var req catalogSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	res, hit := s.cache.GetISBN(req.Title, req.Author)
	if !hit {
		var err error
		res, err = s.resolver.ResolveISBN(c.Context(), req.Title, req.Author, s.cfg.Catalog.Threshold)
		if err != nil {
			s.log.Warn("catalog search failed", zap.String("title", req.Title), zap.Error(err))
		}
		s.cache.PutISBN(req.Title, req.Author, res)
	}
	return c.JSON(res)
}

type holdingsSearchRequest struct {
	ISBN   string `json:"isbn"`
	School string `json:"school"`
	Region string `json:"region,omitempty"`
}

func (s *Server) handleHoldingsSearch(c *fiber.Ctx) error {
	var req holdingsSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.ISBN == "" || req.School == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "isbn and school are required"})
	}

	dec, hit := s.cache.GetHoldings(req.School, req.ISBN)
	if !hit {
		dec = s.searcher.Resolve(c.Context(), req.ISBN, req.School, s.partitionsFor(req.Region))
		s.cache.PutHoldings(req.School, req.ISBN, dec)
	}
	return c.JSON(dec)
}

type bookSearchRequest struct {
	School string `json:"school"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Region string `json:"region,omitempty"`
}

// handleBookSearch runs both stages for a single book, the same flow a
// batch row goes through.
func (s *Server) handleBookSearch(c *fiber.Ctx) error {
	var req bookSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.School == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "school is required"})
	}

	orch := batch.New(s.resolver, s.searcher, s.cache,
		s.cfg.Catalog.Threshold, s.partitionsFor(req.Region), s.cfg.Batch, s.log)
	rec := orch.ProcessRow(c.Context(), types.Row{
		School: req.School,
		Title:  req.Title,
		Author: req.Author,
	})
	return c.JSON(rec)
}

func (s *Server) uploadPath(fileID string) string {
	return filepath.Join(s.cfg.Server.UploadDir, fileID+".xlsx")
}

// partitionsFor picks the partition list for a request: an explicit
// configuration wins, otherwise the region orders the full list.
func (s *Server) partitionsFor(region string) []string {
	if len(s.cfg.Holdings.Partitions) > 0 {
		return holdings.Dedup(s.cfg.Holdings.Partitions)
	}
	return holdings.PartitionsFor(region)
}
