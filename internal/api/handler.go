package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-processor/internal/categorizer"
	"github.com/insightdelivered/statement-processor/internal/extractor"
	"github.com/insightdelivered/statement-processor/internal/logger"
	"github.com/insightdelivered/statement-processor/internal/models"
	"github.com/insightdelivered/statement-processor/internal/parser"
	"github.com/insightdelivered/statement-processor/internal/pipeline"
	"github.com/insightdelivered/statement-processor/internal/writer"
)

// uploadTTL bounds how long an upload stays fetchable by the AI path.
const uploadTTL = 5 * time.Minute

// ExtractResponse is the JSON response from the /api/extract endpoint.
type ExtractResponse struct {
	Success         bool                 `json:"success"`
	Error           string               `json:"error,omitempty"`
	RequestID       string               `json:"requestId,omitempty"`
	Institution     string               `json:"institution,omitempty"`
	Bank            string               `json:"bank,omitempty"`
	Method          string               `json:"method,omitempty"`
	AccountNumber   string               `json:"accountNumber,omitempty"`
	StatementPeriod string               `json:"statementPeriod,omitempty"`
	Transactions    []models.Transaction `json:"transactions"`
	Count           int                  `json:"count"`
	Categorized     int                  `json:"categorized"`
	TotalDebit      string               `json:"totalDebit,omitempty"`
	TotalCredit     string               `json:"totalCredit,omitempty"`
	Net             string               `json:"net,omitempty"`
	CSV             string               `json:"csv,omitempty"`
	Cached          bool                 `json:"cached"`
	Version         string               `json:"version,omitempty"`
}

// PDFText recovers page text from an uploaded PDF.
type PDFText interface {
	ExtractPDF(data []byte) ([]string, error)
}

// Options configures a Handler.
type Options struct {
	Registry    *parser.Registry
	Categorizer *categorizer.Categorizer
	// AI routes institutions through AI extractors, as for the batch run.
	AI          []pipeline.DispatcherOption
	Text        PDFText
	CacheTTL    time.Duration
	MaxUploadMB int
	Version     string
}

// Handler serves the extraction API. It stores uploads for the AI path and
// caches successful responses by upload digest.
type Handler struct {
	categorizer *categorizer.Categorizer
	dispatcher  *pipeline.Dispatcher
	text        PDFText
	uploads     *cache.Cache
	outcomes    *cache.Cache
	nextID      atomic.Int64
	maxUpload   int
	version     string
	log         zerolog.Logger
}

// New returns a Handler.
func New(opts Options, log zerolog.Logger) *Handler {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	maxMB := opts.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 20
	}

	h := &Handler{
		categorizer: opts.Categorizer,
		text:        opts.Text,
		uploads:     cache.New(uploadTTL, 2*uploadTTL),
		outcomes:    cache.New(ttl, 2*ttl),
		maxUpload:   maxMB,
		version:     opts.Version,
		log:         log.With().Str("component", "api").Logger(),
	}
	if h.text == nil {
		h.text = extractor.New(log)
	}
	h.dispatcher = pipeline.NewDispatcher(opts.Registry, h, log, opts.AI...)
	return h
}

// App returns a fiber app with the API routes registered.
func (h *Handler) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "statement-processor",
		BodyLimit:             h.maxUpload << 20,
		DisableStartupMessage: true,
		ErrorHandler:          h.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	h.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/api/health", h.handleHealth)
	app.Post("/api/extract", h.handleExtract)
}

// FetchOriginal returns a stored upload. Uploads are keyed by the document id
// assigned when the request arrived.
func (h *Handler) FetchOriginal(ctx context.Context, id int) ([]byte, error) {
	v, ok := h.uploads.Get(strconv.Itoa(id))
	if !ok {
		return nil, fmt.Errorf("upload %d expired or unknown", id)
	}
	return v.([]byte), nil
}

func (h *Handler) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": h.version,
		"engine":  "fiber",
	})
}

func (h *Handler) handleExtract(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "No file uploaded. Use form field 'file'.")
	}
	data, err := readUpload(fh)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("Failed to read upload: %v", err))
	}
	if len(data) == 0 {
		return writeError(c, fiber.StatusBadRequest, "Uploaded file is empty.")
	}

	institution := strings.TrimSpace(c.FormValue("institution"))
	includeHeader := c.FormValue("header") != "false"

	key := cacheKey(data, institution, includeHeader)
	if v, ok := h.outcomes.Get(key); ok {
		resp := v.(ExtractResponse)
		resp.Cached = true
		return c.JSON(resp)
	}

	requestID := uuid.NewString()
	log := h.log.With().Str("request_id", requestID).Str("file", fh.Filename).Logger()

	pages := h.pages(data, log)
	correspondent := institution
	if correspondent == "" {
		if pages == nil {
			return writeError(c, fiber.StatusUnprocessableEntity, "No readable text in upload; specify the institution.")
		}
		detected, err := parser.AutoDetect(pages)
		if err != nil {
			return writeError(c, fiber.StatusUnprocessableEntity, err.Error())
		}
		correspondent = string(detected)
	}

	id := int(h.nextID.Add(1))
	h.uploads.Set(strconv.Itoa(id), data, cache.DefaultExpiration)
	defer h.uploads.Delete(strconv.Itoa(id))

	ctx := logger.WithContext(c.UserContext(), log)
	out, err := h.dispatcher.Extract(ctx, models.Document{ID: id, Correspondent: correspondent, Pages: pages})
	switch {
	case errors.Is(err, pipeline.ErrNoParser):
		return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("Unsupported institution %q.", correspondent))
	case err != nil:
		return writeError(c, fiber.StatusUnprocessableEntity, fmt.Sprintf("Extraction failed: %v", err))
	case len(out.Transactions) == 0:
		return writeError(c, fiber.StatusUnprocessableEntity, "No transactions found. The statement layout may not match the institution's parser.")
	}

	h.categorizer.CategorizeAll(out.Transactions)
	records := make([]models.Record, 0, len(out.Transactions))
	for _, txn := range out.Transactions {
		records = append(records, models.Record{
			Transaction:   txn,
			Institution:   out.Institution,
			AccountNumber: out.AccountNumber,
		})
	}
	summary := pipeline.Summarize(records, h.categorizer.IsCategorized)

	var csvBuf bytes.Buffer
	w := &writer.CSVWriter{IncludeHeader: includeHeader, Meta: writer.Metadata{RunID: requestID, Source: fh.Filename}}
	if err := w.Write(&csvBuf, records); err != nil {
		return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("CSV generation failed: %v", err))
	}

	resp := ExtractResponse{
		Success:         true,
		RequestID:       requestID,
		Institution:     string(out.Institution),
		Bank:            out.Institution.DisplayName(),
		Method:          out.Method,
		AccountNumber:   out.AccountNumber,
		StatementPeriod: out.StatementPeriod,
		Transactions:    out.Transactions,
		Count:           summary.Transactions,
		Categorized:     summary.Categorized,
		TotalDebit:      summary.TotalDebits.StringFixed(2),
		TotalCredit:     summary.TotalCredits.StringFixed(2),
		Net:             summary.Net.StringFixed(2),
		CSV:             csvBuf.String(),
		Version:         h.version,
	}
	h.outcomes.Set(key, resp, cache.DefaultExpiration)

	log.Info().
		Str("institution", resp.Institution).
		Str("method", resp.Method).
		Int("transactions", resp.Count).
		Msg("upload processed")
	return c.JSON(resp)
}

// pages extracts upload text. PDFs go through the text extractor; anything
// else is taken as plain text. Nil means no usable text.
func (h *Handler) pages(data []byte, log zerolog.Logger) []string {
	if !extractor.IsPDF(data) {
		if pages := extractor.SplitPages(string(data)); len(pages) > 0 {
			return pages
		}
		return nil
	}
	pages, err := h.text.ExtractPDF(data)
	if err != nil {
		log.Warn().Err(err).Msg("PDF text extraction failed")
		return nil
	}
	return pages
}

func (h *Handler) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return writeError(c, code, err.Error())
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func cacheKey(data []byte, institution string, header bool) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s|%s|%t", hex.EncodeToString(sum[:]), strings.ToLower(institution), header)
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ExtractResponse{
		Success:      false,
		Error:        msg,
		Transactions: []models.Transaction{},
	})
}
