package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/phase-edms/phase/pkg/clock"
	"github.com/phase-edms/phase/pkg/models"
	"github.com/phase-edms/phase/pkg/storage"
)

// File formats of an export.
const (
	FileFormatZip = "zip"
	FileFormatCSV = "csv"
)

// ErrNotNew is returned when starting an export that already started.
var ErrNotNew = errors.New("export is not new")

// CreateRequest describes an export job.
type CreateRequest struct {
	Owner        string
	CategoryID   uint
	Format       Format
	Revisions    Revisions
	FileFormat   string
	DocumentKeys []string
}

// Validate applies defaults and checks the request.
func (r *CreateRequest) Validate() error {
	if r.Format == "" {
		r.Format = FormatBoth
	}
	if r.Revisions == "" {
		r.Revisions = RevisionsLatest
	}
	if r.FileFormat == "" {
		r.FileFormat = FileFormatZip
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.Owner, validation.Required),
		validation.Field(&r.CategoryID, validation.Required),
		validation.Field(&r.Format, validation.In(FormatNative, FormatPDF, FormatBoth)),
		validation.Field(&r.Revisions, validation.In(RevisionsLatest, RevisionsAll)),
		validation.Field(&r.FileFormat, validation.In(FileFormatZip, FileFormatCSV)),
	)
}

// ServiceConfig holds the dependencies of a Service.
type ServiceConfig struct {
	DB      *gorm.DB
	Storage storage.Storage
	Clock   clock.Clock
	Logger  hclog.Logger

	// Dir is the storage directory export files are written to.
	Dir string
	// TempFs holds archives while they are built. Defaults to the OS
	// filesystem.
	TempFs afero.Fs
}

// Service creates export jobs and produces their files.
type Service struct {
	db         *gorm.DB
	store      storage.Storage
	compressor *Compressor
	clock      clock.Clock
	logger     hclog.Logger
	dir        string
	tempFs     afero.Fs
}

// NewService returns an export service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Dir == "" {
		cfg.Dir = "exports"
	}
	if cfg.TempFs == nil {
		cfg.TempFs = afero.NewOsFs()
	}
	logger := cfg.Logger.Named("exports")
	return &Service{
		db:         cfg.DB,
		store:      cfg.Storage,
		compressor: NewCompressor(cfg.DB, cfg.Storage, logger),
		clock:      clock.Or(cfg.Clock),
		logger:     logger,
		dir:        storage.Clean(cfg.Dir),
		tempFs:     cfg.TempFs,
	}, nil
}

// Compressor returns the compressor used for zip exports.
func (s *Service) Compressor() *Compressor {
	return s.compressor
}

// Create records a new export job.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Export, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	e := &models.Export{
		Owner:        req.Owner,
		CategoryID:   req.CategoryID,
		Format:       string(req.Format),
		Revisions:    string(req.Revisions),
		FileFormat:   req.FileFormat,
		DocumentKeys: req.DocumentKeys,
		Status:       models.ExportStatusNew,
		CreatedOn:    s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, fmt.Errorf("error creating export: %w", err)
	}
	return e, nil
}

// Start hands a new export to the worker.
func (s *Service) Start(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, models.ExportStatusNew, models.ExportStatusProcessing, "")
}

// Path returns the storage name of the export's file.
func (s *Service) Path(e *models.Export) string {
	return storage.Join(s.dir, e.Filename())
}

// Process writes the file of a processing export and marks it done. A
// failure marks the export failed and is returned.
func (s *Service) Process(ctx context.Context, e *models.Export) error {
	err := s.write(ctx, e)
	if err != nil {
		s.logger.Error("export failed", "export_id", e.ID, "error", err)
		if terr := s.transition(ctx, e.ID, models.ExportStatusProcessing, models.ExportStatusFailed, err.Error()); terr != nil {
			s.logger.Error("error marking export failed", "export_id", e.ID, "error", terr)
		}
		e.Status = models.ExportStatusFailed
		e.Error = err.Error()
		return err
	}

	if err := s.transition(ctx, e.ID, models.ExportStatusProcessing, models.ExportStatusDone, ""); err != nil {
		return err
	}
	e.Status = models.ExportStatusDone
	s.logger.Info("export done", "export_id", e.ID, "path", s.Path(e))
	return nil
}

func (s *Service) write(ctx context.Context, e *models.Export) error {
	docs, err := s.documents(ctx, e)
	if err != nil {
		return err
	}
	opts := Options{Format: Format(e.Format), Revisions: Revisions(e.Revisions)}

	switch e.FileFormat {
	case FileFormatZip:
		archive, err := s.compressor.CompressToTemp(ctx, s.tempFs, docs, opts)
		if err != nil {
			return err
		}
		defer archive.Close()
		return s.store.Put(ctx, s.Path(e), archive)
	case FileFormatCSV:
		var buf bytes.Buffer
		if err := s.WriteCSV(ctx, &buf, docs, opts.Revisions); err != nil {
			return err
		}
		return s.store.Put(ctx, s.Path(e), &buf)
	default:
		return fmt.Errorf("unsupported file format %q", e.FileFormat)
	}
}

func (s *Service) documents(ctx context.Context, e *models.Export) ([]models.Document, error) {
	docs, err := models.GetDocumentsByCategory(s.db.WithContext(ctx), e.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("error listing documents: %w", err)
	}
	if len(e.DocumentKeys) == 0 {
		return docs, nil
	}
	return slices.DeleteFunc(docs, func(d models.Document) bool {
		return !slices.Contains(e.DocumentKeys, d.DocumentKey)
	}), nil
}

// CSVHeader lists the columns of a CSV export.
var CSVHeader = []string{
	"Document Number", "Title", "Revision", "Revision Date", "Status",
	"Final Revision", "Under Review", "Review Due Date", "Native File", "PDF File",
}

// WriteCSV writes one row per selected revision of docs.
func (s *Service) WriteCSV(ctx context.Context, w io.Writer, docs []models.Document, sel Revisions) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for i := range docs {
		doc := &docs[i]
		revs, err := s.compressor.revisions(ctx, doc, sel)
		if err != nil {
			return err
		}
		for _, rev := range revs {
			if err := cw.Write(csvRow(doc, rev)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(doc *models.Document, rev *models.Revision) []string {
	var status any
	if rev.Status != "" {
		status = rev.Status
	}
	var native, pdf any
	if rev.NativeFile != "" {
		native = storage.Base(rev.NativeFile)
	}
	if rev.PDFFile != "" {
		pdf = storage.Base(rev.PDFFile)
	}
	return []string{
		doc.DocumentKey,
		doc.Title,
		Stringify(rev.Revision),
		Stringify(rev.RevisionDate),
		Stringify(status),
		Stringify(rev.FinalRevision),
		Stringify(rev.IsUnderReview()),
		Stringify(rev.ReviewDueDate),
		Stringify(native),
		Stringify(pdf),
	}
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, from, to models.ExportStatus, msg string) error {
	res := s.db.WithContext(ctx).Model(&models.Export{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "error": msg})
	if res.Error != nil {
		return fmt.Errorf("error updating export %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if from == models.ExportStatusNew {
			return fmt.Errorf("%w: %s", ErrNotNew, id)
		}
		return fmt.Errorf("export %s is no longer %s", id, from)
	}
	return nil
}
