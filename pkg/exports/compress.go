// Package exports packages document files and listings for download.
package exports

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/phase-edms/phase/pkg/ledger"
	"github.com/phase-edms/phase/pkg/models"
	"github.com/phase-edms/phase/pkg/storage"
)

// Format selects the files of a revision.
type Format string

const (
	FormatNative Format = "native"
	FormatPDF    Format = "pdf"
	FormatBoth   Format = "both"
)

// Revisions selects the revisions of a document.
type Revisions string

const (
	RevisionsLatest Revisions = "latest"
	RevisionsAll    Revisions = "all"
)

var (
	ErrInvalidFormat    = errors.New("invalid export format")
	ErrInvalidRevisions = errors.New("invalid revision selector")
)

// Options selects what CompressDocuments includes.
type Options struct {
	Format    Format
	Revisions Revisions
}

// Validate checks the selectors. Empty selectors mean both formats of the
// latest revision.
func (o *Options) Validate() error {
	if o.Format == "" {
		o.Format = FormatBoth
	}
	if o.Revisions == "" {
		o.Revisions = RevisionsLatest
	}
	switch o.Format {
	case FormatNative, FormatPDF, FormatBoth:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, o.Format)
	}
	switch o.Revisions {
	case RevisionsLatest, RevisionsAll:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRevisions, o.Revisions)
	}
	return nil
}

func (o Options) native() bool { return o.Format == FormatNative || o.Format == FormatBoth }
func (o Options) pdf() bool    { return o.Format == FormatPDF || o.Format == FormatBoth }

// Compressor writes zip archives of document files.
type Compressor struct {
	ledger *ledger.Ledger
	store  storage.Storage
	logger hclog.Logger
}

// NewCompressor returns a compressor reading revisions from db and files
// from store.
func NewCompressor(db *gorm.DB, store storage.Storage, logger hclog.Logger) *Compressor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Compressor{
		ledger: ledger.New(db),
		store:  store,
		logger: logger.Named("compress"),
	}
}

// CompressDocuments writes a deflate zip of the selected files of docs to w
// and returns the number of files written. Entries follow the order of docs
// and then revision order, native before pdf. Revisions without a file of
// the requested kind, and documents without revisions, are skipped.
func (c *Compressor) CompressDocuments(ctx context.Context, w io.Writer, docs []models.Document, opts Options) (int, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	written := 0
	seen := make(map[string]bool)

	for i := range docs {
		revs, err := c.revisions(ctx, &docs[i], opts.Revisions)
		if err != nil {
			zw.Close()
			return written, err
		}
		for _, rev := range revs {
			for _, name := range rev.Files(opts.native(), opts.pdf()) {
				if seen[name] {
					continue
				}
				seen[name] = true
				if err := c.add(ctx, zw, name); err != nil {
					zw.Close()
					return written, err
				}
				written++
			}
		}
	}

	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("error finishing archive: %w", err)
	}
	return written, nil
}

func (c *Compressor) revisions(ctx context.Context, doc *models.Document, sel Revisions) ([]*models.Revision, error) {
	if sel == RevisionsLatest {
		rev, err := c.ledger.Latest(ctx, doc.ID)
		if errors.Is(err, ledger.ErrNoRevisions) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []*models.Revision{rev}, nil
	}

	var revs []*models.Revision
	for rev, err := range c.ledger.All(ctx, doc.ID) {
		if err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, nil
}

func (c *Compressor) add(ctx context.Context, zw *zip.Writer, name string) error {
	r, err := c.store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer r.Close()

	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:   storage.Clean(name),
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("error adding %s to archive: %w", name, err)
	}
	if _, err := io.Copy(entry, r); err != nil {
		return fmt.Errorf("error compressing %s: %w", name, err)
	}
	return nil
}

// Archive is a compressed export held in a temporary file. Close removes
// the file.
type Archive struct {
	afero.File
	fs    afero.Fs
	Files int
}

// Close closes and removes the temporary file.
func (a *Archive) Close() error {
	name := a.File.Name()
	err := a.File.Close()
	if rmErr := a.fs.Remove(name); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

// Size returns the archive size in bytes.
func (a *Archive) Size() (int64, error) {
	info, err := a.File.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// CompressToTemp compresses docs into a temporary file of fs, rewound for
// reading. The caller closes the archive; on error no file is left behind.
func (c *Compressor) CompressToTemp(ctx context.Context, fs afero.Fs, docs []models.Document, opts Options) (*Archive, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f, err := afero.TempFile(fs, "", "phase-export-*.zip")
	if err != nil {
		return nil, fmt.Errorf("error creating temporary archive: %w", err)
	}
	archive := &Archive{File: f, fs: fs}

	n, err := c.CompressDocuments(ctx, f, docs, opts)
	if err != nil {
		archive.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		archive.Close()
		return nil, fmt.Errorf("error rewinding archive: %w", err)
	}
	archive.Files = n

	c.logger.Debug("archive written", "path", f.Name(), "files", n)
	return archive, nil
}
