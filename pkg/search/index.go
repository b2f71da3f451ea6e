// Package search keeps a full-text index of documents, fed by the workflow
// events.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/models"
)

// Document is the indexed representation of a document.
type Document struct {
	ObjectID     string    `json:"objectID"`
	DocumentKey  string    `json:"documentKey"`
	Title        string    `json:"title"`
	DocumentType string    `json:"documentType"`
	CategoryID   string    `json:"categoryID"`
	Revision     int       `json:"revision"`
	Status       string    `json:"status"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

// Config configures an Index.
type Config struct {
	// IndexPath is the directory of the on-disk index. An empty path keeps
	// the index in memory.
	IndexPath string `hcl:"index_path,optional"`
	Logger    hclog.Logger
}

// Index is a bleve document index.
type Index struct {
	index  bleve.Index
	logger hclog.Logger
}

// Open opens or creates the index.
func Open(cfg Config) (*Index, error) {
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	var (
		idx bleve.Index
		err error
	)
	if cfg.IndexPath == "" {
		idx, err = bleve.NewMemOnly(documentMapping())
	} else {
		if err := os.MkdirAll(cfg.IndexPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		idx, err = openOrCreate(filepath.Join(cfg.IndexPath, "documents.bleve"), documentMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open documents index: %w", err)
	}

	return &Index{index: idx, logger: cfg.Logger.Named("search")}, nil
}

func openOrCreate(path string, m mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return bleve.New(path, m)
	}
	return idx, err
}

func documentMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = "en"
	keyword := bleve.NewKeywordFieldMapping()
	number := bleve.NewNumericFieldMapping()
	date := bleve.NewDateTimeFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("documentKey", keyword)
	doc.AddFieldMappingsAt("documentType", keyword)
	doc.AddFieldMappingsAt("categoryID", keyword)
	doc.AddFieldMappingsAt("status", keyword)
	doc.AddFieldMappingsAt("revision", number)
	doc.AddFieldMappingsAt("modifiedTime", date)

	indexMapping.AddDocumentMapping("_default", doc)
	return indexMapping
}

// Register subscribes the index to the document events.
func (i *Index) Register(bus *events.Bus) {
	for _, name := range []string{events.DocumentCreated, events.DocumentRevised, events.RevisionEdited} {
		bus.Subscribe(name, "search-index", i.HandleEvent)
	}
}

// HandleEvent indexes the document carried by a document event.
func (i *Index) HandleEvent(ctx context.Context, evt events.Event) error {
	if evt.Document == nil {
		return nil
	}
	return i.IndexDocument(ctx, evt.Document, evt.Metadata, evt.Revision)
}

// IndexDocument adds or refreshes a document. Documents that are not
// indexable are removed instead.
func (i *Index) IndexDocument(ctx context.Context, doc *models.Document, meta *models.Metadata, rev *models.Revision) error {
	id := objectID(doc.ID)
	if !doc.IsIndexable {
		return i.index.Delete(id)
	}
	if err := i.index.Index(id, toDocument(doc, meta, rev)); err != nil {
		return fmt.Errorf("failed to index %s: %w", doc.DocumentKey, err)
	}
	i.logger.Debug("document indexed", "document_key", doc.DocumentKey)
	return nil
}

func toDocument(doc *models.Document, meta *models.Metadata, rev *models.Revision) *Document {
	d := &Document{
		ObjectID:     objectID(doc.ID),
		DocumentKey:  doc.DocumentKey,
		Title:        doc.Title,
		DocumentType: doc.DocumentType,
		CategoryID:   strconv.FormatUint(uint64(doc.CategoryID), 10),
		Revision:     doc.CurrentRevision,
		ModifiedTime: doc.UpdatedAt,
	}
	if meta != nil && meta.Title != "" {
		d.Title = meta.Title
	}
	if rev != nil && rev.Revision == doc.CurrentRevision {
		d.Status = rev.Status
	}
	return d
}

func objectID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// Delete removes a document from the index.
func (i *Index) Delete(ctx context.Context, documentID uint) error {
	return i.index.Delete(objectID(documentID))
}

// Reindex rebuilds the entries of every indexable document of db and
// returns how many were indexed.
func (i *Index) Reindex(ctx context.Context, db *gorm.DB) (int, error) {
	var docs []models.Document
	n := 0
	err := db.WithContext(ctx).
		Where("is_indexable = ?", true).
		Order("id ASC").
		FindInBatches(&docs, 100, func(tx *gorm.DB, batch int) error {
			b := i.index.NewBatch()
			for k := range docs {
				if err := b.Index(objectID(docs[k].ID), toDocument(&docs[k], nil, nil)); err != nil {
					return err
				}
			}
			n += len(docs)
			return i.index.Batch(b)
		}).Error
	if err != nil {
		return n, fmt.Errorf("failed to reindex documents: %w", err)
	}
	i.logger.Info("documents reindexed", "count", n)
	return n, nil
}

// Search returns the keys of the documents matching text, best match first.
// Text is matched against titles, and against document keys exactly or by
// prefix.
func (i *Index) Search(ctx context.Context, text string, limit int) ([]string, error) {
	res, err := i.Query(ctx, Query{Text: text, PerPage: limit})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		keys = append(keys, h.DocumentKey)
	}
	return keys, nil
}

// Query is a search request.
type Query struct {
	Text string
	// Filters restricts hits to the given keyword values per field, for
	// example {"documentType": {"contractor_deliverable"}}.
	Filters map[string][]string
	Page    int
	PerPage int
}

// Result is a page of hits.
type Result struct {
	Hits      []*Document
	TotalHits int
	Page      int
	PerPage   int
	// DocumentTypes counts hits per document type.
	DocumentTypes map[string]int
	QueryTime     time.Duration
}

// Query runs a search request.
func (i *Index) Query(ctx context.Context, sq Query) (*Result, error) {
	start := time.Now()

	var q query.Query = bleve.NewMatchAllQuery()
	if text := strings.TrimSpace(sq.Text); text != "" {
		title := bleve.NewMatchQuery(text)
		title.SetField("title")
		key := bleve.NewTermQuery(strings.ToUpper(text))
		key.SetField("documentKey")
		prefix := bleve.NewPrefixQuery(strings.ToUpper(text))
		prefix.SetField("documentKey")
		q = bleve.NewDisjunctionQuery(title, key, prefix)
	}

	var filters []query.Query
	for field, values := range sq.Filters {
		if len(values) == 0 {
			continue
		}
		or := bleve.NewDisjunctionQuery()
		for _, v := range values {
			term := bleve.NewTermQuery(v)
			term.SetField(field)
			or.AddQuery(term)
		}
		filters = append(filters, or)
	}
	if len(filters) > 0 {
		q = bleve.NewConjunctionQuery(append([]query.Query{q}, filters...)...)
	}

	perPage := sq.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := max(sq.Page, 0)

	req := bleve.NewSearchRequestOptions(q, perPage, page*perPage, false)
	req.Fields = []string{"*"}
	req.SortBy([]string{"-_score", "documentKey"})
	req.AddFacet("documentType", bleve.NewFacetRequest("documentType", 100))

	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := &Result{
		Hits:          make([]*Document, 0, len(res.Hits)),
		TotalHits:     int(res.Total),
		Page:          page,
		PerPage:       perPage,
		DocumentTypes: make(map[string]int),
	}
	for _, hit := range res.Hits {
		d := &Document{ObjectID: hit.ID}
		d.DocumentKey, _ = hit.Fields["documentKey"].(string)
		d.Title, _ = hit.Fields["title"].(string)
		d.DocumentType, _ = hit.Fields["documentType"].(string)
		d.CategoryID, _ = hit.Fields["categoryID"].(string)
		d.Status, _ = hit.Fields["status"].(string)
		if rev, ok := hit.Fields["revision"].(float64); ok {
			d.Revision = int(rev)
		}
		if ts, ok := hit.Fields["modifiedTime"].(string); ok {
			d.ModifiedTime, _ = time.Parse(time.RFC3339, ts)
		}
		out.Hits = append(out.Hits, d)
	}
	if f := res.Facets["documentType"]; f != nil && f.Terms != nil {
		for _, term := range f.Terms.Terms() {
			out.DocumentTypes[term.Term] = term.Count
		}
	}
	out.QueryTime = time.Since(start)
	return out, nil
}

// Count returns the number of indexed documents.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// Close closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}
