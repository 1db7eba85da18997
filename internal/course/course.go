// Package course manages course documents and runs the extraction and
// generation pipeline over them.
package course

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/qcm/internal/chapter"
	"github.com/pavelanni/qcm/internal/extract"
	"github.com/pavelanni/qcm/internal/generate"
	"github.com/pavelanni/qcm/internal/model"
	"github.com/pavelanni/qcm/internal/store"
)

// Extractor reads text from an uploaded file.
type Extractor interface {
	Extract(ctx context.Context, path string) (extract.Result, error)
}

// Generator produces items and titles from course text.
type Generator interface {
	Generate(ctx context.Context, text string, count int) (generate.Batch, error)
	InferTitle(ctx context.Context, text string) string
}

// Service manages course documents.
type Service struct {
	store     *store.Store
	ext       Extractor
	gen       Generator
	uploadDir string
	maxSize   int64
}

// New creates a course service. Uploaded files are kept in uploadDir and
// refused above maxSize bytes.
func New(st *store.Store, ext Extractor, gen Generator, uploadDir string, maxSize int64) *Service {
	if maxSize <= 0 {
		maxSize = extract.DefaultMaxFileSize
	}
	return &Service{store: st, ext: ext, gen: gen, uploadDir: uploadDir, maxSize: maxSize}
}

// NewDocument describes a document to create.
type NewDocument struct {
	Title    string              `json:"title"`
	Subject  string              `json:"subject"`
	Program  chapter.ProgramType `json:"program"`
	Grade    chapter.Grade       `json:"grade,omitempty"`
	Chapter  string              `json:"chapter"`
	FilePath string              `json:"-"`
	Text     string              `json:"text,omitempty"`
}

// View is a document with its human-readable chapter label.
type View struct {
	model.Document
	ChapterLabel string `json:"chapter_label"`
}

func viewOf(d model.Document) View {
	v := View{Document: d, ChapterLabel: d.ChapterTag}
	if t, err := chapter.Decode(d.ChapterTag); err == nil {
		v.ChapterLabel = t.Display()
	}
	return v
}

// Create stores a new document for ownerID.
func (s *Service) Create(ctx context.Context, ownerID int64, nd NewDocument) (View, error) {
	if nd.Program == "" {
		nd.Program = chapter.Normal
	}
	tag, err := chapter.Encode(nd.Program, nd.Grade, nd.Chapter)
	if err != nil {
		return View{}, fmt.Errorf("%v: %w", err, model.ErrValidation)
	}
	text := extract.Normalize(nd.Text)
	if nd.FilePath == "" && text == "" {
		return View{}, fmt.Errorf("document needs a file or text: %w", model.ErrValidation)
	}
	if nd.FilePath != "" && !extract.Supported(nd.FilePath) {
		return View{}, fmt.Errorf("unsupported file type %q: %w", filepath.Ext(nd.FilePath), model.ErrValidation)
	}
	d := model.Document{
		OwnerID:       ownerID,
		Title:         strings.TrimSpace(nd.Title),
		Subject:       strings.TrimSpace(nd.Subject),
		ChapterTag:    tag,
		FilePath:      nd.FilePath,
		ExtractedText: text,
	}
	id, err := s.store.CreateDocument(ctx, d)
	if err != nil {
		return View{}, fmt.Errorf("create document: %w", err)
	}
	d, err = s.store.GetDocument(ctx, ownerID, id)
	if err != nil {
		return View{}, err
	}
	slog.Info("created document", "id", id, "owner", ownerID, "chapter", tag)
	return viewOf(d), nil
}

// SaveUpload copies an uploaded file into the upload directory under a fresh
// name and returns its path.
func (s *Service) SaveUpload(name string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !extract.Supported(name) {
		return "", fmt.Errorf("unsupported file type %q: %w", ext, model.ErrValidation)
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.uploadDir, uuid.NewString()+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxSize {
		err = fmt.Errorf("upload exceeds %d bytes: %w", s.maxSize, model.ErrValidation)
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// Get returns one document of ownerID.
func (s *Service) Get(ctx context.Context, ownerID, id int64) (View, error) {
	d, err := s.store.GetDocument(ctx, ownerID, id)
	if err != nil {
		return View{}, err
	}
	return viewOf(d), nil
}

// List returns the documents of ownerID, newest first.
func (s *Service) List(ctx context.Context, ownerID int64) ([]View, error) {
	return s.ListByProgram(ctx, ownerID, "", chapter.NoGrade)
}

// ListByProgram returns the documents of ownerID whose chapter belongs to
// program, and for supplementary programs to grade when set. An empty program
// lists everything.
func (s *Service) ListByProgram(ctx context.Context, ownerID int64, program chapter.ProgramType, grade chapter.Grade) ([]View, error) {
	docs, err := s.store.ListDocuments(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := []View{}
	for _, d := range docs {
		if program == "" || chapter.Matches(d.ChapterTag, program, grade) {
			out = append(out, viewOf(d))
		}
	}
	return out, nil
}

// Process extracts the text of a document when it is not cached yet, infers a
// title when none was given, generates count items and stores them pending.
func (s *Service) Process(ctx context.Context, ownerID, docID int64, count int) (model.ProcessResult, error) {
	if count < 1 || count > generate.MaxCount {
		return model.ProcessResult{}, fmt.Errorf("count %d outside [1, %d]: %w", count, generate.MaxCount, model.ErrValidation)
	}
	d, err := s.store.GetDocument(ctx, ownerID, docID)
	if err != nil {
		return model.ProcessResult{}, err
	}
	res := model.ProcessResult{DocumentID: d.ID, Title: d.Title, FromCachedText: d.HasText()}

	text := d.ExtractedText
	if text == "" {
		if text, err = s.extractAndCache(ctx, &d, &res); err != nil {
			return res, err
		}
	}
	res.TextLength = len([]rune(text))
	if err := generate.ValidateRequest(text, count); err != nil {
		return res, err
	}

	if d.Title == "" || d.Title == model.DefaultTitle {
		res.Title = s.gen.InferTitle(ctx, text)
		if err := s.store.SetDocumentTitle(ctx, d.ID, res.Title); err != nil {
			return res, fmt.Errorf("set title: %w", err)
		}
	}

	batch, err := s.gen.Generate(ctx, text, count)
	if err != nil {
		return res, err
	}
	for i := range batch.Items {
		batch.Items[i].DocumentID = &d.ID
		batch.Items[i].OwnerID = ownerID
		batch.Items[i].ChapterTag = d.ChapterTag
		batch.Items[i].Status = model.ItemPending
	}
	items, err := s.store.InsertItems(ctx, batch.Items)
	if err != nil {
		return res, fmt.Errorf("store items: %w", err)
	}
	res.Generated = len(items)
	res.FallbackUsed = batch.FallbackUsed

	slog.Info("processed document",
		"id", d.ID,
		"chapter", d.ChapterTag,
		"generated", res.Generated,
		"fallback", res.FallbackUsed,
		"cached_text", res.FromCachedText,
	)
	return res, nil
}

// extractAndCache runs extraction and stores the text unless another run
// cached it first, in which case the cached text wins.
func (s *Service) extractAndCache(ctx context.Context, d *model.Document, res *model.ProcessResult) (string, error) {
	if d.FilePath == "" {
		return "", fmt.Errorf("document %d has no file and no text: %w", d.ID, model.ErrValidation)
	}
	out, err := s.ext.Extract(ctx, d.FilePath)
	if err != nil {
		return "", err
	}
	res.LowConfidence = out.LowConfidence
	wrote, err := s.store.SetExtractedTextIfEmpty(ctx, d.ID, out.Text)
	if err != nil {
		return "", fmt.Errorf("cache text: %w", err)
	}
	if wrote {
		return out.Text, nil
	}
	cached, err := s.store.GetDocument(ctx, d.OwnerID, d.ID)
	if err != nil {
		return "", err
	}
	if cached.ExtractedText == "" {
		return "", fmt.Errorf("document %d: extraction produced no text: %w", d.ID, model.ErrExtraction)
	}
	res.FromCachedText = true
	return cached.ExtractedText, nil
}
