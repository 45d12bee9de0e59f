package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"baria-go/internal/pipeline"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/hash"
	"baria-go/pkg/log"
	"baria-go/pkg/tasks"
)

// ObjectStore keeps uploaded files; *storage.ObjectStore satisfies it.
type ObjectStore interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	RemovePrefix(ctx context.Context, prefix string) (int, error)
}

// UploadRequest is one leaflet to ingest.
type UploadRequest struct {
	DocumentID  int64
	Source      string
	FileName    string
	Body        io.Reader
	Size        int64
	ContentType string
}

// UploadResult tells whether the document went to the queue or was indexed inline.
type UploadResult struct {
	Task     tasks.DocumentProcessingTask `json:"task"`
	Queued   bool                         `json:"queued"`
	Inserted int                          `json:"inserted,omitempty"`
}

// IngestService accepts leaflet files and gets them indexed.
type IngestService interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
	// Seed ingests every regular file of dir and returns how many were accepted.
	Seed(ctx context.Context, dir string) (int, error)
	// DeleteDocument removes the document, its chunks and its stored files.
	DeleteDocument(ctx context.Context, documentID int64) (int64, error)
}

type ingestService struct {
	objects   ObjectStore
	tasks     Publisher
	processor *pipeline.Processor
	retrieval RetrievalService
}

// NewIngestService wires ingestion. Without objects, files are indexed
// straight from the request; without a task publisher, stored files are
// processed inline.
func NewIngestService(objects ObjectStore, taskPublisher Publisher, processor *pipeline.Processor, retrieval RetrievalService) IngestService {
	return &ingestService{objects: objects, tasks: taskPublisher, processor: processor, retrieval: retrieval}
}

func objectPrefix(documentID int64) string {
	return fmt.Sprintf("documents/%d/", documentID)
}

func (s *ingestService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	name := filepath.Base(strings.TrimSpace(req.FileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, apperrors.Invalidf("file name is required")
	}
	if req.DocumentID < 0 {
		return nil, apperrors.Invalidf("document_id must not be negative, got %d", req.DocumentID)
	}
	if req.Body == nil {
		return nil, apperrors.Invalidf("file is empty")
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = name
	}
	task := tasks.DocumentProcessingTask{
		TaskID:     uuid.NewString(),
		DocumentID: req.DocumentID,
		Source:     source,
		ObjectName: objectPrefix(req.DocumentID) + name,
		FileName:   name,
	}

	if s.objects == nil {
		n, err := s.processor.ProcessReader(ctx, task.DocumentID, task.Source, task.FileName, req.Body)
		if err != nil {
			return nil, err
		}
		return &UploadResult{Task: task, Inserted: n}, nil
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := req.Size
	if size <= 0 {
		size = -1
	}
	if err := s.objects.Put(ctx, task.ObjectName, req.Body, size, contentType); err != nil {
		return nil, apperrors.New(apperrors.ErrDependencyUnavailable, http.StatusServiceUnavailable, err.Error())
	}
	log.Infof("[IngestService] stored %s for document %d", task.ObjectName, task.DocumentID)

	if s.tasks == nil {
		if err := s.processor.Process(ctx, task); err != nil {
			return nil, err
		}
		return &UploadResult{Task: task}, nil
	}
	if err := s.tasks.Publish(ctx, task.TaskID, task); err != nil {
		return nil, apperrors.New(apperrors.ErrDependencyUnavailable, http.StatusServiceUnavailable, err.Error())
	}
	log.Infof("[IngestService] queued task %s for document %d", task.TaskID, task.DocumentID)
	return &UploadResult{Task: task, Queued: true}, nil
}

// Seed derives each document id from the file name, so re-seeding the same
// directory lands on the same documents and inserts nothing new.
func (s *ingestService) Seed(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read seed dir %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	accepted := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := s.seedFile(ctx, filepath.Join(dir, e.Name())); err != nil {
			log.Errorf("[IngestService] seeding %s failed: %v", e.Name(), err)
			continue
		}
		accepted++
	}
	log.Infof("[IngestService] seeded %d files from %s", accepted, dir)
	return accepted, nil
}

func (s *ingestService) seedFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	_, err = s.Upload(ctx, UploadRequest{
		DocumentID: SeedDocumentID(name),
		Source:     strings.TrimSuffix(name, filepath.Ext(name)),
		FileName:   name,
		Body:       f,
		Size:       info.Size(),
	})
	return err
}

// SeedDocumentID is the document id a seeded file is stored under.
func SeedDocumentID(fileName string) int64 {
	return hash.ID("seed:" + fileName)
}

func (s *ingestService) DeleteDocument(ctx context.Context, documentID int64) (int64, error) {
	removed, err := s.retrieval.DeleteDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if s.objects != nil {
		n, err := s.objects.RemovePrefix(ctx, objectPrefix(documentID))
		if err != nil {
			log.Errorf("[IngestService] failed to remove files of document %d: %v", documentID, err)
		} else if n > 0 {
			log.Infof("[IngestService] removed %d files of document %d", n, documentID)
		}
	}
	return removed, nil
}
