// Package pipeline turns an uploaded leaflet into indexed chunks.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"baria-go/internal/model"
	"baria-go/pkg/log"
	"baria-go/pkg/tasks"
)

// ObjectReader fetches stored uploads; *storage.ObjectStore satisfies it.
type ObjectReader interface {
	Get(ctx context.Context, name string) (io.ReadCloser, error)
}

// TextExtractor turns a binary document into plain text; *tika.Client satisfies it.
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// Indexer stores chunks; service.RetrievalService satisfies it.
type Indexer interface {
	Index(ctx context.Context, chunks []model.IndexChunk) (int, error)
}

var (
	ErrEmptyDocument = errors.New("document is empty")
	ErrNoExtractor   = errors.New("no text extractor configured")
)

// Processor downloads, extracts, splits and indexes one document.
type Processor struct {
	objects      ObjectReader
	extractor    TextExtractor
	indexer      Indexer
	chunkSize    int
	chunkOverlap int
}

// NewProcessor wires the pipeline. objects and extractor may be nil: without
// objects only ProcessReader works, without extractor only plain text files.
func NewProcessor(objects ObjectReader, extractor TextExtractor, indexer Indexer, chunkSize, chunkOverlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &Processor{
		objects:      objects,
		extractor:    extractor,
		indexer:      indexer,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Process handles one Kafka task.
func (p *Processor) Process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	log.Infof("[Processor] processing task %s: document=%d object=%s", task.TaskID, task.DocumentID, task.ObjectName)
	if p.objects == nil {
		return errors.New("no object store configured")
	}
	obj, err := p.objects.Get(ctx, task.ObjectName)
	if err != nil {
		return fmt.Errorf("download %s: %w", task.ObjectName, err)
	}
	defer obj.Close()

	n, err := p.ProcessReader(ctx, task.DocumentID, task.Source, task.FileName, obj)
	if err != nil {
		return err
	}
	log.Infof("[Processor] task %s done, %d new chunks", task.TaskID, n)
	return nil
}

// ProcessReader indexes the document read from r and returns the number of
// newly inserted chunks.
func (p *Processor) ProcessReader(ctx context.Context, documentID int64, source, fileName string, r io.Reader) (int, error) {
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r); err != nil {
		return 0, fmt.Errorf("read %s: %w", fileName, err)
	}
	if buf.Len() == 0 {
		return 0, fmt.Errorf("%s: %w", fileName, ErrEmptyDocument)
	}

	text, err := p.extract(ctx, fileName, buf.Bytes())
	if err != nil {
		return 0, err
	}
	log.Infof("[Processor] extracted %d characters from %s", utf8.RuneCountInString(text), fileName)

	pieces := SplitText(text, p.chunkSize, p.chunkOverlap)
	if len(pieces) == 0 {
		return 0, fmt.Errorf("%s: %w", fileName, ErrEmptyDocument)
	}
	if source == "" {
		source = fileName
	}
	chunks := make([]model.IndexChunk, len(pieces))
	for i, piece := range pieces {
		id := documentID
		chunks[i] = model.IndexChunk{DocumentID: &id, Source: source, Content: piece}
	}
	n, err := p.indexer.Index(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("index %s: %w", fileName, err)
	}
	log.Infof("[Processor] %s: %d chunks, %d new", fileName, len(chunks), n)
	return n, nil
}

func (p *Processor) extract(ctx context.Context, fileName string, data []byte) (string, error) {
	if IsPlainText(fileName) {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%s is not valid UTF-8", fileName)
		}
		return string(data), nil
	}
	if p.extractor == nil {
		return "", fmt.Errorf("%s: %w", fileName, ErrNoExtractor)
	}
	text, err := p.extractor.ExtractText(ctx, bytes.NewReader(data), fileName)
	if err != nil {
		return "", fmt.Errorf("extract text from %s: %w", fileName, err)
	}
	return text, nil
}

// IsPlainText reports whether fileName is read as-is instead of through Tika.
func IsPlainText(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// SplitText cuts text into windows of chunkSize runes, each starting
// chunkSize-chunkOverlap runes after the previous one. Windows are trimmed and
// blank ones dropped.
func SplitText(text string, chunkSize, chunkOverlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 || chunkSize <= 0 {
		return nil
	}
	step := chunkSize - chunkOverlap
	if chunkOverlap < 0 || step <= 0 {
		step = chunkSize
	}
	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[i:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
