package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"baria-go/internal/model"
	"baria-go/internal/pipeline"
)

var (
	indexDocumentID   int64
	indexSource       string
	indexChunkSize    int
	indexChunkOverlap int
)

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Split a plain-text leaflet and index its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a leaflet (PDF, DOCX, text) through the admin API",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

func init() {
	for _, c := range []*cobra.Command{indexCmd, uploadCmd} {
		c.Flags().Int64Var(&indexDocumentID, "document-id", 1, "document the chunks belong to")
		c.Flags().StringVar(&indexSource, "source", "", "source label (default: file name)")
	}
	indexCmd.Flags().IntVar(&indexChunkSize, "chunk-size", 1000, "chunk size in characters")
	indexCmd.Flags().IntVar(&indexChunkOverlap, "chunk-overlap", 100, "overlap between chunks in characters")
	rootCmd.AddCommand(indexCmd, uploadCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !pipeline.IsPlainText(path) {
		return fmt.Errorf("%s is not a .txt or .md file, use upload instead", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !utf8.Valid(data) {
		return errors.New("file is not valid UTF-8")
	}
	parts := pipeline.SplitText(string(data), indexChunkSize, indexChunkOverlap)
	if len(parts) == 0 {
		return errors.New("file has no text")
	}

	source := indexSource
	if source == "" {
		source = filepath.Base(path)
	}
	chunks := make([]model.IndexChunk, 0, len(parts))
	for _, p := range parts {
		id := indexDocumentID
		chunks = append(chunks, model.IndexChunk{DocumentID: &id, Source: source, Content: p})
	}

	var resp struct {
		Inserted int `json:"inserted"`
	}
	if err := newAPIClient().postJSON(context.Background(), "/index", chunks, &resp); err != nil {
		return err
	}
	cmd.Println(fmt.Sprintf("Indexed %d of %d chunks from %s", resp.Inserted, len(chunks), source))
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("document_id", strconv.FormatInt(indexDocumentID, 10))
	if indexSource != "" {
		_ = mw.WriteField("source", indexSource)
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(args[0]))
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	c := newAPIClient()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, c.base+"/api/v1/documents/upload", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var resp struct {
		Data struct {
			Queued   bool `json:"queued"`
			Inserted int  `json:"inserted"`
		} `json:"data"`
	}
	if err := c.do(req, &resp); err != nil {
		return err
	}
	if resp.Data.Queued {
		cmd.Println("Upload accepted, processing in background.")
		return nil
	}
	cmd.Println(fmt.Sprintf("Uploaded, %d chunks indexed.", resp.Data.Inserted))
	return nil
}
