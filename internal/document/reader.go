package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/seqbench/lab-intake/internal/domain"
	"github.com/seqbench/lab-intake/internal/extract"
)

// Extraction is the full text-layer content of one submission PDF:
// the document identity, the text lines in reading order and every
// detected table.
type Extraction struct {
	Source domain.PDFSource
	Lines  []string
	Tables []extract.RawTable
}

// Reader turns a submission PDF into lines and tables for downstream
// field and sample extraction.
type Reader struct {
	maxFileSize int64
	validator   *Validator
}

// NewReader creates a reader with the specified size limit.
func NewReader(maxFileSize int64) *Reader {
	return &Reader{
		maxFileSize: maxFileSize,
		validator:   NewValidator(maxFileSize),
	}
}

// Extract validates, fingerprints and fully reads the document at
// path. Unreadable documents fail with ExtractionError; pages whose
// text layer cannot be decoded are skipped, not fatal.
func (r *Reader) Extract(path string) (*Extraction, error) {
	if err := r.validator.ValidateFile(path); err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}

	hash, err := hashFile(path)
	if err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}

	pageCount, err := r.validator.PageCount(path)
	if err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}
	if pageCount == 0 {
		return nil, &domain.ExtractionError{Path: path, Err: fmt.Errorf("document has no pages")}
	}

	f, pdfReader, err := pdf.Open(path)
	if err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: fmt.Errorf("failed to open PDF: %w", err)}
	}
	defer f.Close()

	extraction := &Extraction{
		Source: domain.PDFSource{
			FilePath:    path,
			ContentHash: hash,
			FileSize:    fileInfo.Size(),
			ModifiedAt:  fileInfo.ModTime().UTC(),
			PageCount:   pageCount,
		},
	}
	r.extractMetadata(pdfReader, &extraction.Source)

	for pageNum := 1; pageNum <= pdfReader.NumPage(); pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		cellRows, err := readPageRows(page)
		if err != nil {
			// Continue with other pages even if one fails.
			continue
		}

		for _, cells := range cellRows {
			extraction.Lines = append(extraction.Lines, strings.Join(cells, " "))
		}
		extraction.Tables = append(extraction.Tables,
			detectTables(cellRows, pageNum, len(extraction.Tables))...)
	}

	if len(extraction.Lines) == 0 {
		return nil, &domain.ExtractionError{
			Path: path,
			Err:  fmt.Errorf("no text content could be extracted from PDF"),
		}
	}

	return extraction, nil
}

// extractMetadata safely pulls the document info dictionary. The
// ledongthuc/pdf Value API panics on some malformed trailers, so the
// whole lookup runs behind a recover guard.
func (r *Reader) extractMetadata(pdfReader *pdf.Reader, source *domain.PDFSource) {
	defer func() {
		// Metadata is optional; extraction continues without it.
		_ = recover()
	}()

	trailer := pdfReader.Trailer()
	if trailer.IsNull() {
		return
	}

	info := trailer.Key("Info")
	if info.IsNull() {
		return
	}

	read := func(key string, dst *string) {
		if value := info.Key(key); !value.IsNull() {
			if s := strings.TrimSpace(value.String()); s != "" {
				*dst = s
			}
		}
	}
	read("Title", &source.Title)
	read("Author", &source.Author)
	read("Subject", &source.Subject)
	read("Creator", &source.Creator)
	read("Producer", &source.Producer)
	read("CreationDate", &source.CreationDate)
}

// hashFile computes the SHA-256 content hash used as the submission
// idempotency key.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("cannot hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
