package document

import (
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Validator checks that a path points to an ingestible PDF document.
type Validator struct {
	maxFileSize int64
	conf        *model.Configuration
}

// NewValidator creates a validator with the specified size limit.
// Validation runs in relaxed mode so that the slightly malformed PDFs
// produced by common form editors still pass.
func NewValidator(maxFileSize int64) *Validator {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Validator{
		maxFileSize: maxFileSize,
		conf:        conf,
	}
}

// ValidateFile performs full validation, including opening the
// document.
func (v *Validator) ValidateFile(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}

	if err := v.ValidateFileInfo(path, fileInfo); err != nil {
		return err
	}

	if err := api.ValidateFile(path, v.conf); err != nil {
		return fmt.Errorf("invalid PDF file: %w", err)
	}
	return nil
}

// ValidateFileInfo performs basic validation without opening the PDF.
func (v *Validator) ValidateFileInfo(path string, fileInfo os.FileInfo) error {
	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}

	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return fmt.Errorf("file is not a PDF: %s", path)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("file is empty: %s", path)
	}

	if fileInfo.Size() > v.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), v.maxFileSize)
	}

	return nil
}

// IsValidPDF performs a quick check to see if a file is a valid PDF.
func (v *Validator) IsValidPDF(path string) bool {
	return v.ValidateFile(path) == nil
}

// PageCount returns the number of pages without a full parse.
func (v *Validator) PageCount(path string) (int, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return count, nil
}
