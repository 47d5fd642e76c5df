package document

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqbench/lab-intake/internal/domain"
)

func TestValidator_ValidateFile(t *testing.T) {
	tempDir := t.TempDir()

	txtPath := filepath.Join(tempDir, "notes.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("plain text"), 0o644))

	emptyPath := filepath.Join(tempDir, "empty.pdf")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0o644))

	largePath := filepath.Join(tempDir, "large.pdf")
	require.NoError(t, os.WriteFile(largePath, make([]byte, 2048), 0o644))

	bogusPath := filepath.Join(tempDir, "bogus.pdf")
	require.NoError(t, os.WriteFile(bogusPath, []byte("not really a pdf"), 0o644))

	validator := NewValidator(1024)

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{
			name:    "empty_path",
			path:    "",
			wantErr: "path cannot be empty",
		},
		{
			name:    "missing_file",
			path:    filepath.Join(tempDir, "missing.pdf"),
			wantErr: "file does not exist",
		},
		{
			name:    "directory",
			path:    tempDir + string(os.PathSeparator) + ".",
			wantErr: "",
		},
		{
			name:    "wrong_extension",
			path:    txtPath,
			wantErr: "file is not a PDF",
		},
		{
			name:    "empty_file",
			path:    emptyPath,
			wantErr: "file is empty",
		},
		{
			name:    "too_large",
			path:    largePath,
			wantErr: "file too large",
		},
		{
			name:    "invalid_content",
			path:    bogusPath,
			wantErr: "invalid PDF file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateFile(tt.path)
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidator_IsValidPDF(t *testing.T) {
	validator := NewValidator(1024)
	assert.False(t, validator.IsValidPDF("does-not-exist.pdf"))
}

func TestValidator_PageCountInvalidFile(t *testing.T) {
	bogusPath := filepath.Join(t.TempDir(), "bogus.pdf")
	require.NoError(t, os.WriteFile(bogusPath, []byte("not really a pdf"), 0o644))

	validator := NewValidator(1024)
	_, err := validator.PageCount(bogusPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count pages")
}

func TestReader_ExtractWrapsExtractionError(t *testing.T) {
	tempDir := t.TempDir()
	bogusPath := filepath.Join(tempDir, "bogus.pdf")
	require.NoError(t, os.WriteFile(bogusPath, []byte("not really a pdf"), 0o644))

	reader := NewReader(10 * 1024 * 1024)
	_, err := reader.Extract(bogusPath)

	var extractionErr *domain.ExtractionError
	require.True(t, errors.As(err, &extractionErr))
	assert.Equal(t, bogusPath, extractionErr.Path)
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.pdf")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	hash, err := hashFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", hash)

	// Same bytes, same fingerprint.
	again, err := hashFile(path)
	require.NoError(t, err)
	assert.Equal(t, hash, again)
}
