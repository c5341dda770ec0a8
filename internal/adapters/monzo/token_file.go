package monzo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/SscSPs/bank_importers/internal/core/ports"
)

// TokenFile stores the access and refresh tokens as two lines of a plain text file.
type TokenFile struct {
	path string
}

// Ensure TokenFile implements ports.TokenStore
var _ ports.TokenStore = (*TokenFile)(nil)

// NewTokenFile creates a token store backed by the file at path.
func NewTokenFile(path string) *TokenFile {
	return &TokenFile{path: path}
}

// Load returns the stored tokens. A missing file yields empty tokens.
func (f *TokenFile) Load() (string, string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read token file %s: %w", f.path, err)
	}

	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	access := strings.TrimSpace(lines[0])
	refresh := ""
	if len(lines) > 1 {
		refresh = strings.TrimSpace(lines[1])
	}
	return access, refresh, nil
}

// Save overwrites the file with both tokens.
func (f *TokenFile) Save(access, refresh string) error {
	if err := os.WriteFile(f.path, []byte(access+"\n"+refresh), 0o600); err != nil {
		return fmt.Errorf("failed to write token file %s: %w", f.path, err)
	}
	return nil
}
