package infrastructure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// TextSource lit les exports texte (.txt) des factures; les pages sont
// séparées par un saut de page. Un fichier qui n'est pas en UTF-8 est décodé
// en Windows-1252.
type TextSource struct{}

// NewTextSource crée une source texte
func NewTextSource() *TextSource {
	return &TextSource{}
}

// Pages retourne le texte de chaque page
func (s *TextSource) Pages(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder()))
		if err != nil {
			return nil, fmt.Errorf("%s: decode windows-1252: %v: %w", path, err, ErrUnreadableDocument)
		}
		data = decoded
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.Split(text, "\f"), nil
}
