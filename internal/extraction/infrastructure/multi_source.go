package infrastructure

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"etlfactures/internal/ports"
)

// MultiSource choisit la source selon l'extension du fichier
type MultiSource struct {
	byExt map[string]ports.DocumentSource
}

// NewMultiSource associe .pdf à PDFSource et .txt à TextSource
func NewMultiSource() *MultiSource {
	return &MultiSource{byExt: map[string]ports.DocumentSource{
		".pdf": NewPDFSource(),
		".txt": NewTextSource(),
	}}
}

// Register associe une extension (avec le point) à une source
func (m *MultiSource) Register(ext string, source ports.DocumentSource) {
	m.byExt[strings.ToLower(ext)] = source
}

// Supports indique si l'extension du fichier est prise en charge
func (m *MultiSource) Supports(path string) bool {
	_, ok := m.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions retourne les extensions prises en charge, triées
func (m *MultiSource) Extensions() []string {
	out := make([]string, 0, len(m.byExt))
	for ext := range m.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Pages délègue à la source de l'extension
func (m *MultiSource) Pages(ctx context.Context, path string) ([]string, error) {
	source, ok := m.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%s: unsupported extension: %w", path, ErrUnreadableDocument)
	}
	return source.Pages(ctx, path)
}
