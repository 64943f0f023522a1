package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnreadableDocument signale un document dont on ne peut extraire le texte.
	// L'extraction le traite comme un document inexploitable, pas comme une panne.
	ErrUnreadableDocument = errors.New("unreadable document")
	// ErrNotPDF est retournée quand le fichier ne commence pas par l'en-tête PDF
	ErrNotPDF = fmt.Errorf("not a pdf file: %w", ErrUnreadableDocument)
)

var pdfMagic = []byte("%PDF-")

// PDFSource extrait le texte des PDF ligne par ligne (ordre vertical de la page)
type PDFSource struct{}

// NewPDFSource crée une source PDF
func NewPDFSource() *PDFSource {
	return &PDFSource{}
}

// Pages retourne le texte de chaque page. Les paniques de la bibliothèque PDF
// sur des fichiers corrompus sont converties en ErrUnreadableDocument.
func (s *PDFSource) Pages(ctx context.Context, path string) (pages []string, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotPDF)
	}

	defer func() {
		if p := recover(); p != nil {
			pages = nil
			err = fmt.Errorf("%s: pdf reader panicked: %v: %w", path, p, ErrUnreadableDocument)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, ErrUnreadableDocument)
	}

	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("%s page %d: %v: %w", path, i, err, ErrUnreadableDocument)
		}
		var b strings.Builder
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			b.WriteString(strings.Join(words, " "))
			b.WriteByte('\n')
		}
		pages = append(pages, b.String())
	}
	return pages, nil
}
