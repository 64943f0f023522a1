package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"etlfactures/internal/extraction/domain"
	"etlfactures/internal/extraction/infrastructure"
	"etlfactures/internal/extraction/parsers"
	"etlfactures/internal/ports"
	shareddomain "etlfactures/internal/shared/domain"
	sharedinfra "etlfactures/internal/shared/infrastructure"
	stagingdomain "etlfactures/internal/staging/domain"
)

// FileResult est le résultat de l'extraction d'un fichier
type FileResult struct {
	SourceFile string
	Supplier   string
	Invoices   []*domain.ParsedInvoice
	Lines      int
	Unparsed   int
	// Unreadable: document inexploitable (illisible, mise en page inconnue ou
	// aucune ligne reconnue). Non bloquant.
	Unreadable bool
	Warning    string
	// Err est une erreur technique propre au fichier; le répertoire continue
	Err error
}

// Stats agrège les compteurs d'une extraction
type Stats struct {
	Files       int
	FilesFailed int
	Unreadable  int
	Invoices    int
	Lines       int
	Unparsed    int
}

// Result est le résultat de l'extraction d'un répertoire
type Result struct {
	Files  []FileResult
	Stats  Stats
	Errors []error
}

// Invoices retourne toutes les factures parsées, dans l'ordre des fichiers
func (r *Result) Invoices() []*domain.ParsedInvoice {
	var out []*domain.ParsedInvoice
	for _, f := range r.Files {
		out = append(out, f.Invoices...)
	}
	return out
}

// Extractor lit les documents d'un répertoire et les confie au parseur détecté
type Extractor struct {
	source   ports.DocumentSource
	registry *parsers.Registry
	workers  int
	logger   *zap.Logger
}

// NewExtractor crée un extracteur; workers borne le parallélisme par fichier
func NewExtractor(source ports.DocumentSource, registry *parsers.Registry, workers int, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Extractor{source: source, registry: registry, workers: workers, logger: logger}
}

// ExtractFile n'échoue jamais: les erreurs sont portées par FileResult
func (e *Extractor) ExtractFile(ctx context.Context, path string) FileResult {
	fr := FileResult{SourceFile: filepath.Base(path)}
	log := e.logger.With(zap.String("file", fr.SourceFile))

	pages, err := e.source.Pages(ctx, path)
	if err != nil {
		if errors.Is(err, infrastructure.ErrUnreadableDocument) {
			fr.Unreadable = true
			fr.Warning = err.Error()
			log.Warn("document illisible", zap.Error(err))
			return fr
		}
		fr.Err = err
		log.Error("lecture du document impossible", zap.Error(err))
		return fr
	}

	doc := domain.Document{SourceFile: fr.SourceFile, Pages: pages}
	parser, err := e.registry.Detect(doc)
	if err != nil {
		fr.Unreadable = true
		fr.Warning = err.Error()
		log.Warn("mise en page non reconnue", zap.Error(err))
		return fr
	}

	res := parser.Parse(doc)
	fr.Supplier = res.Supplier
	fr.Invoices = res.Invoices
	fr.Lines = res.LineCount()
	fr.Unparsed = res.Unparsed
	if fr.Lines == 0 {
		fr.Unreadable = true
		fr.Warning = "no invoice line recognized"
		log.Warn("aucune ligne extraite", zap.String("supplier", fr.Supplier), zap.Int("unparsed", fr.Unparsed))
		return fr
	}
	log.Info("fichier extrait",
		zap.String("supplier", fr.Supplier),
		zap.Int("invoices", len(fr.Invoices)),
		zap.Int("lines", fr.Lines),
		zap.Int("unparsed", fr.Unparsed))
	return fr
}

// ExtractDirectory extrait tous les fichiers pris en charge du répertoire en
// parallèle. Seule l'impossibilité de lister le répertoire est une erreur.
func (e *Extractor) ExtractDirectory(ctx context.Context, dir string) (*Result, error) {
	files, err := e.listFiles(dir)
	if err != nil {
		return nil, err
	}

	results := make([]FileResult, len(files))
	var mu sync.Mutex
	pool := sharedinfra.NewWorkerPool(ctx, e.workers)
	pool.Start()
	for i, path := range files {
		i, path := i, path
		submitErr := pool.Submit(func(ctx context.Context) error {
			fr := e.ExtractFile(ctx, path)
			mu.Lock()
			results[i] = fr
			mu.Unlock()
			return fr.Err
		})
		if submitErr != nil {
			results[i] = FileResult{SourceFile: filepath.Base(path), Err: submitErr}
		}
	}
	poolErrors := pool.Wait()

	out := &Result{Files: results, Errors: poolErrors}
	for i := range out.Files {
		fr := &out.Files[i]
		if fr.SourceFile == "" {
			// tâche interrompue par une panique
			fr.SourceFile = filepath.Base(files[i])
			fr.Err = errors.New("extraction aborted")
		}
		out.Stats.Files++
		switch {
		case fr.Err != nil:
			out.Stats.FilesFailed++
		case fr.Unreadable:
			out.Stats.Unreadable++
		}
		out.Stats.Invoices += len(fr.Invoices)
		out.Stats.Lines += fr.Lines
		out.Stats.Unparsed += fr.Unparsed
	}
	return out, nil
}

func (e *Extractor) listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory %s: %w", dir, err)
	}
	supports := func(path string) bool {
		return strings.EqualFold(filepath.Ext(path), ".pdf")
	}
	if s, ok := e.source.(interface{ Supports(string) bool }); ok {
		supports = s.Supports
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if supports(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ToStagingLines convertit les factures d'un fichier en lignes RAW; l'en-tête
// de la facture est recopié sur chacune de ses lignes
func ToStagingLines(tenant shareddomain.TenantID, batch shareddomain.BatchID, fr FileResult) ([]*stagingdomain.StagingLine, error) {
	var out []*stagingdomain.StagingLine
	for _, inv := range fr.Invoices {
		for _, pl := range inv.Lines {
			line, err := stagingdomain.NewStagingLine(tenant, batch, fr.SourceFile, pl.LineNumber)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", fr.SourceFile, pl.LineNumber, err)
			}
			line.Supplier = inv.Supplier
			line.Grammar = pl.Grammar
			line.RawLine = pl.RawLine
			line.Raw = pl.Fields
			line.Raw.NumeroFacture = inv.Header.NumeroFacture
			line.Raw.DateFacture = inv.Header.DateFacture
			line.Raw.Fournisseur = inv.Header.Fournisseur
			line.Raw.FournisseurTVA = inv.Header.FournisseurTVA
			line.Raw.Client = inv.Header.Client
			line.Raw.MontantHTDocument = inv.Header.MontantHTDocument
			out = append(out, line)
		}
	}
	return out, nil
}
