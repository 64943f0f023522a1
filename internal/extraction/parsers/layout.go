// Package parsers reconnaît les lignes des factures fournisseurs. Chaque
// fournisseur est décrit par un Layout: marqueurs de facture, motifs d'en-tête
// et liste ordonnée de grammaires de ligne, de la plus spécifique à la plus
// générique. La première grammaire qui correspond l'emporte.
package parsers

import (
	"path/filepath"
	"regexp"
	"strings"

	"etlfactures/internal/extraction/domain"
)

// HeaderField désigne le champ d'en-tête alimenté par un motif
type HeaderField int

const (
	HeaderDate HeaderField = iota
	HeaderTaxID
	HeaderClient
	HeaderTotalHT
)

// HeaderRule capture un champ d'en-tête dans son premier groupe
type HeaderRule struct {
	Field   HeaderField
	Pattern *regexp.Regexp
}

// Layout décrit la mise en page d'un fournisseur
type Layout struct {
	Supplier     string
	Markers      []string
	FilePrefixes []string
	// InvoiceNumber capture le numéro de facture dans son premier groupe
	InvoiceNumber *regexp.Regexp
	// PageMarker capture (page, total); "Page 1/N" ouvre une nouvelle facture
	PageMarker *regexp.Regexp
	Headers    []HeaderRule
	// Section capture une catégorie qui s'applique aux lignes suivantes
	Section *regexp.Regexp
	Ignore  []*regexp.Regexp
	Rules   []domain.Rule
}

// reCandidate repère une ligne qui ressemble à un article (montant décimal)
var reCandidate = regexp.MustCompile(`\d+[.,]\d{2}`)

// DegradedGrammar est le nom attribué aux lignes conservées sans grammaire
const DegradedGrammar = "unparsed"

// Parser convertit le texte d'un document en factures structurées
type Parser interface {
	Supplier() string
	Detect(doc domain.Document) bool
	MatchFilename(sourceFile string) bool
	Parse(doc domain.Document) *domain.ParseResult
}

// LayoutParser est le moteur commun aux trois fournisseurs
type LayoutParser struct {
	layout       Layout
	keepUnparsed bool
}

// NewLayoutParser crée un parseur. keepUnparsed conserve les candidats non
// reconnus comme lignes dégradées (champs à nil) au lieu de les compter seulement.
func NewLayoutParser(layout Layout, keepUnparsed bool) *LayoutParser {
	return &LayoutParser{layout: layout, keepUnparsed: keepUnparsed}
}

// Supplier retourne le code du fournisseur
func (p *LayoutParser) Supplier() string {
	return p.layout.Supplier
}

// Rules retourne les grammaires dans leur ordre de priorité
func (p *LayoutParser) Rules() []domain.Rule {
	return append([]domain.Rule(nil), p.layout.Rules...)
}

// Detect cherche un marqueur du fournisseur sur la première page
func (p *LayoutParser) Detect(doc domain.Document) bool {
	if len(doc.Pages) == 0 {
		return false
	}
	first := strings.ToUpper(doc.Pages[0])
	for _, marker := range p.layout.Markers {
		if strings.Contains(first, strings.ToUpper(marker)) {
			return true
		}
	}
	return false
}

// MatchFilename reconnaît le fournisseur au nom de fichier
func (p *LayoutParser) MatchFilename(sourceFile string) bool {
	base := strings.ToLower(filepath.Base(sourceFile))
	for _, prefix := range p.layout.FilePrefixes {
		if strings.HasPrefix(base, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// Parse ne retourne jamais d'erreur: les lignes non reconnues sont comptées
func (p *LayoutParser) Parse(doc domain.Document) *domain.ParseResult {
	st := &parseState{
		parser: p,
		result: &domain.ParseResult{Supplier: p.layout.Supplier, SourceFile: doc.SourceFile},
	}
	lineNumber := 0
	for _, page := range doc.Pages {
		for _, raw := range strings.Split(page, "\n") {
			lineNumber++
			line := strings.TrimSpace(strings.TrimRight(raw, "\r"))
			if line == "" {
				continue
			}
			st.consume(lineNumber, line)
		}
	}
	st.result.Invoices = withLines(st.result.Invoices)
	return st.result
}

type parseState struct {
	parser  *LayoutParser
	result  *domain.ParseResult
	current *domain.ParsedInvoice
	section *string
}

func (s *parseState) open() *domain.ParsedInvoice {
	supplier := s.parser.layout.Supplier
	inv := &domain.ParsedInvoice{
		Supplier:   supplier,
		SourceFile: s.result.SourceFile,
		Header:     domain.Header{Fournisseur: &supplier},
	}
	s.result.Invoices = append(s.result.Invoices, inv)
	s.current = inv
	s.section = nil
	return inv
}

func (s *parseState) invoice() *domain.ParsedInvoice {
	if s.current == nil {
		return s.open()
	}
	return s.current
}

func (s *parseState) consume(lineNumber int, line string) {
	l := s.parser.layout

	if l.PageMarker != nil {
		if m := l.PageMarker.FindStringSubmatch(line); m != nil {
			if m[1] == "1" && s.current != nil && len(s.current.Lines) > 0 {
				s.current = nil
			}
			return
		}
	}

	if m := l.InvoiceNumber.FindStringSubmatch(line); m != nil {
		number := strings.TrimSpace(m[1])
		inv := s.invoice()
		if inv.Header.NumeroFacture != nil && *inv.Header.NumeroFacture != number {
			inv = s.open()
		}
		inv.Header.NumeroFacture = &number
		return
	}

	for _, h := range l.Headers {
		if m := h.Pattern.FindStringSubmatch(line); m != nil {
			setHeader(&s.invoice().Header, h.Field, strings.TrimSpace(m[1]))
			return
		}
	}

	if l.Section != nil {
		if m := l.Section.FindStringSubmatch(line); m != nil {
			section := strings.TrimSpace(m[1])
			s.invoice()
			s.section = &section
			return
		}
	}

	for _, re := range l.Ignore {
		if re.MatchString(line) {
			return
		}
	}

	if !reCandidate.MatchString(line) {
		return
	}
	s.result.Candidates++
	inv := s.invoice()

	fields, grammar, ok := domain.Apply(l.Rules, line)
	if !ok {
		s.result.Unparsed++
		if s.parser.keepUnparsed {
			inv.Lines = append(inv.Lines, domain.ParsedLine{
				LineNumber: lineNumber,
				Grammar:    DegradedGrammar,
				RawLine:    line,
				Degraded:   true,
			})
		}
		return
	}
	if fields.Categorie == nil && s.section != nil {
		section := *s.section
		fields.Categorie = &section
	}
	inv.Lines = append(inv.Lines, domain.ParsedLine{
		LineNumber: lineNumber,
		Grammar:    grammar,
		Fields:     fields,
		RawLine:    line,
	})
}

// le premier en-tête trouvé dans une facture l'emporte
func setHeader(h *domain.Header, field HeaderField, value string) {
	var target **string
	switch field {
	case HeaderDate:
		target = &h.DateFacture
	case HeaderTaxID:
		target = &h.FournisseurTVA
	case HeaderClient:
		target = &h.Client
	case HeaderTotalHT:
		target = &h.MontantHTDocument
	default:
		return
	}
	if *target == nil {
		*target = &value
	}
}

func withLines(invoices []*domain.ParsedInvoice) []*domain.ParsedInvoice {
	out := invoices[:0]
	for _, inv := range invoices {
		if len(inv.Lines) > 0 {
			out = append(out, inv)
		}
	}
	return out
}
