package parsers

import (
	"errors"
	"fmt"

	"etlfactures/internal/extraction/domain"
)

// ErrUnknownLayout est retournée quand aucun parseur ne reconnaît le document
var ErrUnknownLayout = errors.New("unknown invoice layout")

// Registry conserve les parseurs dans leur ordre de détection
type Registry struct {
	parsers    []Parser
	bySupplier map[string]Parser
}

// NewRegistry crée un registre vide
func NewRegistry() *Registry {
	return &Registry{bySupplier: map[string]Parser{}}
}

// DefaultRegistry enregistre METRO, TAIYAT puis EUROCIEL
func DefaultRegistry(keepUnparsed bool) *Registry {
	r := NewRegistry()
	r.Register(NewLayoutParser(MetroLayout(), keepUnparsed))
	r.Register(NewLayoutParser(TaiyatLayout(), keepUnparsed))
	r.Register(NewLayoutParser(EurocielLayout(), keepUnparsed))
	return r
}

// Register ajoute ou remplace un parseur
func (r *Registry) Register(p Parser) {
	if r.bySupplier == nil {
		r.bySupplier = map[string]Parser{}
	}
	if _, exists := r.bySupplier[p.Supplier()]; exists {
		for i, existing := range r.parsers {
			if existing.Supplier() == p.Supplier() {
				r.parsers[i] = p
			}
		}
	} else {
		r.parsers = append(r.parsers, p)
	}
	r.bySupplier[p.Supplier()] = p
}

// Resolve retourne le parseur d'un fournisseur
func (r *Registry) Resolve(supplier string) (Parser, error) {
	if p, ok := r.bySupplier[supplier]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("parser %s is not registered", supplier)
}

// Detect choisit le parseur par marqueur en première page, puis par nom de fichier
func (r *Registry) Detect(doc domain.Document) (Parser, error) {
	for _, p := range r.parsers {
		if p.Detect(doc) {
			return p, nil
		}
	}
	for _, p := range r.parsers {
		if p.MatchFilename(doc.SourceFile) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", doc.SourceFile, ErrUnknownLayout)
}

// Suppliers retourne les fournisseurs dans l'ordre de détection
func (r *Registry) Suppliers() []string {
	out := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		out[i] = p.Supplier()
	}
	return out
}
