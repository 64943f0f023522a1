// Package application rapproche les ingrédients internes des produits DWH
package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	catalogdomain "etlfactures/internal/catalog/domain"
	"etlfactures/internal/ports"
	"etlfactures/internal/reconciliation/domain"
	shareddomain "etlfactures/internal/shared/domain"
	sharedinfra "etlfactures/internal/shared/infrastructure"
)

// Options règle les seuils du rapprochement
type Options struct {
	StrictThreshold float64
	LooseThreshold  float64
	MaxLinks        int
	// SearchLimit borne le nombre de produits remontés par terme et fournisseur
	SearchLimit int
	CacheTTL    time.Duration
}

// DefaultOptions retourne les seuils 0.60 / 0.45 et 3 liens par ingrédient
func DefaultOptions() Options {
	return Options{
		StrictThreshold: 0.60,
		LooseThreshold:  0.45,
		MaxLinks:        3,
		SearchLimit:     50,
		CacheTTL:        10 * time.Minute,
	}
}

// Stats résume un rapprochement
type Stats struct {
	Ingredients  int
	Matched      int
	LinksCreated int
	LinksSkipped int
}

// Candidate est un produit candidat pour un ingrédient
type Candidate struct {
	Product  *catalogdomain.ProductAggregate
	Supplier string
	Score    float64
}

// Engine crée les liens ingrédient/produit. Il n'écrit que des liens
// nouveaux et ne modifie jamais un lien existant.
type Engine struct {
	products  ports.ProductRepository
	links     ports.ReconciliationRepository
	cache     sharedinfra.Cache
	ownsCache bool
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

// NewEngine crée le moteur. Sans cache fourni, un cache shardé est créé et
// libéré par Close.
func NewEngine(products ports.ProductRepository, links ports.ReconciliationRepository, cache sharedinfra.Cache, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.StrictThreshold <= 0 {
		opts.StrictThreshold = def.StrictThreshold
	}
	if opts.LooseThreshold <= 0 || opts.LooseThreshold > opts.StrictThreshold {
		opts.LooseThreshold = def.LooseThreshold
	}
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = def.MaxLinks
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = def.SearchLimit
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = def.CacheTTL
	}
	e := &Engine{products: products, links: links, cache: cache, logger: logger, opts: opts, now: time.Now}
	if e.cache == nil {
		e.cache = sharedinfra.NewShardedCache(16)
		e.ownsCache = true
	}
	return e
}

// Close libère le cache interne
func (e *Engine) Close() {
	if e.ownsCache {
		e.cache.Close()
	}
}

// Reconcile traite les ingrédients du tenant qui ont moins de MaxLinks liens
func (e *Engine) Reconcile(ctx context.Context, tenant shareddomain.TenantID) (Stats, error) {
	var stats Stats

	ingredients, err := e.links.ListIngredients(ctx, tenant)
	if err != nil {
		return stats, fmt.Errorf("failed to list ingredients: %w", err)
	}
	suppliers, err := e.products.ListSuppliers(ctx, tenant)
	if err != nil {
		return stats, fmt.Errorf("failed to list suppliers: %w", err)
	}
	if len(ingredients) == 0 || len(suppliers) == 0 {
		return stats, nil
	}

	for _, ing := range ingredients {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		existing, err := e.links.ListLinks(ctx, tenant, ing.ID)
		if err != nil {
			return stats, fmt.Errorf("failed to list links of %q: %w", ing.Nom, err)
		}
		if len(existing) >= e.opts.MaxLinks {
			continue
		}
		stats.Ingredients++

		candidates, err := e.Candidates(ctx, tenant, ing, suppliers)
		if err != nil {
			return stats, err
		}
		created, skipped, err := e.link(ctx, tenant, ing, existing, candidates)
		if err != nil {
			return stats, err
		}
		stats.LinksCreated += created
		stats.LinksSkipped += skipped
		if created > 0 {
			stats.Matched++
		}
	}

	e.logger.Info("rapprochement terminé",
		zap.Int("ingredients", stats.Ingredients),
		zap.Int("rapproches", stats.Matched),
		zap.Int("liens_crees", stats.LinksCreated),
		zap.Float64("cache_hit_ratio", e.cache.Stats().HitRatio()),
	)
	return stats, nil
}

// Candidates retourne les produits candidats classés par score décroissant.
// Passe stricte d'abord; la passe large n'a lieu que si la première ne trouve rien.
func (e *Engine) Candidates(ctx context.Context, tenant shareddomain.TenantID, ing *catalogdomain.Ingredient, suppliers []string) ([]Candidate, error) {
	strict, err := e.pass(ctx, tenant, ing, suppliers, domain.SearchTerms(ing.Nom, ing.Aliases, false), e.opts.StrictThreshold)
	if err != nil || len(strict) > 0 {
		return strict, err
	}
	return e.pass(ctx, tenant, ing, suppliers, domain.SearchTerms(ing.Nom, ing.Aliases, true), e.opts.LooseThreshold)
}

type candidateKey struct {
	supplier string
	id       catalogdomain.ProductID
}

func (e *Engine) pass(ctx context.Context, tenant shareddomain.TenantID, ing *catalogdomain.Ingredient, suppliers, terms []string, threshold float64) ([]Candidate, error) {
	seen := map[candidateKey]bool{}
	var out []Candidate
	for _, supplier := range suppliers {
		for _, term := range terms {
			products, err := e.search(ctx, tenant, supplier, term)
			if err != nil {
				return nil, err
			}
			for _, p := range products {
				k := candidateKey{supplier: supplier, id: p.ID}
				if seen[k] {
					continue
				}
				seen[k] = true
				if s := score(ing, p.Key.DesignationClean); s >= threshold {
					out = append(out, Candidate{Product: p, Supplier: supplier, Score: s})
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Supplier != out[j].Supplier {
			return out[i].Supplier < out[j].Supplier
		}
		return out[i].Product.ID < out[j].Product.ID
	})
	return out, nil
}

// score retient la meilleure similarité entre la désignation et le nom ou un alias
func score(ing *catalogdomain.Ingredient, designation string) float64 {
	best := domain.Similarity(ing.Nom, designation)
	for _, alias := range ing.Aliases {
		if s := domain.Similarity(alias, designation); s > best {
			best = s
		}
	}
	return best
}

func (e *Engine) search(ctx context.Context, tenant shareddomain.TenantID, supplier, term string) ([]*catalogdomain.ProductAggregate, error) {
	key := sharedinfra.NewCacheKeyBuilder().Add(string(tenant)).Add(supplier).Add(term).Build()
	if cached, ok := e.cache.Get(key); ok {
		return cached.([]*catalogdomain.ProductAggregate), nil
	}
	products, err := e.products.SearchProducts(ctx, tenant, supplier, term, e.opts.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search products for %q: %w", term, err)
	}
	e.cache.Set(key, products, e.opts.CacheTTL)
	return products, nil
}

// link insère au plus MaxLinks-len(existing) liens; le meilleur est primaire
// si l'ingrédient n'a pas encore de lien primaire
func (e *Engine) link(ctx context.Context, tenant shareddomain.TenantID, ing *catalogdomain.Ingredient, existing []*catalogdomain.ReconciliationLink, candidates []Candidate) (created, skipped int, err error) {
	known := map[catalogdomain.LinkKey]bool{}
	hasPrimary := false
	for _, l := range existing {
		known[l.Key] = true
		hasPrimary = hasPrimary || l.IsPrimary
	}

	slots := e.opts.MaxLinks - len(existing)
	for _, c := range candidates {
		if created >= slots {
			break
		}
		key := catalogdomain.LinkKey{IngredientID: ing.ID, ProduitID: c.Product.ID, Fournisseur: c.Supplier}
		if known[key] {
			skipped++
			continue
		}
		ratio := domain.ConversionRatio(c.Product.Key.DesignationClean, ing.UniteStockage)
		link, err := catalogdomain.NewReconciliationLink(key, ratio, c.Score, !hasPrimary && created == 0, e.now())
		if err != nil {
			return created, skipped, fmt.Errorf("invalid link for %q: %w", ing.Nom, err)
		}
		ok, err := e.links.InsertLink(ctx, tenant, link)
		if err != nil {
			return created, skipped, fmt.Errorf("failed to insert link for %q: %w", ing.Nom, err)
		}
		if !ok {
			skipped++
			continue
		}
		created++
		e.logger.Debug("lien créé",
			zap.String("ingredient", ing.Nom),
			zap.String("produit", c.Product.Key.DesignationClean),
			zap.String("fournisseur", c.Supplier),
			zap.Float64("score", c.Score),
			zap.String("ratio", ratio.String()),
		)
	}
	return created, skipped, nil
}
