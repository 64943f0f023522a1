package domain

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"

	catalogdomain "etlfactures/internal/catalog/domain"
	shareddomain "etlfactures/internal/shared/domain"
)

var hundred = decimal.NewFromInt(100)

// PurchaseStats résume les achats d'un tenant à partir des agrégats DWH
type PurchaseStats struct {
	tenantID    shareddomain.TenantID
	totalHT     shareddomain.Money
	totalTTC    shareddomain.Money
	nbProduits  int
	nbAchats    int
	categories  []*GroupStats
	suppliers   []*GroupStats
	topProducts []*ProductStats
}

// ComputeStats agrège les produits par catégorie et par fournisseur et
// retient les topN produits par montant HT (tous si topN <= 0)
func ComputeStats(tenant shareddomain.TenantID, products []*catalogdomain.ProductAggregate, topN int) *PurchaseStats {
	totalHT, totalTTC := decimal.Zero, decimal.Zero
	byCategory := map[string]*GroupStats{}
	bySupplier := map[string]*GroupStats{}
	top := make([]*ProductStats, 0, len(products))
	nbAchats := 0

	for _, p := range products {
		totalHT = totalHT.Add(p.MontantTotalHT)
		totalTTC = totalTTC.Add(p.MontantTotalTTC)
		nbAchats += p.NbAchats
		group(byCategory, p.CategorieCode, p)
		group(bySupplier, p.Key.FournisseurCode, p)
		top = append(top, &ProductStats{
			fournisseur: p.Key.FournisseurCode,
			designation: p.Key.DesignationClean,
			totalHT:     p.MontantTotalHT,
			nbAchats:    p.NbAchats,
			quantite:    p.QuantiteTotale,
			prixMin:     p.PrixMin,
			prixMax:     p.PrixMax,
			prixMoyen:   p.PrixMoyen,
		})
	}

	sort.Slice(top, func(i, j int) bool {
		if !top[i].totalHT.Equal(top[j].totalHT) {
			return top[i].totalHT.GreaterThan(top[j].totalHT)
		}
		if top[i].fournisseur != top[j].fournisseur {
			return top[i].fournisseur < top[j].fournisseur
		}
		return top[i].designation < top[j].designation
	})
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}

	return &PurchaseStats{
		tenantID:    tenant,
		totalHT:     shareddomain.EUR(totalHT),
		totalTTC:    shareddomain.EUR(totalTTC),
		nbProduits:  len(products),
		nbAchats:    nbAchats,
		categories:  sortGroups(byCategory, totalHT),
		suppliers:   sortGroups(bySupplier, totalHT),
		topProducts: top,
	}
}

func group(groups map[string]*GroupStats, code string, p *catalogdomain.ProductAggregate) {
	if code == "" {
		code = "UNKNOWN"
	}
	g, ok := groups[code]
	if !ok {
		g = &GroupStats{code: code, totalHT: decimal.Zero}
		groups[code] = g
	}
	g.totalHT = g.totalHT.Add(p.MontantTotalHT)
	g.nbProduits++
	g.nbAchats += p.NbAchats
}

// part de chaque groupe dans le total, puis tri par montant décroissant
func sortGroups(groups map[string]*GroupStats, total decimal.Decimal) []*GroupStats {
	out := make([]*GroupStats, 0, len(groups))
	for _, g := range groups {
		if total.IsPositive() {
			g.share = shareddomain.RoundHalfUp(g.totalHT.Mul(hundred).Div(total), 2)
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].totalHT.Equal(out[j].totalHT) {
			return out[i].totalHT.GreaterThan(out[j].totalHT)
		}
		return out[i].code < out[j].code
	})
	return out
}

// TenantID retourne le tenant concerné
func (s *PurchaseStats) TenantID() shareddomain.TenantID { return s.tenantID }

// TotalHT retourne le montant HT cumulé
func (s *PurchaseStats) TotalHT() shareddomain.Money { return s.totalHT }

// TotalTTC retourne le montant TTC cumulé
func (s *PurchaseStats) TotalTTC() shareddomain.Money { return s.totalTTC }

// NbProduits retourne le nombre de produits distincts
func (s *PurchaseStats) NbProduits() int { return s.nbProduits }

// NbAchats retourne le nombre de lignes d'achat historisées
func (s *PurchaseStats) NbAchats() int { return s.nbAchats }

// Categories retourne les statistiques par catégorie
func (s *PurchaseStats) Categories() []*GroupStats {
	return append([]*GroupStats{}, s.categories...)
}

// Suppliers retourne les statistiques par fournisseur
func (s *PurchaseStats) Suppliers() []*GroupStats {
	return append([]*GroupStats{}, s.suppliers...)
}

// TopProducts retourne les produits les plus achetés en montant
func (s *PurchaseStats) TopProducts() []*ProductStats {
	return append([]*ProductStats{}, s.topProducts...)
}

type groupJSON struct {
	Code       string          `json:"code"`
	MontantHT  decimal.Decimal `json:"montant_ht"`
	Part       decimal.Decimal `json:"part_pct"`
	NbProduits int             `json:"nb_produits"`
	NbAchats   int             `json:"nb_achats"`
}

type productJSON struct {
	Fournisseur string          `json:"fournisseur"`
	Designation string          `json:"designation"`
	MontantHT   decimal.Decimal `json:"montant_ht"`
	NbAchats    int             `json:"nb_achats"`
	Quantite    decimal.Decimal `json:"quantite"`
	PrixMin     decimal.Decimal `json:"prix_min"`
	PrixMax     decimal.Decimal `json:"prix_max"`
	PrixMoyen   decimal.Decimal `json:"prix_moyen"`
}

// MarshalJSON expose les statistiques au format du rapport
func (s *PurchaseStats) MarshalJSON() ([]byte, error) {
	groups := func(in []*GroupStats) []groupJSON {
		out := make([]groupJSON, 0, len(in))
		for _, g := range in {
			out = append(out, groupJSON{g.code, g.totalHT, g.share, g.nbProduits, g.nbAchats})
		}
		return out
	}
	products := make([]productJSON, 0, len(s.topProducts))
	for _, p := range s.topProducts {
		products = append(products, productJSON{
			p.fournisseur, p.designation, p.totalHT, p.nbAchats, p.quantite, p.prixMin, p.prixMax, p.prixMoyen,
		})
	}
	return json.Marshal(struct {
		TenantID    string          `json:"tenant_id"`
		MontantHT   decimal.Decimal `json:"montant_total_ht"`
		MontantTTC  decimal.Decimal `json:"montant_total_ttc"`
		NbProduits  int             `json:"nb_produits"`
		NbAchats    int             `json:"nb_achats"`
		Categories  []groupJSON     `json:"categories"`
		Suppliers   []groupJSON     `json:"fournisseurs"`
		TopProducts []productJSON   `json:"top_produits"`
	}{
		TenantID:    string(s.tenantID),
		MontantHT:   s.totalHT.Amount(),
		MontantTTC:  s.totalTTC.Amount(),
		NbProduits:  s.nbProduits,
		NbAchats:    s.nbAchats,
		Categories:  groups(s.categories),
		Suppliers:   groups(s.suppliers),
		TopProducts: products,
	})
}

// GroupStats regroupe les achats d'une catégorie ou d'un fournisseur
type GroupStats struct {
	code       string
	totalHT    decimal.Decimal
	share      decimal.Decimal
	nbProduits int
	nbAchats   int
}

// Code retourne le code catégorie ou fournisseur
func (g *GroupStats) Code() string { return g.code }

// TotalHT retourne le montant HT du groupe
func (g *GroupStats) TotalHT() decimal.Decimal { return g.totalHT }

// Share retourne la part du groupe dans le total, en pourcentage
func (g *GroupStats) Share() decimal.Decimal { return g.share }

// NbProduits retourne le nombre de produits du groupe
func (g *GroupStats) NbProduits() int { return g.nbProduits }

// NbAchats retourne le nombre d'achats du groupe
func (g *GroupStats) NbAchats() int { return g.nbAchats }

// ProductStats représente les achats cumulés d'un produit
type ProductStats struct {
	fournisseur string
	designation string
	totalHT     decimal.Decimal
	nbAchats    int
	quantite    decimal.Decimal
	prixMin     decimal.Decimal
	prixMax     decimal.Decimal
	prixMoyen   decimal.Decimal
}

// Fournisseur retourne le code fournisseur
func (p *ProductStats) Fournisseur() string { return p.fournisseur }

// Designation retourne le libellé canonique
func (p *ProductStats) Designation() string { return p.designation }

// TotalHT retourne le montant HT cumulé
func (p *ProductStats) TotalHT() decimal.Decimal { return p.totalHT }

// NbAchats retourne le nombre d'achats
func (p *ProductStats) NbAchats() int { return p.nbAchats }

// Quantite retourne la quantité totale achetée
func (p *ProductStats) Quantite() decimal.Decimal { return p.quantite }

// PrixMoyen retourne le prix moyen pondéré
func (p *ProductStats) PrixMoyen() decimal.Decimal { return p.prixMoyen }
