package testhelpers

import (
	_ "embed"
	"strings"
)

// TaiyatPDF est TaiyatInvoice rendue en PDF (Helvetica, WinAnsiEncoding),
// une ligne de texte par ligne de la facture
//
//go:embed testdata/taiyat.pdf
var TaiyatPDF []byte

// Pages assemble des lignes en pages de texte
func Pages(pages ...[]string) []string {
	out := make([]string, len(pages))
	for i, lines := range pages {
		out[i] = strings.Join(lines, "\n")
	}
	return out
}

// TextExport assemble des pages au format des exports texte (saut de page \f)
func TextExport(pages []string) string {
	return strings.Join(pages, "\f")
}

// TaiyatInvoice est une facture TAIYAT d'une page, trois lignes d'articles
// (une par grammaire) et un total imprimé cohérent
var TaiyatInvoice = Pages([]string{
	"TAIYAT DISTRIBUTION",
	"FACTURE N° FA2024-0153",
	"Date : 15/03/2024",
	"TVA : FR12345678901",
	"Client : RESTAURANT LE LOTUS",
	"Page 1/1",
	"CODE EAN DESIGNATION COLIS QTE PU MONTANT TVA",
	"T1001 4006381333931 SCE SOJA 1L 12 2 3,50 7,00 1",
	"T2040 RIZ JASMIN 20 KG 1 3 24,90 74,70 1",
	"NOUILLES UDON 4 10,00",
	"TOTAL HT 91,70",
})

// MetroInvoice est une facture METRO sur deux pages: l'en-tête est en page 1,
// une ligne de la page 2 en dépend, une ligne est illisible
var MetroInvoice = Pages(
	[]string{
		"METRO FRANCE - METRO CASH & CARRY",
		"N° FACTURE : 0042-778812",
		"Date facture : 02-04-2024",
		"Client : 123456 BISTROT DU PORT",
		"N° TVA : FR 98 765432109",
		"Page 1/2",
		"EAN ARTICLE DESIGNATION COLIS PU QTE MONTANT TVA",
		"*** SPIRITUEUX ***",
		"3259354102014 123456 VODKA POLIAKOV 37,5% 70CL 6 9,90 2 19,80 D",
		"*** EPICERIE ***",
		"3017620422003 223344 NUTELLA 1KG 1 5,49 3 16,47 B P",
	},
	[]string{
		"Page 2/2",
		"N° FACTURE : 0042-778812",
		"5449000000996 998877 COCA COLA 33CL 24 0,55 24 13,20 D",
		"LIGNE ILLISIBLE 12,00 XX",
		"Total HT 49,47",
	},
)

// EurocielInvoice mélange une ligne pesée et une ligne simple
var EurocielInvoice = Pages([]string{
	"EUROCIEL SAS",
	"Facture n° EC-55012",
	"Date : 2024-05-10",
	"TVA intracom : FR55123456789",
	"Livré à : CANTINE CENTRALE",
	"Page 1 / 1",
	"Réf Désignation Qté Unité PU Montant TVA",
	"SAU-100 SAUMON FILET SURGELE 2,5 KG 18,40 46,00 5,5%",
	"BRK-20 BROCOLIS FLEURETTES 4 3,10 12,40",
	"Montant HT 58,40",
})

// TaiyatTwoInvoices contient deux factures dans un même fichier; la seconde
// commence par un marqueur "Page 1/1"
var TaiyatTwoInvoices = Pages(
	[]string{
		"TAIYAT DISTRIBUTION",
		"FACTURE N° A-1",
		"Date : 01/02/2024",
		"Client : RESTO A",
		"T1001 4006381333931 SCE SOJA 1L 12 2 3,50 7,00 1",
	},
	[]string{
		"Page 1/1",
		"TAIYAT DISTRIBUTION",
		"Date : 05/02/2024",
		"Client : RESTO B",
		"FACTURE N° B-2",
		"T3300 GINGEMBRE FRAIS 1 2 4,00 8,00 1",
	},
)

// GarbageText ne ressemble à aucune facture
var GarbageText = Pages([]string{"%%%% lorem ipsum", "rien à voir ici"})
