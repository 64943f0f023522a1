// Package normalization convertit les valeurs brutes capturées par les parseurs
// en valeurs canoniques typées. Toutes les fonctions sont totales: une entrée
// invalide produit nil (ou un code sentinelle), jamais une erreur ni une panique.
package normalization

import (
	"time"

	"go.uber.org/zap"
)

// UnknownCode est le code canonique retourné quand aucun mapping ne correspond
const UnknownCode = "UNKNOWN"

// DefaultEpoch est la date de facture la plus ancienne acceptée
var DefaultEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultFutureDays borne les dates de facture dans le futur
const DefaultFutureDays = 30

// Normalizer porte les dépendances injectées (logger, horloge) des fonctions
// de normalisation. Il ne conserve aucun état entre deux appels.
type Normalizer struct {
	logger     *zap.Logger
	now        func() time.Time
	epoch      time.Time
	futureDays int
}

// Option configure un Normalizer
type Option func(*Normalizer)

// WithClock remplace l'horloge (tests)
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithDateWindow remplace la fenêtre d'acceptation des dates
func WithDateWindow(epoch time.Time, futureDays int) Option {
	return func(n *Normalizer) {
		n.epoch = epoch
		n.futureDays = futureDays
	}
}

// New crée un Normalizer; un logger nil est remplacé par zap.NewNop()
func New(logger *zap.Logger, opts ...Option) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Normalizer{
		logger:     logger,
		now:        time.Now,
		epoch:      DefaultEpoch,
		futureDays: DefaultFutureDays,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Logger retourne le logger du normalizer
func (n *Normalizer) Logger() *zap.Logger {
	return n.logger
}

func strPtr(s string) *string { return &s }
