package domain

import (
	"errors"
	"fmt"
)

// Status représente l'état d'extraction d'une ligne de staging
type Status string

const (
	StatusRaw        Status = "RAW"
	StatusNormalized Status = "NORMALIZED"
	StatusValidated  Status = "VALIDATED"
	StatusNormError  Status = "NORM_ERROR"
	StatusValidError Status = "VALID_ERROR"
)

var (
	// ErrIllegalTransition est retournée pour toute transition hors machine d'état
	ErrIllegalTransition = errors.New("illegal staging status transition")
	// ErrLineFrozen est retournée quand on modifie une ligne dans un état terminal
	ErrLineFrozen = errors.New("staging line is in a terminal state")
)

var transitions = map[Status][]Status{
	StatusRaw:        {StatusNormalized, StatusNormError},
	StatusNormalized: {StatusValidated, StatusValidError},
}

// IsTerminal indique si aucun état ne suit s
func (s Status) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

// IsError indique un état terminal d'échec
func (s Status) IsError() bool {
	return s == StatusNormError || s == StatusValidError
}

// Valid indique si s est un état connu
func (s Status) Valid() bool {
	switch s {
	case StatusRaw, StatusNormalized, StatusValidated, StatusNormError, StatusValidError:
		return true
	}
	return false
}

// CanTransition vérifie qu'on peut passer de from à to (avance uniquement)
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition retourne une erreur typée si la transition est interdite
func CheckTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s: %w", ErrIllegalTransition, from, to, ErrLineFrozen)
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// CheckUpdate valide l'écriture d'une ligne lue dans l'état from et portant
// désormais next: sans changement d'état, seule une ligne non terminale peut
// être réécrite
func CheckUpdate(from, next Status) error {
	if from == next {
		if from.IsTerminal() {
			return ErrLineFrozen
		}
		return nil
	}
	return CheckTransition(from, next)
}

// Transition est une transition appliquée, conservée pour audit
type Transition struct {
	LineID int64
	From   Status
	To     Status
}
