package normalization

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	shareddomain "etlfactures/internal/shared/domain"
)

// formats primaires puis formats de repli, dans l'ordre d'essai
var dateLayouts = []string{
	"02-01-2006",
	"02/01/2006",
	"2006-01-02",
	"02.01.2006",
	"2006/01/02",
	"02/01/06",
	"02-01-06",
	"2-1-2006",
	"2/1/2006",
	"2006-01-02T15:04:05",
	"02/01/2006 15:04",
}

var frenchMonths = map[string]time.Month{
	"janvier": time.January, "janv": time.January,
	"fevrier": time.February, "février": time.February, "fevr": time.February, "févr": time.February,
	"mars":  time.March,
	"avril": time.April, "avr": time.April,
	"mai":     time.May,
	"juin":    time.June,
	"juillet": time.July, "juil": time.July,
	"aout": time.August, "août": time.August,
	"septembre": time.September, "sept": time.September,
	"octobre": time.October, "oct": time.October,
	"novembre": time.November, "nov": time.November,
	"decembre": time.December, "décembre": time.December, "dec": time.December, "déc": time.December,
}

var reLongDate = regexp.MustCompile(`^(\d{1,2})(?:er)?\s+([\p{L}]+)\.?\s+(\d{4})$`)

// NormalizeDate accepte JJ-MM-AAAA, JJ/MM/AAAA, AAAA-MM-JJ et quelques formats
// de repli. Rejette les dates avant l'epoch ou au-delà de now + 30 jours.
func (n *Normalizer) NormalizeDate(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	s := cleanString(*raw)
	if s == "" {
		return nil
	}
	t, ok := parseDate(s)
	if !ok {
		n.logger.Warn("date illisible", zap.String("raw", *raw))
		return nil
	}
	window, err := shareddomain.NewAcceptanceWindow(n.epoch, n.now(), n.futureDays)
	if err != nil || !window.Contains(t) {
		n.logger.Warn("date hors fenêtre", zap.String("raw", *raw), zap.Time("date", t))
		return nil
	}
	return &t
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}
	return parseLongFrenchDate(s)
}

// parseLongFrenchDate lit "15 janvier 2024" ou "1er mars 2023"
func parseLongFrenchDate(s string) (time.Time, bool) {
	m := reLongDate.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return time.Time{}, false
	}
	month, ok := frenchMonths[m[2]]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalise le 31 février en mars: on refuse
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
