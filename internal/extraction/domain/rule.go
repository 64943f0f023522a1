package domain

import (
	"regexp"

	stagingdomain "etlfactures/internal/staging/domain"
)

// Rule est une grammaire de ligne nommée: une fonction pure du texte vers des
// champs bruts. L'ordre des règles d'un parseur est leur ordre de priorité.
type Rule struct {
	Name  string
	Match func(line string) (stagingdomain.RawFields, bool)
}

// FieldSetter affecte un groupe capturé à un champ brut
type FieldSetter func(f *stagingdomain.RawFields, value string)

// RegexRule construit une règle à partir d'une expression à groupes nommés.
// Chaque groupe nommé présent dans setters est affecté au champ correspondant;
// un groupe vide laisse le champ à nil.
func RegexRule(name string, pattern *regexp.Regexp, setters map[string]FieldSetter) Rule {
	names := pattern.SubexpNames()
	return Rule{
		Name: name,
		Match: func(line string) (stagingdomain.RawFields, bool) {
			var fields stagingdomain.RawFields
			m := pattern.FindStringSubmatch(line)
			if m == nil {
				return fields, false
			}
			for i, group := range names {
				if group == "" || m[i] == "" {
					continue
				}
				if set, ok := setters[group]; ok {
					set(&fields, m[i])
				}
			}
			return fields, true
		},
	}
}

// Apply essaie les règles dans l'ordre et retourne la première correspondance
func Apply(rules []Rule, line string) (stagingdomain.RawFields, string, bool) {
	for _, rule := range rules {
		if fields, ok := rule.Match(line); ok {
			return fields, rule.Name, true
		}
	}
	return stagingdomain.RawFields{}, "", false
}
