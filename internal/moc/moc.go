// Package moc recognises index notes ("Maps of Content") and derives the
// grouping prefix that ties ordinary notes to them.
//
// A note named "Projects - Rewrite Plan" has prefix "Projects" and belongs to
// the index note "Projects - MOC".
package moc

import (
	"path/filepath"
	"strings"
)

// Separator splits a note name into its prefix and the rest.
const Separator = " - "

// NoteExt is the only file extension the daemon tracks.
const NoteExt = ".md"

// Rule identifies which naming rule classified a name as an index note.
type Rule string

const (
	RuleNone        Rule = ""
	RuleSuffix      Rule = "suffix"      // "<prefix> - MOC"
	RuleParenthesis Rule = "parenthesis" // "((<prefix> - MOC))"
	RuleLoose       Rule = "loose"       // contains "MOC" anywhere
)

var mocSuffixes = []string{Separator + "MOC", Separator + "moc"}

// Classification is the result of Classify.
type Classification struct {
	Index  bool   `json:"index"`
	Prefix string `json:"prefix,omitempty"`
	Rule   Rule   `json:"rule,omitempty"`
}

// Classifier decides whether a base name is an index note.
// The zero value uses the loose rule set.
type Classifier struct {
	// Strict disables the loose "contains MOC anywhere" rule.
	Strict bool
}

// Classify applies the naming rules in priority order. A rule whose pattern
// matches but yields an empty prefix falls through to the next rule; the
// name is still reported as an index note.
func (c Classifier) Classify(base string) Classification {
	var out Classification

	if p, ok := suffixPrefix(base); ok {
		out.Index = true
		if p != "" {
			return Classification{Index: true, Prefix: p, Rule: RuleSuffix}
		}
	}

	if inner, ok := parenthesised(base); ok {
		out.Index = true
		if p, _ := suffixPrefix(inner); p != "" {
			return Classification{Index: true, Prefix: p, Rule: RuleParenthesis}
		}
	}

	if c.Strict || !strings.Contains(strings.ToUpper(base), "MOC") {
		return out
	}

	out.Index = true
	if p := loosePrefix(base); p != "" {
		return Classification{Index: true, Prefix: p, Rule: RuleLoose}
	}
	return out
}

// IsIndex reports whether base is classified as an index note.
func (c Classifier) IsIndex(base string) bool {
	return c.Classify(base).Index
}

// suffixPrefix handles "<prefix> - MOC" and "<prefix> - moc". The prefix is
// everything before the last separator.
func suffixPrefix(base string) (string, bool) {
	for _, s := range mocSuffixes {
		if strings.HasSuffix(base, s) {
			return base[:strings.LastIndex(base, Separator)], true
		}
	}
	return "", false
}

// parenthesised returns the name inside "((" and "))" when base is of the form
// "((<prefix> - MOC))".
func parenthesised(base string) (string, bool) {
	if !strings.HasPrefix(base, "((") {
		return "", false
	}
	for _, s := range mocSuffixes {
		if strings.HasSuffix(base, s+"))") {
			return strings.TrimSuffix(strings.TrimPrefix(base, "(("), "))"), true
		}
	}
	return "", false
}

func loosePrefix(base string) string {
	if p, ok := NotePrefix(base); ok {
		return p
	}
	p := strings.ReplaceAll(base, " MOC", "")
	p = strings.ReplaceAll(p, " moc", "")
	return strings.TrimSpace(p)
}

// NotePrefix returns the substring before the first separator.
func NotePrefix(base string) (string, bool) {
	i := strings.Index(base, Separator)
	if i < 0 {
		return "", false
	}
	return base[:i], true
}

// BaseName strips directory and extension from path.
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// IsNote reports whether path has the tracked note extension.
func IsNote(path string) bool {
	return strings.HasSuffix(path, NoteExt)
}

// LinkLine builds the list entry written into an index note.
func LinkLine(base string) string {
	return "- [[" + base + "]]"
}
