// Package template implements the output filename template formatter:
// `{variable}` and `{variable?}` (conditional) substitutions against a
// title's metadata, producing a filesystem-safe name.
package template

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var variableRe = regexp.MustCompile(`\{([^}]+)\}`)

// Formatter renders one configured template string (spec §6's
// output_template.movies/series/songs) against a per-title context.
type Formatter struct {
	template  string
	variables []string
}

// New parses template, extracting its `{variable}`/`{variable?}` tokens.
func New(tmpl string) *Formatter {
	matches := variableRe.FindAllStringSubmatch(tmpl, -1)
	vars := make([]string, 0, len(matches))
	for _, m := range matches {
		vars = append(vars, strings.TrimSpace(m[1]))
	}
	return &Formatter{template: tmpl, variables: vars}
}

// Format substitutes every variable with its value from context. A
// conditional variable (`{name?}`) with no value in context — or an
// empty string — is removed entirely rather than leaving a blank gap.
func (f *Formatter) Format(context map[string]string) string {
	result := f.template
	for _, variable := range f.variables {
		placeholder := "{" + variable + "}"
		conditional := strings.HasSuffix(variable, "?")
		name := strings.TrimSuffix(variable, "?")
		value := context[name]

		if conditional && value == "" {
			result = strings.ReplaceAll(result, placeholder, "")
			continue
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	spacer := "."
	if strings.Contains(f.template, " ") && !strings.Contains(f.template, ".") {
		spacer = " "
	}
	return sanitizeFilename(cleanup(result), spacer)
}

// RequiredVariables returns every non-conditional variable name the
// template references.
func (f *Formatter) RequiredVariables() []string {
	var required []string
	for _, v := range f.variables {
		if !strings.HasSuffix(v, "?") {
			required = append(required, v)
		}
	}
	return required
}

// Validate reports whether every required variable has a non-empty
// value in context, returning the names that are missing.
func (f *Formatter) Validate(context map[string]string) (bool, []string) {
	var missing []string
	for _, name := range f.RequiredVariables() {
		if context[name] == "" {
			missing = append(missing, name)
		}
	}
	return len(missing) == 0, missing
}

var (
	multiDot        = regexp.MustCompile(`\.{2,}`)
	multiSpace      = regexp.MustCompile(`\s{2,}`)
	leadingTrailing = regexp.MustCompile(`^[.\s]+|[.\s]+$`)
	dotDash         = regexp.MustCompile(`\.-`)
	dotBeforeParen  = regexp.MustCompile(`[.\s]+\)`)
)

func cleanup(s string) string {
	s = multiDot.ReplaceAllString(s, ".")
	s = multiSpace.ReplaceAllString(s, " ")
	s = leadingTrailing.ReplaceAllString(s, "")
	s = dotDash.ReplaceAllString(s, "-")
	s = dotBeforeParen.ReplaceAllString(s, ")")
	return s
}

var (
	structuralChars = regexp.MustCompile(`[:; ]`)
	unsafeChars     = regexp.MustCompile(`[\\*!?¿,'"<>|$#~]`)
)

// sanitizeFilename makes s safe to use as a filename component: decomposes
// accented characters and drops their combining marks (NFKD fold, the
// closest stdlib/x/text equivalent to the original's transliteration
// step), collapses structural separators to spacer, and strips characters
// unsafe on common filesystems.
func sanitizeFilename(s, spacer string) string {
	s = foldDiacritics(s)
	s = strings.ReplaceAll(s, "/", " & ")
	s = strings.ReplaceAll(s, ";", " & ")
	s = structuralChars.ReplaceAllString(s, spacer)
	s = unsafeChars.ReplaceAllString(s, "")
	s = regexp.MustCompile(regexp.QuoteMeta(spacer) + `{2,}`).ReplaceAllString(s, spacer)
	return s
}

// foldDiacritics decomposes s under NFKD and drops the resulting
// combining-mark runes (Unicode category Mn), turning e.g. "é" into "e".
func foldDiacritics(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
