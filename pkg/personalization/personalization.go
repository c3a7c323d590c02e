// Package personalization substitutes {{namespace.field}} tokens in email
// subjects and bodies. Tokens are matched literally against a fixed catalog,
// not evaluated as an expression language.
package personalization

import (
	"regexp"
	"strings"
)

// tokenPattern matches {{namespace.field}} tokens. Brace content that does
// not look like a token is left alone so unrelated braces never get mangled.
var tokenPattern = regexp.MustCompile(`\{\{[a-zA-Z0-9_]+\.[a-zA-Z0-9_]+\}\}`)

// Render replaces every known token in template with its value. Tokens
// without a value in vars are left verbatim. Render is pure: same template
// and vars always produce the same output.
func Render(template string, vars map[string]string) string {
	if template == "" || len(vars) == 0 {
		return template
	}

	return tokenPattern.ReplaceAllStringFunc(template, func(token string) string {
		if value, ok := vars[token]; ok {
			return value
		}

		return token
	})
}

// ExtractVariables returns the tokens appearing in template, in order of
// first appearance, duplicates removed.
func ExtractVariables(template string) []string {
	matches := tokenPattern.FindAllString(template, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	tokens := make([]string, 0, len(matches))

	for _, token := range matches {
		if _, dup := seen[token]; dup {
			continue
		}

		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}

	return tokens
}

// ValidationResult distinguishes tokens unknown to the catalog from known
// tokens with no value available in the current context.
type ValidationResult struct {
	InvalidTokens []string `json:"invalid_tokens"`
	MissingValues []string `json:"missing_values"`
}

// OK reports whether the template uses only known tokens with values.
func (r ValidationResult) OK() bool {
	return len(r.InvalidTokens) == 0 && len(r.MissingValues) == 0
}

// Validate checks every token in template against the variable catalog and
// the values available in the given context.
func Validate(template string, available map[string]string) ValidationResult {
	var result ValidationResult

	for _, token := range ExtractVariables(template) {
		if !IsKnownToken(token) {
			result.InvalidTokens = append(result.InvalidTokens, token)

			continue
		}

		if value, ok := available[token]; !ok || strings.TrimSpace(value) == "" {
			result.MissingValues = append(result.MissingValues, token)
		}
	}

	return result
}
