// Package slug derives canonical URL identifiers for catalog products.
//
// A base slug is built in four steps: the free-text title is tokenized,
// the token sequence is truncated to the four-token budget, a
// brand-specific rule is applied, and the result is padded back to
// exactly four tokens before being hyphen-joined. Uniqueness against
// persisted products is handled separately by the Resolver.
package slug

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// tokenBudget is the global token count every rendered slug carries.
	tokenBudget = 4
	// fillerToken pads sequences that fall short after rule application.
	fillerToken = "item"
)

// rule transforms an ordered token sequence for one brand. Rules only
// insert or remove tokens; they never reorder the existing ones.
type rule func(tokens []string) []string

// brandRules dispatches by normalized brand name. Brands without an entry
// fall through to the identity rule, so adding a brand is a one-entry
// change here rather than a new code branch.
var brandRules = map[string]rule{
	"tommy": tommyRule,
	"shein": sheinRule,
	"reiss": reissRule,
	"next":  identityRule,
}

// Tokenize normalizes a raw title into an ordered sequence of lowercase
// tokens: lowercase, strip everything that is not a letter, digit,
// whitespace or hyphen, split on whitespace, drop empties. First-appearance
// order is preserved and nothing is deduplicated. The result may be empty
// when the title has no tokenizable content.
func Tokenize(title string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case unicode.IsSpace(r):
			return r
		default:
			return -1
		}
	}, strings.ToLower(strings.TrimSpace(title)))
	return strings.Fields(cleaned)
}

// ApplyBrandRule runs the rule registered for brand over tokens. Dispatch
// is a trimmed, case-insensitive exact match; unknown brands are identity.
func ApplyBrandRule(brand string, tokens []string) []string {
	if r, ok := brandRules[strings.ToLower(strings.TrimSpace(brand))]; ok {
		return r(tokens)
	}
	return tokens
}

func identityRule(tokens []string) []string { return tokens }

// tommyRule inserts "solid" before the last token when exactly three
// tokens remain, yielding the four-token form. Four-token titles pass
// through untouched.
func tommyRule(tokens []string) []string {
	if len(tokens) == 3 {
		return insertBeforeLast(tokens, "solid")
	}
	return tokens
}

// sheinRule rewrites shirt titles: the trailing "shirt" token is dropped
// and "curved" is spliced in before the new last token, provided a token
// survives the removal. Titles not ending in "shirt" pass through.
func sheinRule(tokens []string) []string {
	if len(tokens) == 0 || tokens[len(tokens)-1] != "shirt" {
		return tokens
	}
	tokens = dropLast(tokens)
	if len(tokens) >= 1 {
		tokens = insertBeforeLast(tokens, "curved")
	}
	return tokens
}

// reissRule drops a trailing "shirt" token with no replacement.
func reissRule(tokens []string) []string {
	if len(tokens) > 0 && tokens[len(tokens)-1] == "shirt" {
		return dropLast(tokens)
	}
	return tokens
}

// insertBeforeLast splices tok in immediately before the final token.
// On a single-token sequence the insert lands at position 0, making the
// existing token the new last token. Callers guarantee len(tokens) >= 1.
func insertBeforeLast(tokens []string, tok string) []string {
	i := len(tokens) - 1
	out := make([]string, 0, len(tokens)+1)
	out = append(out, tokens[:i]...)
	out = append(out, tok)
	out = append(out, tokens[i:]...)
	return out
}

func dropLast(tokens []string) []string {
	return tokens[:len(tokens)-1]
}

// truncateTokens enforces the token budget ahead of brand rules, so every
// rule sees at most four tokens.
func truncateTokens(tokens []string) []string {
	if len(tokens) > tokenBudget {
		return tokens[:tokenBudget]
	}
	return tokens
}

// padTokens tops a short sequence back up to the budget with the filler
// token and re-truncates as a final guard. An empty sequence stays empty;
// the creation path substitutes a SKU-derived fallback for it.
func padTokens(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}
	for len(tokens) < tokenBudget {
		tokens = append(tokens, fillerToken)
	}
	return tokens[:tokenBudget]
}

// Render joins tokens with single hyphens. An empty sequence renders to
// the empty string.
func Render(tokens []string) string {
	return strings.Join(tokens, "-")
}

// Generate derives the base slug for a product title under the given
// brand's rules. The result is deterministic and unchecked for
// uniqueness. It is "" only when the title yields no tokens at all.
func Generate(brand, title string) string {
	tokens := truncateTokens(Tokenize(title))
	tokens = ApplyBrandRule(brand, tokens)
	return Render(padTokens(tokens))
}

// Fallback is the base slug used when a title yields no tokens.
func Fallback(sku int64) string {
	return fmt.Sprintf("product-%d", sku)
}
