// Package match decides whether an observed interaction satisfies a step's declared action.
package match

import (
	"regexp"
	"strings"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// slashDelimited matches the /body/flags form.
var slashDelimited = regexp.MustCompile(`^/.+/[a-z]*$`)

// IsRegexPattern reports whether value should be treated as a pattern rather than a literal.
// A lone slash or a path like "a/b" is a literal.
func IsRegexPattern(value string) bool {
	if value == "" {
		return false
	}
	if slashDelimited.MatchString(value) {
		return true
	}
	return strings.HasPrefix(value, "^") || strings.HasSuffix(value, "$")
}

// flagPrefix translates JavaScript-style regex flags into RE2 inline flags.
// Stateful or unicode flags (g, y, u, d) have no effect on a single test and are ignored.
func flagPrefix(flags string) (string, bool) {
	var inline strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline.String(), f) {
				inline.WriteRune(f)
			}
		case 'g', 'y', 'u', 'd':
		default:
			return "", false
		}
	}
	if inline.Len() == 0 {
		return "", true
	}
	return "(?" + inline.String() + ")", true
}

// ParseRegexPattern compiles a pattern detected by IsRegexPattern.
// It returns nil for literals and for invalid pattern syntax; it never panics.
// Escaped slashes in the slash-delimited form are literal slashes in RE2 as well.
func ParseRegexPattern(value string) *regexp.Regexp {
	if !IsRegexPattern(value) {
		return nil
	}
	expr := value
	if slashDelimited.MatchString(value) {
		last := strings.LastIndex(value, "/")
		prefix, ok := flagPrefix(value[last+1:])
		if !ok {
			return nil
		}
		expr = prefix + value[1:last]
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil
	}
	return re
}

// MatchesRegexPattern tests value against pattern; malformed patterns never match.
func MatchesRegexPattern(value, pattern string) bool {
	re := ParseRegexPattern(pattern)
	if re == nil {
		return false
	}
	return re.MatchString(value)
}

// MatchFormValue reconciles a live form value with the expected value or pattern.
// A nil actual means the value is unknown and never matches.
func MatchFormValue(actual *string, expected string) domain.FormfillMatchResult {
	if expected == "" {
		return domain.FormfillMatchResult{IsMatch: true}
	}
	usedRegex := IsRegexPattern(expected)
	res := domain.FormfillMatchResult{UsedRegex: usedRegex, ExpectedPattern: expected}
	if actual == nil {
		return res
	}
	if usedRegex {
		res.IsMatch = MatchesRegexPattern(*actual, expected)
	} else {
		res.IsMatch = *actual == expected
	}
	return res
}

// ValidatePattern reports whether a regex-shaped expected value compiles.
// Literal values are always valid.
func ValidatePattern(expected string) bool {
	if !IsRegexPattern(expected) {
		return true
	}
	return ParseRegexPattern(expected) != nil
}
