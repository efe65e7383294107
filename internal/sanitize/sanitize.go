// Package sanitize normalizes untrusted tool input and scans it for prompt
// injection patterns before it reaches the YouTube collaborator or a cached
// response. Detection reasons are for server-side logs only; callers must
// return a generic rejection to the client.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultMaxInputLength bounds input size when the config does not set one.
const DefaultMaxInputLength = 2000

// injectionPatterns are compiled once at init. Each pattern carries a short
// reason string used in security logs.
var injectionPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`), "instruction_override"},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)`), "instruction_override"},
	{regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(you|above)`), "instruction_override"},
	{regexp.MustCompile(`(?i)\byou\s+are\s+now\s+(a|an|the)\b`), "role_override"},
	{regexp.MustCompile(`(?i)\bact\s+as\s+(a|an|the|if)\b`), "role_override"},
	{regexp.MustCompile(`(?i)\bpretend\s+(to\s+be|you\s+are)\b`), "role_override"},
	{regexp.MustCompile(`(?i)\bnew\s+(system\s+)?instructions?\s*:`), "instruction_injection"},
	{regexp.MustCompile(`(?i)<\s*/?\s*(system|assistant|user)\s*>`), "system_tag"},
	{regexp.MustCompile(`(?i)\[\s*(system|INST)\s*\]`), "system_tag"},
	{regexp.MustCompile(`(?i)<\s*script[\s>]`), "script_fragment"},
	{regexp.MustCompile(`(?i)javascript\s*:`), "script_fragment"},
	{regexp.MustCompile(`(?i)\beval\s*\(`), "script_fragment"},
	{regexp.MustCompile(`(?i)\bexec\s*\(`), "script_fragment"},
	{regexp.MustCompile(`\.\./|\.\.\\`), "path_traversal"},
}

// strictPatterns are additionally applied in strict mode, where any markup
// fragment in a plain-text argument is treated as hostile.
var strictPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`(?i)<\s*(iframe|img|svg|object|embed)[\s>]`), "markup_fragment"},
	{regexp.MustCompile(`(?i)on(load|error|click|mouseover)\s*=`), "event_handler"},
	{regexp.MustCompile(`(?i)data\s*:\s*text/html`), "data_uri"},
}

// invisibleRunes are zero-width and direction-control characters used to
// smuggle instructions past visual review.
var invisibleRunes = map[rune]bool{
	'\u200b': true, // zero width space
	'\u200c': true, // zero width non-joiner
	'\u200d': true, // zero width joiner
	'\ufeff': true, // byte order mark
	'\u2060': true, // word joiner
	'\u202a': true, // left-to-right embedding
	'\u202b': true, // right-to-left embedding
	'\u202c': true, // pop directional formatting
	'\u202d': true, // left-to-right override
	'\u202e': true, // right-to-left override
	'\u2066': true, // left-to-right isolate
	'\u2067': true, // right-to-left isolate
	'\u2068': true, // first strong isolate
	'\u2069': true, // pop directional isolate
}

// Sanitizer cleans and screens text arguments.
type Sanitizer struct {
	maxLen int
	strict bool
}

// New creates a Sanitizer. maxLen <= 0 uses DefaultMaxInputLength.
func New(maxLen int, strict bool) *Sanitizer {
	if maxLen <= 0 {
		maxLen = DefaultMaxInputLength
	}
	return &Sanitizer{maxLen: maxLen, strict: strict}
}

// Sanitize strips control and invisible characters, collapses the input to
// the configured maximum length (by runes, never splitting one), and trims
// surrounding whitespace. It never rejects; use Detect for that.
func (s *Sanitizer) Sanitize(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if invisibleRunes[r] {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}

	out := strings.TrimSpace(b.String())
	runes := []rune(out)
	if len(runes) > s.maxLen {
		out = strings.TrimSpace(string(runes[:s.maxLen]))
	}
	return out
}

// Detection describes why an input was flagged. The Reason is server-side
// only.
type Detection struct {
	Flagged bool
	Reason  string
}

// Detect scans raw input for injection patterns. The first matching pattern
// short-circuits. Scanning happens on the raw input, before Sanitize, so
// invisible-character tricks are themselves detectable.
func (s *Sanitizer) Detect(input string) Detection {
	for r := range invisibleRunes {
		if strings.ContainsRune(input, r) {
			return Detection{Flagged: true, Reason: "invisible_characters"}
		}
	}
	for _, p := range injectionPatterns {
		if p.re.MatchString(input) {
			return Detection{Flagged: true, Reason: p.reason}
		}
	}
	if s.strict {
		for _, p := range strictPatterns {
			if p.re.MatchString(input) {
				return Detection{Flagged: true, Reason: p.reason}
			}
		}
	}
	return Detection{}
}

// Check sanitizes and scans in one pass, returning the cleaned input and
// the detection verdict for the raw input.
func (s *Sanitizer) Check(input string) (string, Detection) {
	return s.Sanitize(input), s.Detect(input)
}
