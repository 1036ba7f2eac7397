package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// UnitSystem selects the forecast provider's unit parameter.
type UnitSystem int

const (
	Imperial UnitSystem = iota
	Metric
)

// Param returns the forecast provider's units value ("us" or "si").
func (u UnitSystem) Param() string {
	if u == Metric {
		return "si"
	}
	return "us"
}

func (u UnitSystem) String() string {
	if u == Metric {
		return "metric"
	}
	return "imperial"
}

// HelpText is returned for empty and "help" commands.
const HelpText = "Enter a location to get the current weather forecast for it. " +
	"You can enter just a city or zip code, or a full address. " +
	"For example, `/weather in 1600 Pennsylvania Avenue NW, Washington, DC`, `/weather in washington, dc`, or `/weather in 20036`. " +
	"You can also specify if you want your results in celsius, like `/weather in new york in celsius`."

var (
	leadingPrepositions = []string{"in", "for", "at"}
	metricUnitWords     = []string{"celsius", "c", "metric", "si"}
)

// LocationQuery is a normalized slash-command request.
type LocationQuery struct {
	RawText  string
	Location string
	Units    UnitSystem
	Help     bool
}

// Normalize parses raw command text into a LocationQuery.
// Empty text and the literal "help" produce a help query with no location.
func Normalize(raw string) LocationQuery {
	q := LocationQuery{RawText: raw, Units: Imperial}

	text := strings.TrimSpace(stripPreposition(raw))
	if text == "" || text == "help" {
		q.Help = true
		return q
	}

	if loc, ok := stripUnitClause(text); ok {
		q.Location = loc
		q.Units = Metric
	} else {
		q.Location = text
	}
	return q
}

// CacheKey derives the response cache key. Unit system is part of the key so
// that imperial and metric answers for one place never collide.
func (q LocationQuery) CacheKey() string {
	if q.Help {
		return ""
	}
	return q.Units.Param() + ":" + Parameterize(q.Location)
}

// Parameterize lower-cases s and replaces each run of characters outside
// [a-zA-Z0-9] with a single hyphen.
func Parameterize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
			inRun = false
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c + ('a' - 'A'))
			inRun = false
		default:
			if !inRun {
				b.WriteByte('-')
				inRun = true
			}
		}
	}
	return b.String()
}

// stripPreposition removes one leading "in", "for" or "at" token, which must be
// followed by whitespace. Leading whitespace before the token is allowed.
func stripPreposition(s string) string {
	trimmed := strings.TrimLeftFunc(s, unicode.IsSpace)
	for _, p := range leadingPrepositions {
		if len(trimmed) <= len(p) || !strings.EqualFold(trimmed[:len(p)], p) {
			continue
		}
		rest := trimmed[len(p):]
		after := strings.TrimLeftFunc(rest, unicode.IsSpace)
		if len(after) < len(rest) {
			return after
		}
	}
	return s
}

// stripUnitClause detects a trailing "<space>in<space><unit>" clause and returns
// the text before it. text must already be trimmed.
func stripUnitClause(text string) (string, bool) {
	head, word, ok := splitLastWord(text)
	if !ok || !isMetricWord(word) {
		return "", false
	}
	rest, in, ok := splitLastWord(head)
	if !ok || !strings.EqualFold(in, "in") {
		return "", false
	}
	return rest, true
}

// splitLastWord splits s at its last whitespace run. ok is false when s has no
// whitespace, i.e. there is nothing before the last word.
func splitLastWord(s string) (head, word string, ok bool) {
	i := strings.LastIndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return "", "", false
	}
	_, size := utf8.DecodeRuneInString(s[i:])
	return strings.TrimRightFunc(s[:i], unicode.IsSpace), s[i+size:], true
}

func isMetricWord(w string) bool {
	for _, u := range metricUnitWords {
		if strings.EqualFold(w, u) {
			return true
		}
	}
	return false
}
