package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// Route prefixes recognized by ParseRoute.
const (
	PrefixInterstate = "I"
	PrefixUS         = "US"
	PrefixState      = "SR"
)

var (
	interstateRe = regexp.MustCompile(`(?i)\b(?:interstate|ih|i)[\s-]*0*(\d{1,3})(?:\D|$)`)
	usRouteRe    = regexp.MustCompile(`(?i)\b(?:us|u\.s\.)[\s-]*(?:hwy|highway|route|rte)?[\s-]*0*(\d{1,3})(?:\D|$)`)
	stateRouteRe = regexp.MustCompile(`(?i)\b(?:sr|sh|state\s+route|state\s+highway|state\s+hwy|route|rte|hwy|highway)[\s-]*0*(\d{1,4})(?:\D|$)`)
	// Bare postal prefixes ("IA 5") must be upper-case so prose such as
	// "closed in 2 places" is not read as Indiana 2.
	postalRouteRe = regexp.MustCompile(`\b(?:AL|AK|AZ|AR|CA|CO|CT|DE|FL|GA|HI|ID|IL|IN|IA|KS|KY|LA|ME|MD|MA|MI|MN|MS|MO|MT|NE|NV|NH|NJ|NM|NY|NC|ND|OH|OK|OR|PA|RI|SC|SD|TN|TX|UT|VT|VA|WA|WV|WI|WY)[\s-]*0*(\d{1,4})(?:\D|$)`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// routePatterns are tried together; the leftmost match wins and earlier
// entries win ties.
var routePatterns = []struct {
	re     *regexp.Regexp
	prefix string
}{
	{interstateRe, PrefixInterstate},
	{usRouteRe, PrefixUS},
	{stateRouteRe, PrefixState},
	{postalRouteRe, PrefixState},
}

// Route identifies a numbered highway.
type Route struct {
	Prefix string
	Number string
}

// String renders the canonical corridor token, e.g. "I-80".
func (r Route) String() string { return r.Prefix + "-" + r.Number }

// ParseRoute extracts a numbered route from free text such as "I 080 EB",
// "US Hwy 30", or "State Route 17". When several routes appear, the first one
// in the text wins: "US 30 at I-80" is US-30. County roads ("CR 12") are not
// routes. Returns false when no route pattern matches.
func ParseRoute(s string) (Route, bool) {
	var (
		best  Route
		start = -1
	)
	for _, p := range routePatterns {
		m := p.re.FindStringSubmatchIndex(s)
		if m == nil || (start >= 0 && m[0] >= start) {
			continue
		}
		start = m[0]
		best = Route{Prefix: p.prefix, Number: trimZeros(s[m[2]:m[3]])}
	}
	return best, start >= 0
}

// NormalizeCorridor collapses spelling variants of the same road to one token:
// "I 080", "i-80", "I80", and "Interstate 80" all become "I-80". Text without
// a recognizable route number is upper-cased with whitespace collapsed.
func NormalizeCorridor(s string) string {
	if r, ok := ParseRoute(s); ok {
		return r.String()
	}
	return strings.ToUpper(spaceRe.ReplaceAllString(strings.TrimSpace(s), " "))
}

// Orientation infers carriageway orientation from the US numbering convention:
// even route numbers run east-west, odd run north-south. Only Interstate and
// US routes follow the convention reliably.
func (r Route) Orientation() (eastWest bool, ok bool) {
	if r.Prefix != PrefixInterstate && r.Prefix != PrefixUS {
		return false, false
	}
	n, err := strconv.Atoi(r.Number)
	if err != nil {
		return false, false
	}
	return n%2 == 0, true
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}
