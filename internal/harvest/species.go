package harvest

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
)

// Species is a stable species code such as "red_drum".
type Species string

const (
	RedDrum         Species = "red_drum"
	Flounder        Species = "flounder"
	SpottedSeatrout Species = "spotted_seatrout"
	Weakfish        Species = "weakfish"
	StripedBass     Species = "striped_bass"
)

// TrackedSpecies is the reporting catalog in iteration order.
// Ties on catch count resolve to the earlier entry.
var TrackedSpecies = []Species{RedDrum, Flounder, SpottedSeatrout, Weakfish, StripedBass}

var displayNames = map[Species]string{
	RedDrum:         "Red Drum",
	Flounder:        "Flounder",
	SpottedSeatrout: "Spotted Seatrout",
	Weakfish:        "Weakfish",
	StripedBass:     "Striped Bass",
}

// Common angler names for the tracked species.
var aliases = map[string]Species{
	"redfish":        RedDrum,
	"red":            RedDrum,
	"puppy drum":     RedDrum,
	"channel bass":   RedDrum,
	"fluke":          Flounder,
	"speckled trout": SpottedSeatrout,
	"speck":          SpottedSeatrout,
	"specks":         SpottedSeatrout,
	"gray trout":     Weakfish,
	"grey trout":     Weakfish,
	"rockfish":       StripedBass,
	"rock":           StripedBass,
	"striper":        StripedBass,
}

// A fuzzy match must be unique and cover at least this share of the
// matched name, so "spotted trout" resolves but "spot" or "drum" do not.
const minFuzzyCoverage = 0.75

var fuzzyTargets = func() []string {
	out := make([]string, len(TrackedSpecies))
	for i, s := range TrackedSpecies {
		out[i] = strings.ToLower(displayNames[s])
	}
	return out
}()

// Tracked reports whether s is part of the reporting catalog.
func (s Species) Tracked() bool {
	return catalogIndex(s) >= 0
}

// DisplayName returns the human-readable species name.
func (s Species) DisplayName() string {
	if name, ok := displayNames[s]; ok {
		return name
	}
	words := strings.Fields(strings.ReplaceAll(string(s), "_", " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func catalogIndex(s Species) int {
	for i, t := range TrackedSpecies {
		if t == s {
			return i
		}
	}
	return -1
}

// ParseSpecies resolves a free-form species name to a code. The boolean is
// false when the name does not match a tracked species; the returned code is
// then the normalized name, or empty if nothing usable was given.
func ParseSpecies(name string) (Species, bool) {
	key := normalizeName(name)
	if key == "" {
		return "", false
	}

	for _, s := range TrackedSpecies {
		if key == normalizeName(string(s)) || key == strings.ToLower(displayNames[s]) {
			return s, true
		}
	}
	if s, ok := aliases[key]; ok {
		return s, true
	}

	if s, ok := fuzzyMatch(key); ok {
		return s, true
	}

	return Species(strings.ReplaceAll(key, " ", "_")), false
}

func fuzzyMatch(key string) (Species, bool) {
	matches := fuzzy.Find(key, fuzzyTargets)
	if len(matches) != 1 {
		return "", false
	}
	m := matches[0]
	if float64(utf8.RuneCountInString(key)) < minFuzzyCoverage*float64(utf8.RuneCountInString(m.Str)) {
		return "", false
	}
	return TrackedSpecies[m.Index], true
}

// normalizeName lowercases and splits camelCase, snake_case and kebab-case
// into space-separated words.
func normalizeName(name string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			b.WriteRune(' ')
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteRune(' ')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevLower = true
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
