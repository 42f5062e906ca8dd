// Package normalize canonicalizes free-form subject identifiers and
// scenario names into the stable keys used as join keys across the store.
package normalize

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TestLookup resolves a raw subject token against already-indexed test
// records. It returns the subject id of a test whose external test id
// contains the token, or ok=false when no such test exists.
type TestLookup interface {
	SubjectIDForToken(token string) (subjectID string, ok bool)
}

// Normalizer maps raw subject identifiers to the canonical sub_NNN form.
// Reverse lookups against the store are cached because the watcher may
// re-normalize the same handful of identifiers on every reindex.
type Normalizer struct {
	lookup TestLookup
	cache  *lru.Cache[string, string]
}

const reverseCacheSize = 256

var (
	canonicalRe = regexp.MustCompile(`^sub_?(\d+)$`)
	sPrefixRe   = regexp.MustCompile(`^S(\d+)$`)
	subPrefixRe = regexp.MustCompile(`(?i)^sub[_\-\s]?(\d+)$`)
	opPrefixRe  = regexp.MustCompile(`(?i)^OP[_\-\s]?(\d+)$`)
)

// New creates a Normalizer. lookup may be nil, in which case the reverse
// lookup fallback is skipped.
func New(lookup TestLookup) *Normalizer {
	cache, _ := lru.New[string, string](reverseCacheSize)
	return &Normalizer{lookup: lookup, cache: cache}
}

// SubjectID maps a raw subject identifier to canonical sub_NNN form.
// Pattern strategies are tried in order; the reverse lookup against
// indexed tests is the last resort before returning the input unchanged.
// The lossy fallback is deliberate: an unnormalized id still round-trips
// for exact-match queries against itself.
func (n *Normalizer) SubjectID(raw string) string {
	return n.subjectID(raw, 0)
}

// subjectID bounds recursion through the reverse lookup so that a test
// row pointing back at the same token cannot loop.
func (n *Normalizer) subjectID(raw string, depth int) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}

	if m := canonicalRe.FindStringSubmatch(trimmed); m != nil {
		return pad(m[1])
	}
	if m := sPrefixRe.FindStringSubmatch(trimmed); m != nil {
		return pad(m[1])
	}
	if m := subPrefixRe.FindStringSubmatch(trimmed); m != nil {
		return pad(m[1])
	}
	if m := opPrefixRe.FindStringSubmatch(trimmed); m != nil {
		return pad(m[1])
	}

	if n.lookup != nil && depth < 2 {
		if cached, ok := n.cache.Get(trimmed); ok {
			return cached
		}
		if found, ok := n.lookup.SubjectIDForToken(trimmed); ok && found != trimmed {
			resolved := n.subjectID(found, depth+1)
			n.cache.Add(trimmed, resolved)
			return resolved
		}
	}

	slog.Warn("subject id not normalizable, keeping raw value",
		slog.String("subject_id", raw))
	return raw
}

func pad(digits string) string {
	num, err := strconv.Atoi(digits)
	if err != nil {
		return "sub_" + digits
	}
	return fmt.Sprintf("sub_%03d", num)
}

// Scenario maps a scenario name or code to its canonical short code.
// Unrecognized scenarios pass through unchanged.
func Scenario(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case lower == "lw" || strings.Contains(lower, "long_wave") || strings.Contains(lower, "lane_weav"):
		return "lw"
	case lower == "slc" || strings.Contains(lower, "single_lane"):
		return "slc"
	case lower == "s&g" || strings.Contains(lower, "stop_and_go"):
		return "s&g"
	default:
		return raw
	}
}
