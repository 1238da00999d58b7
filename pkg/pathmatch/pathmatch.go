// Package pathmatch compiles path patterns such as "/users/:id" into
// activity predicates over a navigation.Location.
//
// A pattern matches a location's route (pathname plus hash, without query).
// Segments starting with ":" match any single non-empty segment. Matching is
// case-insensitive. A non-exact pattern also matches any deeper path, and a
// pattern ending in a parameter matches any route with that prefix.
package pathmatch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bft-labs/spaship/pkg/navigation"
)

// Predicate reports whether a location is matched.
type Predicate func(navigation.Location) bool

// Compile turns pattern into a Predicate.
func Compile(pattern string, exact bool) (Predicate, error) {
	re, err := compileRegexp(pattern, exact)
	if err != nil {
		return nil, err
	}
	return func(loc navigation.Location) bool {
		return re.MatchString(loc.Route())
	}, nil
}

// CompileAll returns a predicate matching when any of patterns matches.
func CompileAll(patterns []string, exact bool) (Predicate, error) {
	preds := make([]Predicate, 0, len(patterns))
	for _, p := range patterns {
		pred, err := Compile(p, exact)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	return Any(preds...), nil
}

// Any combines predicates with logical or.
func Any(preds ...Predicate) Predicate {
	return func(loc navigation.Location) bool {
		for _, p := range preds {
			if p(loc) {
				return true
			}
		}
		return false
	}
}

func compileRegexp(pattern string, exact bool) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}

	var b strings.Builder
	b.WriteString("^")

	lastIndex := 0
	inDynamic := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		startDynamic := !inDynamic && c == ':'
		endDynamic := inDynamic && c == '/'
		if startDynamic || endDynamic {
			appendSegment(&b, pattern, lastIndex, i, inDynamic)
			lastIndex = i
			inDynamic = !inDynamic
		}
	}
	appendSegment(&b, pattern, lastIndex, len(pattern), inDynamic)

	expr := b.String()
	suffix := ".*"
	if exact {
		suffix = ""
	}
	switch {
	case inDynamic:
		if exact {
			expr += "$"
		}
	case strings.HasSuffix(expr, "/"):
		expr += suffix + "$"
	default:
		expr += "(/" + suffix + ")?(#.*)?$"
	}

	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("pathmatch: compile %q: %w", pattern, err)
	}
	return re, nil
}

func appendSegment(b *strings.Builder, pattern string, from, to int, dynamic bool) {
	segment := pattern[from:to]
	if dynamic {
		b.WriteString("[^/]+/?")
		return
	}
	b.WriteString(regexp.QuoteMeta(segment))
}
