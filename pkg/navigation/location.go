package navigation

import (
	"fmt"
	"net/url"
	"strings"
)

// Location is a read-only snapshot of a URL as seen by activity predicates.
type Location struct {
	Href     string
	Origin   string
	Host     string
	Pathname string
	Search   string
	Hash     string
}

// Parse builds a Location from an absolute or root-relative URL.
// Root-relative references are resolved against base when base is non-empty.
func Parse(href, base string) (Location, error) {
	u, err := url.Parse(href)
	if err != nil {
		return Location{}, fmt.Errorf("parse location %q: %w", href, err)
	}
	if base != "" && !u.IsAbs() {
		b, err := url.Parse(base)
		if err != nil {
			return Location{}, fmt.Errorf("parse base %q: %w", base, err)
		}
		u = b.ResolveReference(u)
	}
	return fromURL(u), nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(href string) Location {
	loc, err := Parse(href, "")
	if err != nil {
		panic(err)
	}
	return loc
}

func fromURL(u *url.URL) Location {
	loc := Location{
		Host:     u.Host,
		Pathname: u.EscapedPath(),
	}
	if loc.Pathname == "" {
		loc.Pathname = "/"
	}
	if u.Scheme != "" && u.Host != "" {
		loc.Origin = u.Scheme + "://" + u.Host
	}
	if u.RawQuery != "" || u.ForceQuery {
		loc.Search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		loc.Hash = "#" + u.EscapedFragment()
	}
	loc.Href = loc.Origin + loc.Pathname + loc.Search + loc.Hash
	return loc
}

// Route returns the part of the location that path patterns are matched
// against: the pathname followed by the hash, without any query string.
func (l Location) Route() string {
	route := l.Pathname + l.Hash
	if i := strings.IndexByte(route, '?'); i >= 0 {
		route = route[:i]
	}
	return route
}

// String returns the href.
func (l Location) String() string {
	return l.Href
}
