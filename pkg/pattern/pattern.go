// Package pattern compiles and matches route path patterns.
// A pattern is a "/"-delimited sequence of literal, named (":name") and
// wildcard ("*") segments. Matching is a pure function of the pattern and
// the request path; it holds no state beyond the compiled segments.
package pattern

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// WildcardKey is the parameter name under which wildcard captures are bound.
const WildcardKey = "*"

// ErrDuplicateParam is returned by Compile when a pattern names the same
// parameter twice.
var ErrDuplicateParam = errors.New("duplicate parameter name")

// ErrEmptyParam is returned by Compile when a ":" segment has no name.
var ErrEmptyParam = errors.New("empty parameter name")

// SegmentKind identifies how a pattern segment matches a path segment.
type SegmentKind int

const (
	// Literal segments must equal the decoded path segment exactly.
	Literal SegmentKind = iota
	// Named segments bind one decoded path segment under their name.
	Named
	// Wildcard segments bind one segment, or the remaining path when last.
	Wildcard
)

// Segment is one compiled element of a pattern.
type Segment struct {
	Kind  SegmentKind
	Value string // literal text or parameter name
}

// Params holds the parameter bindings produced by a successful match.
type Params map[string]string

// Pattern is a compiled route pattern. It is immutable once compiled.
type Pattern struct {
	raw      string
	segments []Segment
	rest     bool // last segment is a wildcard capturing the remaining path
}

// Compile parses a route pattern.
// Empty segments are discarded, so "/a//b/" compiles the same as "/a/b".
func Compile(p string) (*Pattern, error) {
	parts := split(p)
	segments := make([]Segment, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))

	for _, part := range parts {
		switch {
		case part == WildcardKey:
			segments = append(segments, Segment{Kind: Wildcard, Value: WildcardKey})
		case strings.HasPrefix(part, ":"):
			name := part[1:]
			if name == "" {
				return nil, fmt.Errorf("pattern %q: %w", p, ErrEmptyParam)
			}
			if _, dup := seen[name]; dup {
				return nil, fmt.Errorf("pattern %q: %w: %s", p, ErrDuplicateParam, name)
			}
			seen[name] = struct{}{}
			segments = append(segments, Segment{Kind: Named, Value: name})
		default:
			segments = append(segments, Segment{Kind: Literal, Value: part})
		}
	}

	return &Pattern{
		raw:      p,
		segments: segments,
		rest:     len(segments) > 0 && segments[len(segments)-1].Kind == Wildcard,
	}, nil
}

// MustCompile is like Compile but panics if the pattern is invalid.
func MustCompile(p string) *Pattern {
	pt, err := Compile(p)
	if err != nil {
		panic(err)
	}
	return pt
}

// String returns the pattern as it was registered.
func (p *Pattern) String() string {
	return p.raw
}

// Segments returns a copy of the compiled segments.
func (p *Pattern) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// Match matches an escaped request path (as returned by url.URL.EscapedPath)
// against the pattern. Each path segment is percent-decoded before it is
// compared or bound; a segment that fails to decode is used as is.
func (p *Pattern) Match(escapedPath string) (Params, bool) {
	parts := split(escapedPath)

	if p.rest {
		if len(parts) < len(p.segments)-1 {
			return nil, false
		}
	} else if len(parts) != len(p.segments) {
		return nil, false
	}

	var params Params
	bind := func(name, value string) {
		if params == nil {
			params = make(Params, len(p.segments))
		}
		params[name] = value
	}

	for i, seg := range p.segments {
		if p.rest && i == len(p.segments)-1 {
			rest := make([]string, 0, len(parts)-i)
			for _, part := range parts[i:] {
				rest = append(rest, decode(part))
			}
			bind(WildcardKey, strings.Join(rest, "/"))
			break
		}

		value := decode(parts[i])
		switch seg.Kind {
		case Literal:
			if value != seg.Value {
				return nil, false
			}
		case Named, Wildcard:
			bind(seg.Value, value)
		}
	}

	if params == nil {
		params = Params{}
	}
	return params, true
}

// split breaks a path on "/" and drops empty segments.
func split(path string) []string {
	raw := strings.Split(path, "/")
	parts := raw[:0]
	for _, s := range raw {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func decode(segment string) string {
	if v, err := url.PathUnescape(segment); err == nil {
		return v
	}
	return segment
}
