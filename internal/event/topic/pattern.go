package topic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// ErrInvalidPattern is returned for malformed subscription patterns.
var ErrInvalidPattern = errors.New("invalid pattern")

// maxAlternatives bounds brace expansion.
const maxAlternatives = 256

type segmentKind uint8

const (
	segLiteral  segmentKind = iota
	segStar                 // "*": exactly one segment
	segGlobStar             // "**": zero or more segments
	segGlob                 // segment with ?, [set] or partial *
)

type segment struct {
	kind segmentKind
	text string
	g    glob.Glob
}

func (s segment) match(seg string) bool {
	switch s.kind {
	case segLiteral:
		return s.text == seg
	case segStar:
		return true
	case segGlob:
		return s.g.Match(seg)
	}
	return false
}

// Pattern is a compiled subscription pattern. Brace alternation is expanded
// at compile time, so a Pattern is a set of segment sequences.
//
// Syntax, per dot-separated segment:
//
//	"*"        exactly one segment
//	"**"       zero or more segments (whole segment only)
//	"?"        one character within a segment
//	"[abc]"    character set, [!abc] negated, [a-z] range
//	"{a,b}"    alternation, may span segments: {agent,tool}.started
type Pattern struct {
	raw  string
	alts []alternative
}

type alternative struct {
	text     string
	segments []segment
	literal  bool
}

// Compile parses a pattern.
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if len(pattern) > MaxLength {
		return nil, fmt.Errorf("%w: longer than %d bytes", ErrInvalidPattern, MaxLength)
	}
	expanded, err := expandBraces(pattern)
	if err != nil {
		return nil, err
	}

	p := &Pattern{raw: pattern}
	seen := make(map[string]bool, len(expanded))
	for _, text := range expanded {
		if seen[text] {
			continue
		}
		seen[text] = true
		alt, err := compileAlternative(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
		}
		p.alts = append(p.alts, alt)
	}
	return p, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

func compileAlternative(text string) (alternative, error) {
	parts := strings.Split(text, Separator)
	alt := alternative{text: text, segments: make([]segment, 0, len(parts)), literal: true}
	for _, part := range parts {
		if part == "" {
			return alt, errors.New("empty segment")
		}
		switch {
		case part == WildcardSingle:
			alt.segments = append(alt.segments, segment{kind: segStar, text: part})
			alt.literal = false
		case part == WildcardMulti:
			alt.literal = false
			// "**.**" matches exactly what "**" does.
			if n := len(alt.segments); n > 0 && alt.segments[n-1].kind == segGlobStar {
				continue
			}
			alt.segments = append(alt.segments, segment{kind: segGlobStar, text: part})
		case strings.Contains(part, WildcardMulti):
			return alt, fmt.Errorf("%q: ** must be a whole segment", part)
		case strings.ContainsAny(part, "*?["):
			g, err := glob.Compile(part)
			if err != nil {
				return alt, err
			}
			alt.segments = append(alt.segments, segment{kind: segGlob, text: part, g: g})
			alt.literal = false
		case strings.ContainsAny(part, "]"):
			return alt, fmt.Errorf("%q: unbalanced ]", part)
		default:
			alt.segments = append(alt.segments, segment{kind: segLiteral, text: part})
		}
	}
	return alt, nil
}

// expandBraces expands {a,b} groups, including nested ones.
func expandBraces(s string) ([]string, error) {
	open := strings.IndexByte(s, '{')
	if open < 0 {
		if strings.IndexByte(s, '}') >= 0 {
			return nil, fmt.Errorf("%w: unbalanced }", ErrInvalidPattern)
		}
		return []string{s}, nil
	}
	if strings.IndexByte(s[:open], '}') >= 0 {
		return nil, fmt.Errorf("%w: unbalanced }", ErrInvalidPattern)
	}

	depth := 0
	closeIdx := -1
	var options []string
	last := open + 1
	for i := open; i < len(s) && closeIdx < 0; i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				options = append(options, s[last:i])
				closeIdx = i
			}
		case ',':
			if depth == 1 {
				options = append(options, s[last:i])
				last = i + 1
			}
		}
	}
	if closeIdx < 0 {
		return nil, fmt.Errorf("%w: unbalanced {", ErrInvalidPattern)
	}

	prefix, suffix := s[:open], s[closeIdx+1:]
	var out []string
	for _, opt := range options {
		sub, err := expandBraces(prefix + opt + suffix)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
		if len(out) > maxAlternatives {
			return nil, fmt.Errorf("%w: more than %d alternatives", ErrInvalidPattern, maxAlternatives)
		}
	}
	return out, nil
}

// String returns the pattern as written.
func (p *Pattern) String() string {
	return p.raw
}

// Literal reports whether the pattern has no wildcards at all.
func (p *Pattern) Literal() bool {
	for _, a := range p.alts {
		if !a.literal {
			return false
		}
	}
	return true
}

// Alternatives returns the brace-expanded forms of the pattern.
func (p *Pattern) Alternatives() []string {
	out := make([]string, len(p.alts))
	for i, a := range p.alts {
		out[i] = a.text
	}
	return out
}

// Match reports whether eventType matches any alternative.
func (p *Pattern) Match(eventType string) bool {
	if eventType == "" {
		return false
	}
	var segs []string
	for _, a := range p.alts {
		if a.literal {
			if a.text == eventType {
				return true
			}
			continue
		}
		if segs == nil {
			segs = strings.Split(eventType, Separator)
		}
		if matchSegments(segs, a.segments) {
			return true
		}
	}
	return false
}

// matchSegments matches topic segments against pattern segments. Failed
// (pattern, topic) positions after a "**" are remembered, which keeps the
// search polynomial for patterns with many "**" segments.
func matchSegments(topic []string, pattern []segment) bool {
	var failed map[[2]int]bool
	var match func(pi, ti int) bool
	match = func(pi, ti int) bool {
		for pi < len(pattern) {
			if pattern[pi].kind == segGlobStar {
				for pi < len(pattern) && pattern[pi].kind == segGlobStar {
					pi++
				}
				if pi == len(pattern) {
					return true
				}
				key := [2]int{pi, ti}
				if failed[key] {
					return false
				}
				for t := ti; t <= len(topic); t++ {
					if match(pi, t) {
						return true
					}
				}
				if failed == nil {
					failed = make(map[[2]int]bool)
				}
				failed[key] = true
				return false
			}
			if ti >= len(topic) || !pattern[pi].match(topic[ti]) {
				return false
			}
			ti++
			pi++
		}
		return ti == len(topic)
	}
	return match(0, 0)
}
