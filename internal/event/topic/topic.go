package topic

// Topic is a concrete, dot-hierarchical event type such as
// "agent.lifecycle.started". Topics never contain wildcards.
type Topic string

const (
	// Separator splits topic segments.
	Separator = "."

	// WildcardSingle matches exactly one segment.
	WildcardSingle = "*"

	// WildcardMulti matches zero or more segments.
	WildcardMulti = "**"

	// MaxLength bounds event type strings.
	MaxLength = 255
)

// IsValid reports whether t is usable as a published event type:
//   - non-empty and at most MaxLength bytes
//   - no empty segments
//   - no wildcard, bracket, brace or whitespace characters
func (t Topic) IsValid() bool {
	s := string(t)
	if s == "" || len(s) > MaxLength {
		return false
	}
	segStart := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '.':
			if i == segStart {
				return false
			}
			segStart = i + 1
		case c == '*' || c == '?' || c == '[' || c == ']' || c == '{' || c == '}' || c == ',':
			return false
		case c <= ' ' || c == 0x7f:
			return false
		}
	}
	return segStart < len(s)
}
