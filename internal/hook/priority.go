package hook

import (
	"fmt"
	"strconv"
	"strings"
)

// Priority orders hooks within a point. Lower values run first; ties run
// in registration order.
type Priority int

// Named priority bands.
const (
	PriorityHighest Priority = -1000
	PriorityHigh    Priority = -100
	PriorityNormal  Priority = 0
	PriorityLow     Priority = 100
	PriorityLowest  Priority = 1000
)

// Band returns the name of the band p falls into.
func (p Priority) Band() string {
	switch {
	case p <= PriorityHighest:
		return "highest"
	case p <= PriorityHigh:
		return "high"
	case p < PriorityLow:
		return "normal"
	case p < PriorityLowest:
		return "low"
	default:
		return "lowest"
	}
}

// String returns the band name, or the number if p is not exactly a band value.
func (p Priority) String() string {
	switch p {
	case PriorityHighest, PriorityHigh, PriorityNormal, PriorityLow, PriorityLowest:
		return p.Band()
	}
	return strconv.Itoa(int(p))
}

// ParsePriority accepts a band name (highest, high, normal, low, lowest)
// or a signed integer.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "highest":
		return PriorityHighest, nil
	case "high":
		return PriorityHigh, nil
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "lowest":
		return PriorityLowest, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid priority %q", s)
	}
	return Priority(n), nil
}
