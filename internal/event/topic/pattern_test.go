package topic

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPattern_Match(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"agent.started", "agent.started", true},
		{"agent.started", "agent.stopped", false},

		{"agent.*", "agent.started", true},
		{"agent.*", "agent.error", true},
		{"agent.*", "agent.lifecycle.started", false},
		{"agent.*", "tool.started", false},
		{"agent.*", "agent", false},

		{"agent.**", "agent.started", true},
		{"agent.**", "agent.lifecycle.started", true},
		{"agent.**", "agent", true},
		{"agent.**", "tool.started", false},
		{"**", "anything.at.all", true},
		{"**.error", "error", true},
		{"**.error", "tool.x.error", true},
		{"a.**.z", "a.z", true},
		{"a.**.z", "a.b.c.z", true},
		{"a.**.z", "a.b.c", false},
		{"a.**.**.z", "a.b.z", true},

		{"tool.web_?earch", "tool.web_search", true},
		{"tool.web_?earch", "tool.web_seearch", false},
		{"tool.[a-m]*.failed", "tool.calc.failed", true},
		{"tool.[a-m]*.failed", "tool.zip.failed", false},
		{"tool.[!a-m]*", "tool.zip", true},
		{"tool.calc*", "tool.calculator", true},
		{"tool.calc*", "tool.calc.x", false},

		{"{agent,tool}.error", "agent.error", true},
		{"{agent,tool}.error", "tool.error", true},
		{"{agent,tool}.error", "workflow.error", false},
		{"agent.{started,stopped}", "agent.stopped", true},
		{"agent.{life{cycle,time}}.x", "agent.lifetime.x", true},
		{"{agent.lifecycle,tool}.*", "agent.lifecycle.started", true},
	}

	for _, tt := range tests {
		p, err := Compile(tt.pattern)
		if err != nil {
			t.Fatalf("Compile(%q): %v", tt.pattern, err)
		}
		if got := p.Match(tt.topic); got != tt.want {
			t.Errorf("%q.Match(%q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
		}
	}
}

func TestCompile_Invalid(t *testing.T) {
	for _, pattern := range []string{
		"",
		"agent..started",
		".agent",
		"agent.",
		"agent.{a,b",
		"agent.a,b}",
		"agent.}{",
		"tool.[abc",
		"tool.abc]",
		"tool.a**",
	} {
		if _, err := Compile(pattern); !errors.Is(err, ErrInvalidPattern) {
			t.Errorf("Compile(%q) error = %v, want ErrInvalidPattern", pattern, err)
		}
	}
}

func TestCompile_Alternatives(t *testing.T) {
	p := MustCompile("{a,b}.{x,y}")
	if got := len(p.Alternatives()); got != 4 {
		t.Fatalf("alternatives = %d, want 4", got)
	}
	if !p.Literal() {
		t.Error("expanded literals should report Literal")
	}
	if MustCompile("a.*").Literal() {
		t.Error("wildcard pattern reported Literal")
	}
	if got := MustCompile("{a,a}.b").Alternatives(); len(got) != 1 {
		t.Errorf("duplicate alternatives not collapsed: %v", got)
	}
}

func TestCompile_TooManyAlternatives(t *testing.T) {
	p := "{a,b,c,d}.{a,b,c,d}.{a,b,c,d}.{a,b,c,d,e}"
	if _, err := Compile(p); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("expected alternative limit error, got %v", err)
	}
}

func TestCompile_CollapsesGlobStarRuns(t *testing.T) {
	p := MustCompile("a.**.**.**.b")
	if got := len(p.alts[0].segments); got != 3 {
		t.Fatalf("segments = %d, want 3", got)
	}
	if !p.Match("a.b") || !p.Match("a.x.y.b") {
		t.Error("collapsed pattern lost matches")
	}
}

func TestPattern_Match_ManyGlobStars(t *testing.T) {
	long := strings.TrimSuffix(strings.Repeat("a.", 40), ".")
	pattern := strings.Repeat("**.a.", 8) + "z"

	start := time.Now()
	if MustCompile(pattern).Match(long) {
		t.Errorf("%q matched %q", pattern, long)
	}
	if !MustCompile(strings.Repeat("**.a.", 8) + "a").Match(long) {
		t.Errorf("expected match on %q", long)
	}
	if d := time.Since(start); d > time.Second {
		t.Errorf("matching took %v", d)
	}
}
