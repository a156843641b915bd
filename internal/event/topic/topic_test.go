package topic

import "testing"

func TestTopic_IsValid(t *testing.T) {
	tests := []struct {
		topic Topic
		want  bool
	}{
		{"agent", true},
		{"agent.started", true},
		{"tool.web-search.v2", true},
		{"", false},
		{".agent", false},
		{"agent.", false},
		{"agent..started", false},
		{"agent.*", false},
		{"agent.{a,b}", false},
		{"agent started", false},
		{"agent.st?rted", false},
	}

	for _, tt := range tests {
		if got := tt.topic.IsValid(); got != tt.want {
			t.Errorf("Topic(%q).IsValid() = %v, want %v", tt.topic, got, tt.want)
		}
	}
}

func TestTopic_IsValid_Length(t *testing.T) {
	long := make([]byte, MaxLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if Topic(long).IsValid() {
		t.Error("expected overlong topic to be invalid")
	}
}
