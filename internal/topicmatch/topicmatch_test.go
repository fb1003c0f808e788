package topicmatch

import "testing"

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"cmd/#", "cmd/reboot", true},
		{"cmd/#", "cmd", true},
		{"cmd/#", "cmd/a/b/c", true},
		{"cmd/#", "other", false},
		{"data/+/temp", "data/sensor1/temp", true},
		{"data/+/temp", "data/sensor1/humidity", false},
		{"data/+/temp", "data/a/b/temp", false},
		{"exact/topic", "exact/topic", true},
		{"exact/topic", "exact/topic/extra", false},
		{"", "anything", false},
		{"#", "a/b/c", true},
		{"+", "single", true},
		{"+", "a/b", false},
		{"a/+/c", "a//c", true},
	}

	for _, c := range cases {
		got := Match(c.pattern, c.topic)
		if got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.topic, got, c.want)
		}
	}
}

func TestExcludeSetCaps(t *testing.T) {
	patterns := make([]string, 10)
	for i := range patterns {
		patterns[i] = "x"
	}
	set, dropped := NewExcludeSet(patterns, 4)
	if set.Len() != 4 {
		t.Fatalf("expected 4 kept, got %d", set.Len())
	}
	if dropped != 6 {
		t.Fatalf("expected 6 dropped, got %d", dropped)
	}
}

func TestExcludeSetEmptyExcludesNothing(t *testing.T) {
	set, _ := NewExcludeSet(nil, 64)
	if set.Excluded("any/topic") {
		t.Fatal("empty exclude set should exclude nothing")
	}
}
