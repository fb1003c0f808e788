// Package topicmatch implements MQTT topic filter matching: the '+'
// single-level and '#' multi-level wildcards used by exclude_topics
// patterns.
package topicmatch

import "strings"

// Match reports whether topic is matched by the MQTT filter pattern.
// '+' matches exactly one topic level (the characters between '/'
// separators, possibly empty); '#' matches zero or more trailing levels
// and must be the pattern's last level; any other level must match
// literally. An empty pattern matches nothing; a pattern with no wildcards
// is a plain string-equality test.
func Match(pattern, topic string) bool {
	if pattern == "" {
		return false
	}

	patternLevels := strings.Split(pattern, "/")
	topicLevels := strings.Split(topic, "/")

	for i, level := range patternLevels {
		if level == "#" {
			return true
		}
		if i >= len(topicLevels) {
			return false
		}
		if level == "+" {
			continue
		}
		if level != topicLevels[i] {
			return false
		}
	}

	return len(patternLevels) == len(topicLevels)
}
