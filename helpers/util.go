package helpers

import (
	"errors"
	"strings"
)

// GetSplitPart returns the index-th part of target split by separate
func GetSplitPart(target string, separate string, index int) (string, error) {
	parts := strings.Split(target, separate)
	if index < 0 || index >= len(parts) {
		return "", errors.New("index out of range")
	}
	return strings.TrimSpace(parts[index]), nil
}

// ContainsFold reports whether any fragment occurs in s, ignoring case
func ContainsFold(s string, fragments ...string) bool {
	s = strings.ToLower(s)
	for _, f := range fragments {
		if f != "" && strings.Contains(s, strings.ToLower(f)) {
			return true
		}
	}
	return false
}
