package model

import (
	"fmt"
	"strings"
)

// Level is the severity of a finding or a shop status
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Severity returns the rank of the level; unknown levels rank below success
func (l Level) Severity() int {
	switch l {
	case LevelSuccess:
		return 1
	case LevelWarning:
		return 2
	case LevelError:
		return 3
	default:
		return 0
	}
}

// ParseLevel parses a level name
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(s)) {
	case LevelSuccess:
		return LevelSuccess, nil
	case LevelWarning:
		return LevelWarning, nil
	case LevelError:
		return LevelError, nil
	}
	return "", fmt.Errorf("invalid level: %s (must be 'success', 'warning', or 'error')", s)
}

// Finding is one leveled diagnostic result produced by a check
type Finding struct {
	Code    string `json:"code" bson:"code"` // Namespaced per check, e.g. "shopware.env"
	Level   Level  `json:"level" bson:"level"`
	Message string `json:"message" bson:"message"`
	Source  string `json:"source,omitempty" bson:"source,omitempty"`
	Link    string `json:"link,omitempty" bson:"link,omitempty"`
}
