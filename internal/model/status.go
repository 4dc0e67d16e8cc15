package model

import "time"

// Status is the aggregated current health of a shop
type Status struct {
	ShopID        string    `json:"shop_id" bson:"shop_id"`
	Level         Level     `json:"level" bson:"level"`
	Findings      []Finding `json:"findings" bson:"findings"`
	ComputedAt    time.Time `json:"computed_at" bson:"computed_at"`
	PreviousLevel Level     `json:"previous_level,omitempty" bson:"previous_level,omitempty"`
}

// FindingLevels indexes the status findings by code, keeping the most
// severe level when a code repeats
func (s *Status) FindingLevels() map[string]Level {
	levels := make(map[string]Level, len(s.Findings))
	for _, f := range s.Findings {
		if existing, ok := levels[f.Code]; ok && existing.Severity() >= f.Level.Severity() {
			continue
		}
		levels[f.Code] = f.Level
	}
	return levels
}

// Transition is a detected change of one finding between two evaluations.
// An empty FromLevel means the code was absent in the previous status.
type Transition struct {
	ShopID    string  `json:"shop_id"`
	Code      string  `json:"code"`
	FromLevel Level   `json:"from_level"`
	ToLevel   Level   `json:"to_level"`
	Finding   Finding `json:"finding"`
}

// Resolved reports whether the transition clears a previous issue
func (t Transition) Resolved() bool {
	return t.ToLevel == LevelSuccess
}
