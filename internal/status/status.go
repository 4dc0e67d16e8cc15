// Package status folds check findings into a shop status and detects changes
// between consecutive evaluations.
package status

import (
	"sort"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
)

// Level returns the highest severity among findings, success when empty
func Level(findings []model.Finding) model.Level {
	level := model.LevelSuccess
	for _, f := range findings {
		if f.Level.Severity() > level.Severity() {
			level = f.Level
		}
	}
	return level
}

// Diff compares findings with the previous status of the shop. A code that
// appears at success is not a change; a code that disappears while not at
// success resolves to success. Identical code/level sets yield no transitions.
func Diff(shopID string, prev *model.Status, findings []model.Finding) []model.Transition {
	previous := map[string]model.Level{}
	if prev != nil {
		previous = prev.FindingLevels()
	}
	current := byCode(findings)

	transitions := make([]model.Transition, 0)
	for code, f := range current {
		old, had := previous[code]
		if had && old == f.Level {
			continue
		}
		if !had && f.Level == model.LevelSuccess {
			continue
		}
		transitions = append(transitions, model.Transition{
			ShopID:    shopID,
			Code:      code,
			FromLevel: old,
			ToLevel:   f.Level,
			Finding:   f,
		})
	}

	for code, old := range previous {
		if _, still := current[code]; still || old == model.LevelSuccess {
			continue
		}
		transitions = append(transitions, model.Transition{
			ShopID:    shopID,
			Code:      code,
			FromLevel: old,
			ToLevel:   model.LevelSuccess,
			Finding: model.Finding{
				Code:    code,
				Level:   model.LevelSuccess,
				Message: "Resolved",
			},
		})
	}

	// Sort by code for deterministic output
	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].Code < transitions[j].Code
	})

	return transitions
}

// Aggregate builds the new status and the transitions relative to prev. The
// caller replaces the stored status with the returned one.
func Aggregate(shopID string, prev *model.Status, findings []model.Finding, now time.Time) (*model.Status, []model.Transition) {
	transitions := Diff(shopID, prev, findings)

	if findings == nil {
		findings = []model.Finding{}
	}
	next := &model.Status{
		ShopID:     shopID,
		Level:      Level(findings),
		Findings:   findings,
		ComputedAt: now,
	}
	if prev != nil {
		next.PreviousLevel = prev.Level
	}
	return next, transitions
}

// byCode keeps the most severe finding per code
func byCode(findings []model.Finding) map[string]model.Finding {
	out := make(map[string]model.Finding, len(findings))
	for _, f := range findings {
		if existing, ok := out[f.Code]; ok && existing.Level.Severity() >= f.Level.Severity() {
			continue
		}
		out[f.Code] = f
	}
	return out
}
