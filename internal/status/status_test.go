package status

import (
	"testing"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finding(code string, level model.Level) model.Finding {
	return model.Finding{Code: code, Level: level, Message: code}
}

func TestLevel(t *testing.T) {
	assert.Equal(t, model.LevelSuccess, Level(nil))
	assert.Equal(t, model.LevelWarning, Level([]model.Finding{
		finding("a", model.LevelSuccess),
		finding("b", model.LevelWarning),
	}))
	assert.Equal(t, model.LevelError, Level([]model.Finding{
		finding("a", model.LevelError),
		finding("b", model.LevelWarning),
	}))
}

func TestDiff_FirstEvaluation(t *testing.T) {
	transitions := Diff("shop", nil, []model.Finding{
		finding("shopware.env", model.LevelSuccess),
		finding("admin.worker", model.LevelWarning),
	})

	require.Len(t, transitions, 1)
	assert.Equal(t, "admin.worker", transitions[0].Code)
	assert.Equal(t, model.Level(""), transitions[0].FromLevel)
	assert.Equal(t, model.LevelWarning, transitions[0].ToLevel)
	assert.Equal(t, "shop", transitions[0].ShopID)
}

func TestDiff_ResolutionWhenCodeDisappears(t *testing.T) {
	prev := &model.Status{ShopID: "shop", Level: model.LevelWarning, Findings: []model.Finding{
		finding("admin.worker", model.LevelWarning),
		finding("shopware.env", model.LevelSuccess),
	}}

	transitions := Diff("shop", prev, []model.Finding{finding("shopware.env", model.LevelSuccess)})

	require.Len(t, transitions, 1)
	assert.Equal(t, "admin.worker", transitions[0].Code)
	assert.Equal(t, model.LevelWarning, transitions[0].FromLevel)
	assert.Equal(t, model.LevelSuccess, transitions[0].ToLevel)
	assert.True(t, transitions[0].Resolved())
}

func TestDiff_LevelChangesAreSortedByCode(t *testing.T) {
	prev := &model.Status{Findings: []model.Finding{
		finding("z.code", model.LevelError),
		finding("b.code", model.LevelSuccess),
		finding("gone", model.LevelSuccess),
	}}

	transitions := Diff("shop", prev, []model.Finding{
		finding("z.code", model.LevelWarning),
		finding("b.code", model.LevelError),
		finding("a.new", model.LevelError),
	})

	codes := make([]string, 0, len(transitions))
	for _, tr := range transitions {
		codes = append(codes, tr.Code)
	}
	assert.Equal(t, []string{"a.new", "b.code", "z.code"}, codes)
}

func TestAggregate_IdempotentOnIdenticalFindings(t *testing.T) {
	findings := []model.Finding{
		finding("shopware.env", model.LevelWarning),
		finding("advisory.CVE-2024-0001", model.LevelError),
		finding("admin.worker", model.LevelSuccess),
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first, transitions := Aggregate("shop", nil, findings, now)
	assert.Len(t, transitions, 2)
	assert.Equal(t, model.LevelError, first.Level)

	second, transitions := Aggregate("shop", first, findings, now.Add(time.Minute))
	assert.Empty(t, transitions)
	assert.Equal(t, model.LevelError, second.Level)
	assert.Equal(t, model.LevelError, second.PreviousLevel)
	assert.Equal(t, now.Add(time.Minute), second.ComputedAt)
}

func TestAggregate_EmptyFindings(t *testing.T) {
	next, transitions := Aggregate("shop", nil, nil, time.Now())

	assert.Empty(t, transitions)
	assert.Equal(t, model.LevelSuccess, next.Level)
	assert.NotNil(t, next.Findings)
}
