package check

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dandantas/shopwatch/internal/advisory"
	"github.com/dandantas/shopwatch/internal/model"
	"github.com/dandantas/shopwatch/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCheck(t *testing.T, c Check, cc *Context) []model.Finding {
	t.Helper()
	result := &Result{}
	require.NoError(t, c.Run(context.Background(), cc, result))
	return result.Findings()
}

func TestEnvironmentCheck(t *testing.T) {
	tests := []struct {
		env   string
		level model.Level
	}{
		{"production", model.LevelSuccess},
		{"staging", model.LevelSuccess},
		{"prod", model.LevelSuccess},
		{"stage", model.LevelSuccess},
		{"dev", model.LevelWarning},
		{"Production", model.LevelWarning},
		{"", model.LevelWarning},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			findings := runCheck(t, EnvironmentCheck{}, &Context{Snapshot: &model.Snapshot{Environment: tt.env}})
			require.Len(t, findings, 1)
			assert.Equal(t, EnvironmentCode, findings[0].Code)
			assert.Equal(t, tt.level, findings[0].Level)
			assert.Contains(t, findings[0].Message, `"`+tt.env+`"`)
		})
	}
}

func advisoryContext(extensions ...model.Extension) *Context {
	return &Context{
		Snapshot: &model.Snapshot{PlatformVersion: "6.5.0", Extensions: extensions},
		Advisories: advisory.StaticSource{Feed: &advisory.Feed{
			VersionToAdvisories: map[string][]string{"6.5.0": {"CVE-2024-0001"}},
			Advisories: map[string]advisory.Advisory{
				"CVE-2024-0001": {Title: "SQL injection", Source: "Shopware", Link: "https://example.test/cve"},
			},
		}},
	}
}

func TestSecurityAdvisoryCheck_ReportsUnmitigatedAdvisories(t *testing.T) {
	findings := runCheck(t, SecurityAdvisoryCheck{}, advisoryContext())

	require.Len(t, findings, 1)
	assert.Equal(t, model.Finding{
		Code:    "advisory.CVE-2024-0001",
		Level:   model.LevelError,
		Message: "SQL injection",
		Source:  "Shopware",
		Link:    "https://example.test/cve",
	}, findings[0])
}

func TestSecurityAdvisoryCheck_MitigatedBySecurityExtension(t *testing.T) {
	ext := model.Extension{Name: SecurityExtensionName, Active: true, Installed: true, Version: "2.0.0", LatestVersion: "2.0.0"}
	assert.Empty(t, runCheck(t, SecurityAdvisoryCheck{}, advisoryContext(ext)))

	outdated := ext
	outdated.LatestVersion = "2.1.0"
	assert.Len(t, runCheck(t, SecurityAdvisoryCheck{}, advisoryContext(outdated)), 1)

	inactive := ext
	inactive.Active = false
	assert.Len(t, runCheck(t, SecurityAdvisoryCheck{}, advisoryContext(inactive)), 1)
}

func TestSecurityAdvisoryCheck_UnaffectedVersion(t *testing.T) {
	cc := advisoryContext()
	cc.Snapshot.PlatformVersion = "6.6.0"
	assert.Empty(t, runCheck(t, SecurityAdvisoryCheck{}, cc))
}

type failingSource struct{}

func (failingSource) Fetch(ctx context.Context) (*advisory.Feed, error) {
	return nil, errors.New("feed unavailable")
}

func TestSecurityAdvisoryCheck_FeedFailureIsCheckFailure(t *testing.T) {
	cc := advisoryContext()
	cc.Advisories = failingSource{}

	err := SecurityAdvisoryCheck{}.Run(context.Background(), cc, &Result{})
	assert.ErrorContains(t, err, "feed unavailable")
}

func TestAdminWorkerCheck(t *testing.T) {
	enabled := runCheck(t, AdminWorkerCheck{}, &Context{Snapshot: &model.Snapshot{AdminWorkerEnabled: true}})
	require.Len(t, enabled, 1)
	assert.Equal(t, AdminWorkerCode, enabled[0].Code)
	assert.Equal(t, model.LevelWarning, enabled[0].Level)
	assert.NotEmpty(t, enabled[0].Link)

	disabled := runCheck(t, AdminWorkerCheck{}, &Context{Snapshot: &model.Snapshot{}})
	require.Len(t, disabled, 1)
	assert.Equal(t, AdminWorkerCode, disabled[0].Code)
	assert.Equal(t, model.LevelSuccess, disabled[0].Level)
}

func TestScheduledTaskCheck(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snapshot := &model.Snapshot{ScheduledTasks: []model.ScheduledTask{
		{Name: "cleanup", Status: "scheduled", NextExecutionTime: now.Add(-3 * time.Hour)},
		{Name: "sitemap", Status: "scheduled", NextExecutionTime: now.Add(-10 * time.Minute)},
		{Name: "legacy", Status: "inactive", NextExecutionTime: now.Add(-48 * time.Hour)},
	}}
	c := ScheduledTaskCheck{OverdueAfter: time.Hour}

	findings := runCheck(t, c, &Context{Snapshot: snapshot, Now: now})
	require.Len(t, findings, 1)
	assert.Equal(t, "task.cleanup", findings[0].Code)
	assert.Equal(t, model.LevelWarning, findings[0].Level)

	snapshot.ScheduledTasks = snapshot.ScheduledTasks[1:]
	findings = runCheck(t, c, &Context{Snapshot: snapshot, Now: now})
	require.Len(t, findings, 1)
	assert.Equal(t, TaskOverdueCode, findings[0].Code)
	assert.Equal(t, model.LevelSuccess, findings[0].Level)

	snapshot.Missing = []string{model.FieldScheduledTasks}
	assert.Empty(t, runCheck(t, c, &Context{Snapshot: snapshot, Now: now}))
}

func TestScheduledTaskCheck_MissingTasksKeepPreviousFindings(t *testing.T) {
	previous := &model.Status{Findings: []model.Finding{
		{Code: EnvironmentCode, Level: model.LevelSuccess},
		{Code: "task.cleanup", Level: model.LevelWarning, Message: "Scheduled task cleanup is overdue by 3h0m0s"},
	}}
	snapshot := &model.Snapshot{Partial: true, Missing: []string{model.FieldScheduledTasks}}

	findings := runCheck(t, ScheduledTaskCheck{OverdueAfter: time.Hour}, &Context{Snapshot: snapshot, Previous: previous})
	require.Len(t, findings, 1)
	assert.Equal(t, previous.Findings[1], findings[0])
}

func TestSecurityAdvisoryCheck_MissingExtensionsKeepPreviousFindings(t *testing.T) {
	cc := advisoryContext()
	cc.Snapshot.Partial = true
	cc.Snapshot.Missing = []string{model.FieldExtensions}

	// Mitigated before: nothing to report and nothing raised
	assert.Empty(t, runCheck(t, SecurityAdvisoryCheck{}, cc))

	cc.Previous = &model.Status{Findings: []model.Finding{
		{Code: "advisory.CVE-2024-0001", Level: model.LevelError, Message: "SQL injection"},
		{Code: AdminWorkerCode, Level: model.LevelWarning},
	}}
	findings := runCheck(t, SecurityAdvisoryCheck{}, cc)
	require.Len(t, findings, 1)
	assert.Equal(t, "advisory.CVE-2024-0001", findings[0].Code)
	assert.Equal(t, model.LevelError, findings[0].Level)
}

func TestDefaultRegistry_PartialSnapshotCausesNoTransitions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	engine := NewEngine(DefaultRegistry(time.Hour), 0, nil)
	source := advisoryContext().Advisories

	full := &model.Snapshot{
		PlatformVersion: "6.5.0",
		Environment:     "production",
		Extensions: []model.Extension{
			{Name: SecurityExtensionName, Installed: true, Active: true, Version: "2.0.0", LatestVersion: "2.0.0"},
		},
		ScheduledTasks: []model.ScheduledTask{
			{Name: "cleanup", Status: "scheduled", NextExecutionTime: now.Add(-3 * time.Hour)},
		},
	}
	first, transitions := status.Aggregate("shop-1", nil,
		engine.Run(context.Background(), &Context{Snapshot: full, Advisories: source, Now: now}), now)
	require.NotEmpty(t, transitions)
	assert.Equal(t, model.LevelWarning, first.Level)

	partial := &model.Snapshot{
		PlatformVersion: "6.5.0",
		Environment:     "production",
		Partial:         true,
		Missing:         []string{model.FieldExtensions, model.FieldScheduledTasks},
	}
	later := now.Add(time.Hour)
	second, transitions := status.Aggregate("shop-1", first,
		engine.Run(context.Background(), &Context{Snapshot: partial, Advisories: source, Previous: first, Now: later}), later)

	assert.Empty(t, transitions)
	assert.Equal(t, first.Level, second.Level)
	assert.Equal(t, first.FindingLevels(), second.FindingLevels())
}
