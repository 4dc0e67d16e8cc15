package check

import (
	"context"
	"fmt"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
)

// EnvironmentCheck verifies the shop runs in a production-like environment
type EnvironmentCheck struct{}

var validEnvironments = map[string]bool{
	"production": true,
	"staging":    true,
	"prod":       true,
	"stage":      true,
}

// EnvironmentCode is the finding code of EnvironmentCheck
const EnvironmentCode = "shopware.env"

func (EnvironmentCheck) Name() string { return "environment" }

func (EnvironmentCheck) Run(ctx context.Context, cc *Context, result *Result) error {
	env := cc.Snapshot.Environment
	if !validEnvironments[env] {
		result.Warning(EnvironmentCode, fmt.Sprintf("Shop is running in environment %q, expected production or staging", env))
		return nil
	}
	result.Success(EnvironmentCode, fmt.Sprintf("Shop is running in environment %q", env))
	return nil
}

// SecurityExtensionName is the extension that patches published advisories
const SecurityExtensionName = "SwagPlatformSecurity"

// AdvisoryCodePrefix prefixes the finding code of each reported advisory
const AdvisoryCodePrefix = "advisory."

// SecurityAdvisoryCheck reports advisories affecting the platform version
type SecurityAdvisoryCheck struct{}

func (SecurityAdvisoryCheck) Name() string { return "security" }

func (SecurityAdvisoryCheck) Run(ctx context.Context, cc *Context, result *Result) error {
	if cc.Advisories == nil {
		return nil
	}
	feed, err := cc.Advisories.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to load advisory feed: %w", err)
	}

	entries := feed.ForVersion(cc.Snapshot.PlatformVersion)
	if len(entries) == 0 {
		return nil
	}

	// Mitigation cannot be judged without the extension list
	if !cc.Snapshot.Has(model.FieldExtensions) {
		cc.carryForward(result, AdvisoryCodePrefix)
		return nil
	}

	if ext, ok := cc.Snapshot.Extension(SecurityExtensionName); ok &&
		ext.Installed && ext.Active && ext.Version == ext.LatestVersion {
		return nil
	}

	for _, entry := range entries {
		result.Error(AdvisoryCodePrefix+entry.ID, entry.Title, WithSource(entry.Source), WithLink(entry.Link))
	}
	return nil
}

const (
	// AdminWorkerCode is the finding code of AdminWorkerCheck
	AdminWorkerCode    = "admin.worker"
	adminWorkerDocsURL = "https://developer.shopware.com/docs/guides/hosting/infrastructure/message-queue.html#admin-worker"
)

// AdminWorkerCheck recommends disabling the browser-driven admin worker
type AdminWorkerCheck struct{}

func (AdminWorkerCheck) Name() string { return "admin_worker" }

func (AdminWorkerCheck) Run(ctx context.Context, cc *Context, result *Result) error {
	if cc.Snapshot.AdminWorkerEnabled {
		result.Warning(AdminWorkerCode,
			"The admin worker is enabled. Disable it and process the message queue with a CLI worker.",
			WithLink(adminWorkerDocsURL))
		return nil
	}
	result.Success(AdminWorkerCode, "The admin worker is disabled")
	return nil
}

// TaskCodePrefix prefixes the finding codes of ScheduledTaskCheck
const TaskCodePrefix = "task."

// TaskOverdueCode is reported at success when no active task is overdue
const TaskOverdueCode = TaskCodePrefix + "overdue"

// ScheduledTaskCheck warns about active scheduled tasks that stopped running
type ScheduledTaskCheck struct {
	OverdueAfter time.Duration
}

func (ScheduledTaskCheck) Name() string { return "scheduled_tasks" }

func (c ScheduledTaskCheck) Run(ctx context.Context, cc *Context, result *Result) error {
	// Without a task list nothing can be said either way
	if !cc.Snapshot.Has(model.FieldScheduledTasks) {
		cc.carryForward(result, TaskCodePrefix)
		return nil
	}

	overdue := 0
	for _, task := range cc.Snapshot.ScheduledTasks {
		if task.Status == "inactive" || task.NextExecutionTime.IsZero() {
			continue
		}
		late := cc.Now.Sub(task.NextExecutionTime)
		if late <= c.OverdueAfter {
			continue
		}
		overdue++
		result.Warning(TaskCodePrefix+task.Name,
			fmt.Sprintf("Scheduled task %s is overdue by %s", task.Name, late.Truncate(time.Minute)))
	}

	if overdue == 0 {
		result.Success(TaskOverdueCode, "All scheduled tasks run on time")
	}
	return nil
}
