package check

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/dandantas/shopwatch/internal/model"
	"golang.org/x/sync/errgroup"
)

// FailureRecorder is notified when a check fails
type FailureRecorder interface {
	CheckFailed(name string)
}

// Engine runs all registered checks for a snapshot
type Engine struct {
	registry    *Registry
	concurrency int
	recorder    FailureRecorder
}

// NewEngine creates an engine; concurrency <= 0 runs every check at once
func NewEngine(registry *Registry, concurrency int, recorder FailureRecorder) *Engine {
	return &Engine{registry: registry, concurrency: concurrency, recorder: recorder}
}

// FailureCode is the finding code reported when the named check fails
func FailureCode(name string) string {
	return "check." + name
}

// Run executes the checks concurrently and merges their findings in
// registration order. A check that errors or panics contributes exactly one
// error finding and never affects the other checks.
func (e *Engine) Run(ctx context.Context, cc *Context) []model.Finding {
	checks := e.registry.Checks()
	results := make([][]model.Finding, len(checks))

	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, c := range checks {
		g.Go(func() error {
			results[i] = e.runOne(ctx, c, cc)
			return nil
		})
	}
	_ = g.Wait()

	findings := make([]model.Finding, 0, len(checks))
	for _, r := range results {
		findings = append(findings, r...)
	}
	return findings
}

func (e *Engine) runOne(ctx context.Context, c Check, cc *Context) (findings []model.Finding) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Check panicked",
				"check", c.Name(),
				"shop_id", shopID(cc),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			findings = []model.Finding{e.failure(c.Name(), fmt.Errorf("panic: %v", r))}
		}
	}()

	result := &Result{}
	if err := c.Run(ctx, cc, result); err != nil {
		slog.Warn("Check failed",
			"check", c.Name(),
			"shop_id", shopID(cc),
			"error", err,
		)
		return []model.Finding{e.failure(c.Name(), err)}
	}
	return result.Findings()
}

func (e *Engine) failure(name string, err error) model.Finding {
	if e.recorder != nil {
		e.recorder.CheckFailed(name)
	}
	return model.Finding{
		Code:    FailureCode(name),
		Level:   model.LevelError,
		Message: fmt.Sprintf("Check %s could not be executed: %v", name, err),
	}
}

func shopID(cc *Context) string {
	if cc == nil || cc.Snapshot == nil {
		return ""
	}
	return cc.Snapshot.ShopID
}
