// Package check runs diagnostic checks against a shop snapshot and collects
// their findings.
package check

import (
	"context"
	"strings"
	"time"

	"github.com/dandantas/shopwatch/internal/advisory"
	"github.com/dandantas/shopwatch/internal/model"
)

// Check is one diagnostic rule. Run reports findings through the result
// builder; a returned error discards everything the check reported.
type Check interface {
	Name() string
	Run(ctx context.Context, cc *Context, result *Result) error
}

// Context is the read-only input shared by all checks of one evaluation.
// Previous is the status before this evaluation, nil for a new shop.
type Context struct {
	Snapshot   *model.Snapshot
	Advisories advisory.Source
	Previous   *model.Status
	Now        time.Time
}

// carryForward re-reports the previous findings whose code starts with
// prefix. Checks use it when the snapshot lacks the data they evaluate, so a
// partial scrape neither resolves nor raises their findings.
func (cc *Context) carryForward(result *Result, prefix string) {
	if cc.Previous == nil {
		return
	}
	for _, f := range cc.Previous.Findings {
		if strings.HasPrefix(f.Code, prefix) {
			result.findings = append(result.findings, f)
		}
	}
}

// Option decorates a finding
type Option func(*model.Finding)

// WithSource sets the origin of the finding, e.g. an advisory database
func WithSource(source string) Option {
	return func(f *model.Finding) { f.Source = source }
}

// WithLink attaches a reference URL
func WithLink(link string) Option {
	return func(f *model.Finding) { f.Link = link }
}

// Result accumulates the findings of a single check
type Result struct {
	findings []model.Finding
}

// Success adds a success finding
func (r *Result) Success(code, message string, opts ...Option) {
	r.add(model.LevelSuccess, code, message, opts)
}

// Warning adds a warning finding
func (r *Result) Warning(code, message string, opts ...Option) {
	r.add(model.LevelWarning, code, message, opts)
}

// Error adds an error finding
func (r *Result) Error(code, message string, opts ...Option) {
	r.add(model.LevelError, code, message, opts)
}

// Findings returns the accumulated findings
func (r *Result) Findings() []model.Finding {
	return r.findings
}

func (r *Result) add(level model.Level, code, message string, opts []Option) {
	f := model.Finding{Code: code, Level: level, Message: message}
	for _, opt := range opts {
		opt(&f)
	}
	r.findings = append(r.findings, f)
}
