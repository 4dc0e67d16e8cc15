// Package scraper fetches the remote state of a shop and normalizes it into a
// snapshot.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
	"github.com/dandantas/shopwatch/internal/shopapi"
	"golang.org/x/sync/errgroup"
)

// ErrPlatformInfoUnavailable is returned when the essential platform info call
// failed. No snapshot is produced in that case.
var ErrPlatformInfoUnavailable = errors.New("platform info unavailable")

// FailureRecorder is notified about every failed remote call
type FailureRecorder interface {
	RemoteCallFailed(endpoint string)
}

// Scraper runs the three remote calls for a shop and joins them
type Scraper struct {
	client   shopapi.Client
	timeout  time.Duration
	recorder FailureRecorder
	now      func() time.Time
}

// Option configures a Scraper
type Option func(*Scraper)

// WithFailureRecorder reports failed remote calls to r
func WithFailureRecorder(r FailureRecorder) Option {
	return func(s *Scraper) { s.recorder = r }
}

// WithClock overrides the capture timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) { s.now = now }
}

// New creates a scraper; timeout bounds every individual remote call
func New(client shopapi.Client, timeout time.Duration, opts ...Option) *Scraper {
	s := &Scraper{
		client:  client,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape fetches platform info, installed extensions and scheduled tasks
// concurrently. All three calls are awaited even when one fails. A failure of
// a non-essential call yields a partial snapshot with an empty list for that
// field.
func (s *Scraper) Scrape(ctx context.Context, shop *model.Shop) (*model.Snapshot, error) {
	var (
		info       *shopapi.PlatformInfo
		extensions []model.Extension
		tasks      []model.ScheduledTask
		infoErr    error
		extErr     error
		taskErr    error
	)

	// Goroutines never return an error so one failure does not cancel the others
	var g errgroup.Group
	g.Go(func() error {
		callCtx, cancel := s.callContext(ctx)
		defer cancel()
		info, infoErr = s.client.PlatformInfo(callCtx, shop)
		return nil
	})
	g.Go(func() error {
		callCtx, cancel := s.callContext(ctx)
		defer cancel()
		extensions, extErr = s.client.InstalledExtensions(callCtx, shop)
		return nil
	})
	g.Go(func() error {
		callCtx, cancel := s.callContext(ctx)
		defer cancel()
		tasks, taskErr = s.client.ScheduledTasks(callCtx, shop)
		return nil
	})
	_ = g.Wait()

	s.record(shop, shopapi.EndpointInfo, infoErr)
	s.record(shop, shopapi.EndpointExtensions, extErr)
	s.record(shop, shopapi.EndpointTasks, taskErr)

	if infoErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlatformInfoUnavailable, infoErr)
	}

	snapshot := &model.Snapshot{
		ShopID:             shop.Key(),
		PlatformVersion:    info.Version,
		Environment:        info.Environment,
		AdminWorkerEnabled: info.AdminWorkerEnabled,
		Extensions:         extensions,
		ScheduledTasks:     tasks,
		CapturedAt:         s.now(),
	}

	if extErr != nil || snapshot.Extensions == nil {
		snapshot.Extensions = []model.Extension{}
	}
	if extErr != nil {
		snapshot.Missing = append(snapshot.Missing, model.FieldExtensions)
	}
	if taskErr != nil || snapshot.ScheduledTasks == nil {
		snapshot.ScheduledTasks = []model.ScheduledTask{}
	}
	if taskErr != nil {
		snapshot.Missing = append(snapshot.Missing, model.FieldScheduledTasks)
	}
	snapshot.Partial = len(snapshot.Missing) > 0

	return snapshot, nil
}

func (s *Scraper) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Scraper) record(shop *model.Shop, endpoint string, err error) {
	if err == nil {
		return
	}
	slog.Warn("Shop API call failed",
		"shop_id", shop.Key(),
		"endpoint", endpoint,
		"error", err,
	)
	if s.recorder != nil {
		s.recorder.RemoteCallFailed(endpoint)
	}
}
