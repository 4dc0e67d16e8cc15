// Package notify delivers status transitions to users and external systems.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dandantas/shopwatch/internal/model"
)

// Notifier delivers the transitions detected for one shop
type Notifier interface {
	Notify(ctx context.Context, shop *model.Shop, transitions []model.Transition) error
}

// MultiNotifier fans out to several notifiers. Every notifier is attempted;
// the first error is returned.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier drops nil notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	filtered := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			filtered = append(filtered, n)
		}
	}
	return &MultiNotifier{notifiers: filtered}
}

// Notify implements Notifier
func (m *MultiNotifier) Notify(ctx context.Context, shop *model.Shop, transitions []model.Transition) error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, shop, transitions); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NoopNotifier drops notifications
type NoopNotifier struct{}

// NewNoop logs reason once and returns a notifier that does nothing
func NewNoop(reason string) NoopNotifier {
	if reason != "" {
		slog.Info(reason)
	}
	return NoopNotifier{}
}

// Notify implements Notifier
func (NoopNotifier) Notify(context.Context, *model.Shop, []model.Transition) error {
	return nil
}

// title renders the short headline of a transition
func title(shop *model.Shop, t model.Transition) string {
	if t.Resolved() && t.FromLevel != "" {
		return fmt.Sprintf("%s: %s resolved", shop.Name, t.Code)
	}
	return fmt.Sprintf("%s: %s is %s", shop.Name, t.Code, t.ToLevel)
}
