package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dandantas/shopwatch/internal/model"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"
)

const slackMaxTransitions = 48 // Slack allows 50 blocks, two are header and context

type slackTiming struct {
	timeout           time.Duration
	rateInterval      time.Duration
	rateBurst         int
	backoffInitial    time.Duration
	backoffMax        time.Duration
	backoffMaxElapsed time.Duration
}

var defaultSlackTiming = slackTiming{
	timeout:           10 * time.Second,
	rateInterval:      time.Second,
	rateBurst:         1,
	backoffInitial:    time.Second,
	backoffMax:        10 * time.Second,
	backoffMaxElapsed: 30 * time.Second,
}

// SlackNotifier posts transitions to a Slack incoming webhook
type SlackNotifier struct {
	webhookURL string
	timing     slackTiming
	httpClient *http.Client

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// SlackOption customizes SlackNotifier behavior
type SlackOption func(*SlackNotifier)

// WithSlackBackoff overrides retry timing
func WithSlackBackoff(initial, max, maxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.backoffInitial = initial
		s.timing.backoffMax = max
		s.timing.backoffMaxElapsed = maxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier, or a noop notifier when the
// webhook URL is empty
func NewSlackNotifier(webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop("Slack webhook not configured, Slack notifications disabled")
	}

	n := &SlackNotifier{
		webhookURL: webhookURL,
		timing:     defaultSlackTiming,
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.httpClient = &http.Client{Timeout: n.timing.timeout}
	return n
}

// Notify implements Notifier
func (n *SlackNotifier) Notify(ctx context.Context, shop *model.Shop, transitions []model.Transition) error {
	if len(transitions) == 0 {
		return nil
	}
	if err := n.limiter(shop.Key()).Wait(ctx); err != nil {
		return err
	}

	messages := buildSlackMessages(shop, transitions)
	for _, msg := range messages {
		if err := n.postWithRetry(ctx, msg); err != nil {
			return err
		}
	}

	slog.Debug("Slack notification sent",
		"shop_id", shop.Key(),
		"transitions", len(transitions),
		"messages", len(messages),
	)
	return nil
}

func (n *SlackNotifier) postWithRetry(ctx context.Context, msg *slack.WebhookMessage) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = n.timing.backoffInitial
	policy.MaxInterval = n.timing.backoffMax
	policy.MaxElapsedTime = n.timing.backoffMaxElapsed

	operation := func() error {
		err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.httpClient, msg)
		if err == nil {
			return nil
		}
		var rateLimited *slack.RateLimitedError
		if errors.As(err, &rateLimited) && rateLimited.RetryAfter > 0 {
			if !sleepWithContext(ctx, rateLimited.RetryAfter) {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		var statusErr slack.StatusCodeError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("slack delivery failed: %w", err)
	}
	return nil
}

func (n *SlackNotifier) limiter(key string) *rate.Limiter {
	n.limiterMu.Lock()
	defer n.limiterMu.Unlock()

	limiter, ok := n.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(n.timing.rateInterval), n.timing.rateBurst)
		n.limiters[key] = limiter
	}
	return limiter
}

func buildSlackMessages(shop *model.Shop, transitions []model.Transition) []*slack.WebhookMessage {
	total := len(transitions)
	parts := (total + slackMaxTransitions - 1) / slackMaxTransitions
	messages := make([]*slack.WebhookMessage, 0, parts)

	for i := 0; i < total; i += slackMaxTransitions {
		end := min(i+slackMaxTransitions, total)
		messages = append(messages, buildSlackMessage(shop, transitions[i:end], total, i/slackMaxTransitions+1, parts))
	}
	return messages
}

func buildSlackMessage(shop *model.Shop, transitions []model.Transition, total, part, parts int) *slack.WebhookMessage {
	summary := fmt.Sprintf("%s: %d status change(s)", shop.Name, total)
	if parts > 1 {
		summary = fmt.Sprintf("%s (part %d/%d)", summary, part, parts)
	}

	header := slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, summary, false, false))
	info := slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("Shop: <%s|%s>", shop.URL, shop.Name), false, false),
	)

	blocks := []slack.Block{header, info}
	for _, t := range transitions {
		blocks = append(blocks, buildTransitionBlock(t))
	}

	return &slack.WebhookMessage{
		Text:   summary,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

func buildTransitionBlock(t model.Transition) slack.Block {
	from := string(t.FromLevel)
	if from == "" {
		from = "new"
	}
	text := fmt.Sprintf("*%s*: `%s` → `%s`\n%s", t.Code, from, t.ToLevel, t.Finding.Message)
	if t.Finding.Link != "" {
		text += fmt.Sprintf("\n<%s|More information>", t.Finding.Link)
	}
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func sleepWithContext(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
