package send

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chatpilot/pkg/dom"
	"chatpilot/pkg/ratelimit"
	"chatpilot/pkg/selectors"
	"chatpilot/pkg/utils"
)

const (
	// MaxMessageLen caps outbound chat text after sanitization.
	MaxMessageLen = 200

	// SendDelay sits between setting the input value and submitting, giving
	// the host page's framework a beat to notice the change.
	SendDelay = 100 * time.Millisecond

	// Watermark is appended to outbound messages on quota-limited tiers.
	Watermark = " | via ChatPilot"
)

// Notifier receives a notification after each successful send.
type Notifier interface {
	MessageSent(text string)
}

// Persister queues a quota-state write after a successful send on a
// quota-limited tier. critical writes bypass the batching window.
type Persister func(critical bool)

// Sender emits chat messages through simulated user input: native value set
// plus a synthetic input event, then a send-button click or an Enter key
// sequence. Rate limiting and quota are applied before any page interaction.
type Sender struct {
	resolver *selectors.Resolver
	limiter  *ratelimit.Limiter
	quota    *ratelimit.QuotaGate
	notifier Notifier
	persist  Persister
	log      *logrus.Entry

	// Operator-configured input override, validated before use; empty means
	// role-based resolution only.
	overrideMu       sync.Mutex
	overrideSelector string
}

// NewSender wires a Sender. notifier and persist may be nil.
func NewSender(resolver *selectors.Resolver, limiter *ratelimit.Limiter, quota *ratelimit.QuotaGate, notifier Notifier, persist Persister, log *logrus.Entry) *Sender {
	return &Sender{
		resolver: resolver,
		limiter:  limiter,
		quota:    quota,
		notifier: notifier,
		persist:  persist,
		log:      log,
	}
}

// SetOverrideSelector installs an operator-configured chat input selector.
// An invalid selector is rejected and the previous value kept.
func (s *Sender) SetOverrideSelector(selector string) error {
	if selector != "" {
		if err := selectors.ValidateOverride(selector); err != nil {
			return err
		}
	}
	s.overrideMu.Lock()
	s.overrideSelector = selector
	s.overrideMu.Unlock()
	return nil
}

// Send emits text into the page's chat. Gate rejections come back as
// wrapped ErrRateLimited/ErrQuotaExceeded; callers treat them as
// "skip this turn", not failures.
func (s *Sender) Send(ctx context.Context, text string) error {
	prepared := s.prepare(text)
	if prepared == "" {
		return nil
	}

	now := time.Now()
	if err := s.limiter.Allow(now); err != nil {
		s.log.Debugf("Send skipped: %v", err)
		return err
	}
	// Reserve before touching the DOM so two near-simultaneous sends cannot
	// both pass on the same pre-increment counter
	if err := s.quota.Reserve(); err != nil {
		s.log.Debugf("Send skipped: %v", err)
		return err
	}

	input := s.locateInput()
	if input == nil {
		return fmt.Errorf("%w: chat input not found", utils.ErrSelectorMiss)
	}

	input.SetValue(prepared)
	input.DispatchInput()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(SendDelay):
	}

	if button := s.resolver.Find(selectors.RoleSendButton); button != nil {
		button.Click()
	} else {
		input.DispatchKeySequence("Enter")
	}

	s.limiter.Record(time.Now())
	s.log.WithFields(logrus.Fields{"chars": len(prepared), "used": s.quota.Used()}).Debug("Message sent")

	if !s.quota.Tier().Unlimited() && s.persist != nil {
		s.persist(true)
	}
	if s.notifier != nil {
		s.notifier.MessageSent(prepared)
	}
	return nil
}

// prepare sanitizes and caps text, appending the promotional watermark on
// quota-limited tiers. The watermarked result is re-capped so the suffix
// never pushes past the limit.
func (s *Sender) prepare(text string) string {
	clean := utils.SanitizeMessage(text, MaxMessageLen)
	if clean == "" {
		return ""
	}
	if !s.quota.Tier().Unlimited() {
		clean = utils.TruncateRunes(clean+Watermark, MaxMessageLen)
	}
	return clean
}

func (s *Sender) locateInput() *dom.Element {
	s.overrideMu.Lock()
	override := s.overrideSelector
	s.overrideMu.Unlock()

	if override != "" {
		if el := s.resolver.FindWith([]string{override}, "inputOverride"); el != nil {
			return el
		}
		s.log.WithField("selector", override).
			Debug("Override selector did not match, falling back to role resolution")
	}
	return s.resolver.Find(selectors.RoleChatInput)
}
