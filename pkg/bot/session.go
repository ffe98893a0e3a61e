package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"chatpilot/pkg/bridge"
	"chatpilot/pkg/config"
	"chatpilot/pkg/detect"
	"chatpilot/pkg/dom"
	"chatpilot/pkg/observe"
	"chatpilot/pkg/ratelimit"
	"chatpilot/pkg/rules"
	"chatpilot/pkg/selectors"
	"chatpilot/pkg/send"
	"chatpilot/pkg/storage"
	"chatpilot/pkg/timers"
)

// Options configures a Session.
type Options struct {
	Page     *dom.Page
	Settings config.Settings

	// Provider supplies platform selector sets; nil means the bundled
	// fallback. ExpectToken is the integrity token a provider must present.
	Provider    selectors.Provider
	ExpectToken string
	Platform    string

	// Store persists settings through the batch writer; nil disables
	// persistence.
	Store storage.SettingsStore

	// Notifier receives outbound state-change events; nil disables them.
	Notifier bridge.Notifier

	Logger *logrus.Logger
}

// Session owns all mutable state for one page attachment: resolver,
// detector, observers, rule pipeline, rate limiter, quota gate, sender,
// timers and the batch writer. It is constructed explicitly and passed by
// handle, never reached through a global.
type Session struct {
	page     *dom.Page
	resolver *selectors.Resolver
	detector *detect.Detector
	pageObs  *detect.PageObserver
	chatObs  *observe.Observer
	pipeline *rules.Pipeline
	limiter  *ratelimit.Limiter
	quota    *ratelimit.QuotaGate
	sender   *send.Sender
	timers   *timers.Scheduler
	writer   *storage.BatchWriter
	notifier bridge.Notifier
	log      *logrus.Entry

	mu           sync.Mutex
	running      bool
	fallbackUsed bool
	lastDetect   detect.Result
}

// New builds a Session from options. The selector set is loaded once here;
// a provider that fails trust or validation silently degrades to the
// bundled fallback.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Page == nil {
		return nil, fmt.Errorf("page is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	log := opts.Logger.WithField("component", "session")

	if warnings, err := opts.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	} else {
		for _, w := range warnings {
			log.Warnf("Settings adjusted: %s", w)
		}
	}

	set, fallbackUsed := selectors.Load(ctx, opts.Provider, opts.ExpectToken, opts.Platform,
		opts.Logger.WithField("component", "selectors"))

	s := &Session{
		page:         opts.Page,
		notifier:     opts.Notifier,
		log:          log,
		fallbackUsed: fallbackUsed,
	}

	s.resolver = selectors.NewResolver(opts.Page, set, opts.Logger.WithField("component", "resolver"))
	s.detector = detect.NewDetector(s.resolver, opts.Logger.WithField("component", "detect"))
	s.limiter = ratelimit.NewLimiter(ratelimit.DefaultCooldown, ratelimit.DefaultWindowLimit,
		opts.Logger.WithField("component", "ratelimit"))
	s.quota = ratelimit.NewQuotaGate(opts.Settings.Tier, opts.Settings.MessagesUsed, opts.Settings.MessagesLimit)

	if opts.Store != nil {
		s.writer = storage.NewBatchWriter(opts.Store, storage.DefaultFlushEvery,
			opts.Logger.WithField("component", "storage"))
	}

	s.sender = send.NewSender(s.resolver, s.limiter, s.quota, senderNotifier{s}, s.persistQuota,
		opts.Logger.WithField("component", "send"))
	if opts.Settings.InputOverrideSelector != "" {
		if err := s.sender.SetOverrideSelector(opts.Settings.InputOverrideSelector); err != nil {
			log.Warnf("Ignoring invalid input override selector: %v", err)
		}
	}

	s.pipeline = rules.NewPipeline(opts.Settings, rules.Deps{
		Send:     s.sender.Send,
		Notifier: pipelineNotifier{s},
		Persist:  s.persistSettings,
		Log:      opts.Logger.WithField("component", "rules"),
	})

	s.timers = timers.NewScheduler(s.sender.Send, opts.Logger.WithField("component", "timers"))

	extractor := observe.NewExtractor(set, opts.Logger.WithField("component", "extract"))
	s.chatObs = observe.NewObserver(opts.Page, s.resolver, extractor, s.handleMessage,
		opts.Logger.WithField("component", "observe"))

	s.pageObs = detect.NewPageObserver(opts.Page, s.detector, detect.DefaultDebounce,
		s.onDetect, s.chatResolved, opts.Logger.WithField("component", "detect"))

	return s, nil
}

// Run drives the session until ctx is cancelled: page-level detection, chat
// observation and batched persistence all run under one errgroup. Stop is
// called on the way out; a welcome send already scheduled still fires.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.pageObs.Run(gctx) })
	g.Go(func() error { s.chatObs.Run(gctx); return nil })
	if s.writer != nil {
		g.Go(func() error { s.writer.Run(gctx); return nil })
	}

	err := g.Wait()
	s.Stop()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Start activates outbound automation: the timer scheduler and pipeline
// responses. Guarded against double start.
func (s *Session) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	cfg := s.pipeline.Settings()
	s.mu.Unlock()

	s.timers.Start(context.Background(), cfg.Timers)
	s.log.Info("Bot started")
}

// Stop deactivates outbound automation. In-flight delayed sends (a welcome
// already scheduled) are not cancelled.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.timers.Stop()
	s.log.Info("Bot stopped")
}

// Running reports whether automation is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ProcessMessage runs one extracted chat message through the rule pipeline.
// Exposed for the observer callback and for tests.
func (s *Session) ProcessMessage(msg observe.Message) rules.Result {
	return s.pipeline.Process(context.Background(), msg)
}

// handleMessage is the chat observer callback. Messages arriving while the
// bot is stopped are dropped; metrics only track what automation saw.
func (s *Session) handleMessage(msg observe.Message) {
	if !s.Running() {
		return
	}
	s.ProcessMessage(msg)
}

// onDetect reacts to a page-level detection pass: when the page turns live
// and the master switch is on, the bot starts.
func (s *Session) onDetect(r detect.Result) {
	s.mu.Lock()
	s.lastDetect = r
	s.mu.Unlock()

	if !r.Live {
		s.Stop()
		return
	}
	if s.pipeline.Settings().Enabled {
		s.Start()
	}
}

// chatResolved tells the page observer whether re-detection is still needed.
func (s *Session) chatResolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDetect.ChatInput != nil || s.lastDetect.ChatContainer != nil
}

// Status reports the session state for the control surface.
func (s *Session) Status() map[string]any {
	s.mu.Lock()
	live := s.lastDetect.Live
	running := s.running
	s.mu.Unlock()

	return map[string]any{
		"live":              live,
		"running":           running,
		"tier":              string(s.quota.Tier()),
		"messagesUsed":      s.quota.Used(),
		"messagesLeft":      s.quota.Remaining(),
		"fallbackSelectors": s.fallbackUsed,
		"seenFingerprints":  s.chatObs.SeenCount(),
	}
}

// persistQuota writes the quota counter back through the batch writer.
// Quota state is the one thing worth a critical flush; losing it would let
// a reload replay free sends.
func (s *Session) persistQuota(critical bool) {
	if s.writer == nil {
		return
	}
	cfg := s.pipeline.Settings()
	cfg.MessagesUsed = s.quota.Used()
	s.pipeline.UpdateSettings(cfg)
	if critical {
		s.writer.QueueCritical(cfg)
	} else {
		s.writer.Queue(cfg)
	}
}

// persistSettings queues a non-critical settings write (command usage,
// quick-reply state).
func (s *Session) persistSettings() {
	if s.writer == nil {
		return
	}
	s.writer.Queue(s.pipeline.Settings())
}

// senderNotifier forwards send events to the bridge notifier.
type senderNotifier struct{ s *Session }

func (n senderNotifier) MessageSent(text string) {
	if n.s.notifier != nil {
		n.s.notifier.MessageSent(text)
	}
}

// pipelineNotifier forwards pipeline events to the bridge notifier.
type pipelineNotifier struct{ s *Session }

func (n pipelineNotifier) GiveawayEntry(username string, total int) {
	if n.s.notifier != nil {
		n.s.notifier.GiveawayEntry(username, total)
	}
}

func (n pipelineNotifier) MetricsUpdate(snap rules.MetricsSnapshot) {
	if n.s.notifier != nil {
		n.s.notifier.MetricsUpdate(snap)
	}
}

func (n pipelineNotifier) CommandUsed(trigger string, uses int) {
	if n.s.notifier != nil {
		n.s.notifier.CommandUsed(trigger, uses)
	}
}
