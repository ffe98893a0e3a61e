package bot

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpilot/pkg/bridge"
	"chatpilot/pkg/config"
	"chatpilot/pkg/dom"
	"chatpilot/pkg/observe"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

const livePageHTML = `<html><body>
<div id="live-badge">LIVE</div>
<div id="chat"></div>
<input type="text" id="box" placeholder="Say something in chat">
<button class="send-button">Send</button>
</body></html>`

func liveSettings() config.Settings {
	s := config.Default()
	s.Enabled = true
	s.Tier = config.TierUnlimited
	return s
}

type runningSession struct {
	page    *dom.Page
	session *Session
	notes   *bridge.ChannelNotifier
	cancel  context.CancelFunc
	done    chan struct{}
}

func startSession(t *testing.T, settings config.Settings) *runningSession {
	t.Helper()
	logger := quietLogger()
	page, err := dom.NewPage(livePageHTML, logger.WithField("component", "page"))
	require.NoError(t, err)

	notes := bridge.NewChannelNotifier(64, logger.WithField("component", "bridge"))
	session, err := New(context.Background(), Options{
		Page:     page,
		Settings: settings,
		Notifier: notes,
		Logger:   logger,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = session.Run(ctx)
	}()
	return &runningSession{page: page, session: session, notes: notes, cancel: cancel, done: done}
}

func (r *runningSession) stop() {
	r.cancel()
	<-r.done
}

func (r *runningSession) chatLine(t *testing.T, username, text string) {
	t.Helper()
	_, err := r.page.AppendHTML("#chat",
		`<div class="chat-line"><span class="user">`+username+`</span><span class="msg">`+text+`</span></div>`)
	require.NoError(t, err)
}

func waitRunning(t *testing.T, r *runningSession) {
	t.Helper()
	require.Eventually(t, func() bool { return r.session.Running() }, 2*time.Second, 5*time.Millisecond,
		"session should auto-start on a live page with the master switch on")
}

func TestSessionAutoStartsOnLivePage(t *testing.T) {
	r := startSession(t, liveSettings())
	defer r.stop()
	waitRunning(t, r)

	status := r.session.Status()
	assert.Equal(t, true, status["live"])
	assert.Equal(t, true, status["running"])
	assert.Equal(t, true, status["fallbackSelectors"], "no provider configured, bundled set in use")
}

func TestSessionMasterSwitchOffStaysStopped(t *testing.T) {
	s := liveSettings()
	s.Enabled = false
	r := startSession(t, s)
	defer r.stop()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, r.session.Running())
}

func TestSessionFAQEndToEnd(t *testing.T) {
	s := liveSettings()
	s.FAQ = config.FAQConfig{
		Enabled: true,
		Rules:   []config.FAQRule{{Triggers: []string{"price"}, Response: "see the pinned post"}},
	}
	r := startSession(t, s)
	defer r.stop()
	waitRunning(t, r)

	r.chatLine(t, "alice", "what is the price?")

	require.Eventually(t, func() bool {
		for _, ev := range r.page.Events() {
			if ev.Kind == dom.EventInput && ev.Value == "see the pinned post" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "FAQ response should land in the chat input")

	// The send is also notified outbound
	select {
	case note := <-r.notes.C():
		assert.Equal(t, bridge.NotifyMessageSent, note.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a MESSAGE_SENT notification")
	}
}

func TestSessionGiveawayEndToEnd(t *testing.T) {
	s := liveSettings()
	s.Giveaway = config.GiveawayConfig{Enabled: true, Keywords: []string{"join"}, UniqueOnly: true}
	r := startSession(t, s)
	defer r.stop()
	waitRunning(t, r)

	r.chatLine(t, "bob", "join please")
	require.Eventually(t, func() bool { return len(r.session.GiveawayEntries()) == 1 },
		2*time.Second, 10*time.Millisecond)

	r.chatLine(t, "bob", "join again")
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, r.session.GiveawayEntries(), 1, "unique-only ignores the repeat entry")

	assert.Equal(t, 1, r.session.ResetGiveaway())
	assert.Empty(t, r.session.GiveawayEntries())
}

func TestSessionQuickReply(t *testing.T) {
	s := liveSettings()
	s.QuickReplies = config.QuickRepliesConfig{Enabled: true, Replies: []string{"thanks for watching!", "link in bio"}}
	r := startSession(t, s)
	defer r.stop()

	require.NoError(t, r.session.QuickReply(context.Background(), 1))
	require.Error(t, r.session.QuickReply(context.Background(), 5), "out of range index is rejected")

	found := false
	for _, ev := range r.page.Events() {
		if ev.Kind == dom.EventInput && ev.Value == "link in bio" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSessionApplySettings(t *testing.T) {
	r := startSession(t, liveSettings())
	defer r.stop()
	waitRunning(t, r)

	next := liveSettings()
	next.Enabled = false
	require.NoError(t, r.session.ApplySettings(next))
	assert.False(t, r.session.Running(), "disabling the master switch stops the bot")

	next.Enabled = true
	require.NoError(t, r.session.ApplySettings(next))
	require.Eventually(t, func() bool { return r.session.Running() }, time.Second, 5*time.Millisecond,
		"re-enabling on a live page restarts the bot")
}

func TestSessionMessagesIgnoredWhileStopped(t *testing.T) {
	s := liveSettings()
	s.Enabled = false
	s.Giveaway = config.GiveawayConfig{Enabled: true, Keywords: []string{"join"}}
	r := startSession(t, s)
	defer r.stop()

	time.Sleep(100 * time.Millisecond)
	r.chatLine(t, "carol", "join")
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, r.session.GiveawayEntries(), "stopped bot processes nothing")
}

func TestSessionProcessMessageDirect(t *testing.T) {
	s := liveSettings()
	s.Moderation = config.ModerationConfig{Enabled: true, BlockedWords: []string{"scam"}}
	r := startSession(t, s)
	defer r.stop()

	res := r.session.ProcessMessage(observe.Message{Username: "dave", Text: "total scam", Seen: time.Now()})
	assert.True(t, res.Blocked)
	assert.Equal(t, "moderation", res.Stage)
}
