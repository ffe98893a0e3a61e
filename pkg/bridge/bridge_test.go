package bridge

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpilot/pkg/config"
	"chatpilot/pkg/rules"
	"chatpilot/pkg/utils"
)

func discardLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type fakeHooks struct {
	applied     []config.Settings
	applyErr    error
	sent        []string
	sendErr     error
	quickSent   []int
	resets      int
	metricReset int
}

func (f *fakeHooks) ApplySettings(s config.Settings) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, s)
	return nil
}

func (f *fakeHooks) SendTemplate(_ context.Context, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeHooks) GiveawayEntries() []rules.EntrySnapshot {
	return []rules.EntrySnapshot{{Username: "alice"}}
}

func (f *fakeHooks) ResetGiveaway() int {
	f.resets++
	return 3
}

func (f *fakeHooks) ChatMetrics() rules.MetricsSnapshot {
	return rules.MetricsSnapshot{TotalMessages: 9}
}

func (f *fakeHooks) ResetChatMetrics() { f.metricReset++ }

func (f *fakeHooks) QuickReply(_ context.Context, index int) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.quickSent = append(f.quickSent, index)
	return nil
}

const selfID = "ext-abc123"

func newHandler(hooks *fakeHooks) *Handler {
	return NewHandler(selfID, hooks, discardLog())
}

func TestHandlerRejectsForeignSender(t *testing.T) {
	h := newHandler(&fakeHooks{})
	resp := h.Handle(context.Background(), Request{SenderID: "someone-else", Type: TypeGetChatMetrics})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestHandlerRejectsUnknownType(t *testing.T) {
	h := newHandler(&fakeHooks{})
	resp := h.Handle(context.Background(), Request{SenderID: selfID, Type: "EVAL_SCRIPT"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "EVAL_SCRIPT")
}

func TestHandlerSettingsUpdated(t *testing.T) {
	hooks := &fakeHooks{}
	h := newHandler(hooks)

	payload := []byte(`{"enabled": true, "tier": "pro", "faq": {"enabled": true, "rules": [{"triggers": ["cod"], "response": "yes"}]}}`)
	resp := h.Handle(context.Background(), Request{SenderID: selfID, Type: TypeSettingsUpdated, Payload: payload})
	require.True(t, resp.Success, resp.Error)
	require.Len(t, hooks.applied, 1)
	assert.True(t, hooks.applied[0].Enabled)
	assert.Equal(t, config.TierPro, hooks.applied[0].Tier)
	require.Len(t, hooks.applied[0].FAQ.Rules, 1)
}

func TestHandlerSettingsUpdatedRejectsMalformed(t *testing.T) {
	hooks := &fakeHooks{}
	h := newHandler(hooks)

	for name, payload := range map[string][]byte{
		"not json":   []byte(`{{{`),
		"not object": []byte(`[1,2,3]`),
	} {
		t.Run(name, func(t *testing.T) {
			resp := h.Handle(context.Background(), Request{SenderID: selfID, Type: TypeSettingsUpdated, Payload: payload})
			assert.False(t, resp.Success)
			assert.Empty(t, hooks.applied, "malformed settings must never be partially applied")
		})
	}
}

func TestHandlerSendTemplate(t *testing.T) {
	hooks := &fakeHooks{}
	h := newHandler(hooks)

	resp := h.Handle(context.Background(), Request{SenderID: selfID, Type: TypeSendTemplate, Payload: []byte(`{"text": "hello"}`)})
	require.True(t, resp.Success)
	assert.Equal(t, []string{"hello"}, hooks.sent)

	resp = h.Handle(context.Background(), Request{SenderID: selfID, Type: TypeSendTemplate, Payload: []byte(`{"text": 42}`)})
	assert.False(t, resp.Success, "wrong payload type is rejected")

	resp = h.Handle(context.Background(), Request{SenderID: selfID, Type: TypeSendTemplate, Payload: []byte(`{}`)})
	assert.False(t, resp.Success, "missing text is rejected")
}

func TestHandlerSendGateRejectionIsNotAnError(t *testing.T) {
	hooks := &fakeHooks{sendErr: fmt.Errorf("%w: cooldown", utils.ErrRateLimited)}
	h := newHandler(hooks)

	resp := h.Handle(context.Background(), Request{SenderID: selfID, Type: TypeSendTemplate, Payload: []byte(`{"text": "x"}`)})
	assert.True(t, resp.Success, "a rate-limited send is a skipped turn, not a contract violation")
}

func TestHandlerQuickReply(t *testing.T) {
	hooks := &fakeHooks{}
	h := newHandler(hooks)

	resp := h.Handle(context.Background(), Request{SenderID: selfID, Type: TypeSendQuickReply, Payload: []byte(`{"index": 2}`)})
	require.True(t, resp.Success)
	assert.Equal(t, []int{2}, hooks.quickSent)

	resp = h.Handle(context.Background(), Request{SenderID: selfID, Type: TypeSendQuickReply, Payload: []byte(`{"index": "two"}`)})
	assert.False(t, resp.Success)
}

func TestHandlerGiveawayAndMetricsOps(t *testing.T) {
	hooks := &fakeHooks{}
	h := newHandler(hooks)
	ctx := context.Background()

	resp := h.Handle(ctx, Request{SenderID: selfID, Type: TypeGetGiveawayEntries})
	require.True(t, resp.Success)
	entries, isEntries := resp.Data.([]rules.EntrySnapshot)
	require.True(t, isEntries)
	assert.Equal(t, "alice", entries[0].Username)

	resp = h.Handle(ctx, Request{SenderID: selfID, Type: TypeResetGiveaway})
	require.True(t, resp.Success)
	assert.Equal(t, 1, hooks.resets)

	resp = h.Handle(ctx, Request{SenderID: selfID, Type: TypeGetChatMetrics})
	require.True(t, resp.Success)
	snap, isSnap := resp.Data.(rules.MetricsSnapshot)
	require.True(t, isSnap)
	assert.Equal(t, 9, snap.TotalMessages)

	resp = h.Handle(ctx, Request{SenderID: selfID, Type: TypeResetChatMetrics})
	require.True(t, resp.Success)
	assert.Equal(t, 1, hooks.metricReset)
}

func TestChannelNotifierDeliversAndDrops(t *testing.T) {
	n := NewChannelNotifier(2, discardLog())

	n.MessageSent("one")
	n.GiveawayEntry("bob", 5)
	n.CommandUsed("ship", 3) // buffer full, dropped

	assert.Equal(t, int64(1), n.Dropped())

	first := <-n.C()
	assert.Equal(t, NotifyMessageSent, first.Type)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.At.IsZero())

	second := <-n.C()
	assert.Equal(t, NotifyGiveawayEntry, second.Type)
}
