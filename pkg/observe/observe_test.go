package observe

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpilot/pkg/dom"
	"chatpilot/pkg/selectors"
)

func discardLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

const chatPageHTML = `<html><body>
<div id="live-badge">LIVE</div>
<div id="chat"></div>
<div id="sidebar"></div>
</body></html>`

func newTestPage(t *testing.T) *dom.Page {
	t.Helper()
	page, err := dom.NewPage(chatPageHTML, discardLog())
	require.NoError(t, err)
	return page
}

func appendLine(t *testing.T, page *dom.Page, username, text string) {
	t.Helper()
	_, err := page.AppendHTML("#chat",
		`<div class="chat-line"><span class="user">`+username+`</span><span class="msg">`+text+`</span></div>`)
	require.NoError(t, err)
}

func extractOne(t *testing.T, fragment string) (Message, bool) {
	t.Helper()
	page := newTestPage(t)
	added, err := page.AppendHTML("#chat", fragment)
	require.NoError(t, err)
	require.NotEmpty(t, added)
	ex := NewExtractor(selectors.Fallback(), discardLog())
	return ex.Extract(added[0])
}

func TestExtractorSelectorPath(t *testing.T) {
	msg, ok := extractOne(t, `<div class="chat-line"><span class="user">alice</span><span class="msg">hello stream</span></div>`)
	require.True(t, ok)
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "hello stream", msg.Text)
}

func TestExtractorHeuristicSplit(t *testing.T) {
	msg, ok := extractOne(t, `<div class="chat-line">bob: how much is the red one?</div>`)
	require.True(t, ok)
	assert.Equal(t, "bob", msg.Username)
	assert.Equal(t, "how much is the red one?", msg.Text)
}

func TestExtractorRejectsLongHeuristicUsername(t *testing.T) {
	long := ""
	for i := 0; i < MaxUsernameLen+10; i++ {
		long += "x"
	}
	_, ok := extractOne(t, `<div class="chat-line">`+long+`: payload</div>`)
	assert.False(t, ok, "a colon deep in a long line must not look like a username")
}

func TestExtractorRejectsNonChatNodes(t *testing.T) {
	for name, fragment := range map[string]string{
		"empty":     `<div class="chat-line"></div>`,
		"separator": `<hr class="chat-line">`,
		"timestamp": `<div class="chat-line">12:04</div>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := extractOne(t, fragment)
			assert.False(t, ok)
		})
	}
}

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(msg Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *collector) snapshot() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func startObserver(t *testing.T, page *dom.Page) (*collector, context.CancelFunc, chan struct{}) {
	t.Helper()
	res := selectors.NewResolver(page, selectors.Fallback(), discardLog())
	ex := NewExtractor(selectors.Fallback(), discardLog())
	col := &collector{}
	obs := NewObserver(page, res, ex, col.handle, discardLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		obs.Run(ctx)
	}()
	return col, cancel, done
}

func TestObserverDeliversChatLines(t *testing.T) {
	page := newTestPage(t)
	col, cancel, done := startObserver(t, page)
	defer func() { cancel(); <-done }()

	appendLine(t, page, "alice", "first")
	appendLine(t, page, "bob", "second")

	require.Eventually(t, func() bool { return len(col.snapshot()) >= 2 }, time.Second, 5*time.Millisecond)
	msgs := col.snapshot()
	assert.Equal(t, "alice", msgs[0].Username)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "bob", msgs[1].Username)
	assert.False(t, msgs[0].Seen.IsZero())
}

func TestObserverIgnoresNodesOutsideChat(t *testing.T) {
	page := newTestPage(t)
	col, cancel, done := startObserver(t, page)
	defer func() { cancel(); <-done }()

	_, err := page.AppendHTML("#sidebar", `<div class="promo"><span class="user">shop</span><span class="msg">buy now</span></div>`)
	require.NoError(t, err)
	appendLine(t, page, "carol", "real message")

	require.Eventually(t, func() bool { return len(col.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	msgs := col.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "carol", msgs[0].Username)
}

func TestObserverDedupesWithinBatch(t *testing.T) {
	page := newTestPage(t)
	col, cancel, done := startObserver(t, page)
	defer func() { cancel(); <-done }()

	// Two identical lines landing in the same frame collapse to one
	_, err := page.AppendHTML("#chat", `
<div class="chat-line"><span class="user">dave</span><span class="msg">hi</span></div>
<div class="chat-line"><span class="user">dave</span><span class="msg">hi</span></div>`)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(col.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, col.snapshot(), 1)
}

func TestObserverBatchesBursts(t *testing.T) {
	page := newTestPage(t)
	col, cancel, done := startObserver(t, page)
	defer func() { cancel(); <-done }()

	for i := 0; i < 20; i++ {
		appendLine(t, page, "user"+string(rune('a'+i)), "line")
	}
	require.Eventually(t, func() bool { return len(col.snapshot()) == 20 }, time.Second, 5*time.Millisecond)
}

func TestObserverSurvivesDocumentReplacement(t *testing.T) {
	page := newTestPage(t)
	col, cancel, done := startObserver(t, page)
	defer func() { cancel(); <-done }()

	appendLine(t, page, "eve", "before nav")
	require.Eventually(t, func() bool { return len(col.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, page.SetHTML(chatPageHTML))
	appendLine(t, page, "frank", "after nav")

	require.Eventually(t, func() bool { return len(col.snapshot()) >= 2 }, time.Second, 5*time.Millisecond)
	msgs := col.snapshot()
	assert.Equal(t, "frank", msgs[len(msgs)-1].Username)
}
