package detect

import (
	"context"
	"io"
	"sync/atomic"
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

func newDetector(t *testing.T, html string) (*dom.Page, *Detector) {
	t.Helper()
	page, err := dom.NewPage(html, discardLog())
	require.NoError(t, err)
	res := selectors.NewResolver(page, selectors.Fallback(), discardLog())
	return page, NewDetector(res, discardLog())
}

func TestDetectLivePage(t *testing.T) {
	_, d := newDetector(t, `<html><body>
<div id="live-badge">LIVE</div>
<div id="chat"></div>
<input type="text" placeholder="Say something in chat">
<button class="send-button">Send</button>
</body></html>`)

	r := d.Detect()
	assert.True(t, r.Live)
	assert.NotNil(t, r.ChatInput)
	assert.NotNil(t, r.ChatContainer)
	assert.NotNil(t, r.SendButton)
	assert.NotNil(t, r.LiveIndicator)
}

func TestDetectIndicatorAloneIsLive(t *testing.T) {
	_, d := newDetector(t, `<html><body><span class="live-indicator">LIVE</span></body></html>`)
	r := d.Detect()
	assert.True(t, r.Live)
	assert.Nil(t, r.ChatInput)
	assert.Nil(t, r.ChatContainer)
}

func TestDetectNonLivePage(t *testing.T) {
	_, d := newDetector(t, `<html><body><article>a blog post</article></body></html>`)
	r := d.Detect()
	assert.False(t, r.Live)
}

func TestDetectIsIdempotent(t *testing.T) {
	_, d := newDetector(t, `<html><body><div id="chat"></div></body></html>`)
	first := d.Detect()
	second := d.Detect()
	assert.Equal(t, first.Live, second.Live)
	assert.True(t, second.Live)
}

func TestPageObserverRecoversLateChat(t *testing.T) {
	page, d := newDetector(t, `<html><body><div id="app"></div></body></html>`)

	var detections atomic.Int32
	var live atomic.Bool
	obs := NewPageObserver(page, d, 20*time.Millisecond, func(r Result) {
		detections.Add(1)
		live.Store(r.Live)
	}, func() bool { return live.Load() }, discardLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = obs.Run(ctx)
	}()

	// Initial pass: not live yet
	require.Eventually(t, func() bool { return detections.Load() >= 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, live.Load())

	// Late-loading chat widget appears; debounced re-detection should find it
	_, err := page.AppendHTML("#app", `<div id="chat"></div>`)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return live.Load() }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestPageObserverSkipsWhenResolved(t *testing.T) {
	page, d := newDetector(t, `<html><body><div id="chat"></div><div id="app"></div></body></html>`)

	var detections atomic.Int32
	obs := NewPageObserver(page, d, 10*time.Millisecond, func(Result) {
		detections.Add(1)
	}, func() bool { return true }, discardLog())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	go func() {
		// Mutations while resolved: no extra detection passes
		for i := 0; i < 5; i++ {
			_, _ = page.AppendHTML("#app", `<div>noise</div>`)
			time.Sleep(15 * time.Millisecond)
		}
	}()

	_ = obs.Run(ctx)
	assert.Equal(t, int32(1), detections.Load(), "only the initial pass should run")
}

func TestPageObserverDebouncesBursts(t *testing.T) {
	page, d := newDetector(t, `<html><body><div id="app"></div></body></html>`)

	var detections atomic.Int32
	obs := NewPageObserver(page, d, 50*time.Millisecond, func(Result) {
		detections.Add(1)
	}, func() bool { return false }, discardLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = obs.Run(ctx)
	}()

	require.Eventually(t, func() bool { return detections.Load() == 1 }, time.Second, 5*time.Millisecond)

	// A rapid burst of mutations must coalesce into one detection pass
	for i := 0; i < 10; i++ {
		_, err := page.AppendHTML("#app", `<div>x</div>`)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return detections.Load() >= 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, detections.Load(), int32(3), "burst should not fan out into per-mutation passes")

	cancel()
	<-done
}
