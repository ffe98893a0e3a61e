package rules

import (
	"context"
	"sync"
	"time"

	"chatpilot/pkg/collections"
	"chatpilot/pkg/config"
	"chatpilot/pkg/utils"
)

// WelcomedCapacity bounds the once-per-session welcome set.
const WelcomedCapacity = 1000

// welcomer greets first-time chatters once per session. The user is marked
// welcomed before the delayed send so a burst of messages from the same new
// user schedules exactly one greeting. Scheduled greetings are not cancelled
// on shutdown; a courtesy message already queued still goes out.
type welcomer struct {
	mu       sync.Mutex
	welcomed *collections.LRUSet
}

func newWelcomer() *welcomer {
	return &welcomer{welcomed: collections.NewLRUSet(WelcomedCapacity)}
}

// greet schedules a delayed welcome for a user not yet seen this session.
// Returns true when a greeting was scheduled.
func (w *welcomer) greet(cfg config.WelcomeConfig, username string, send SendFunc) bool {
	if cfg.Message == "" {
		return false
	}

	w.mu.Lock()
	fresh := w.welcomed.Add(username)
	w.mu.Unlock()
	if !fresh {
		return false
	}

	text := utils.SubstituteUsername(cfg.Message, username)
	delay := time.Duration(cfg.DelaySeconds) * time.Second
	time.AfterFunc(delay, func() {
		_ = send(context.Background(), text)
	})
	return true
}

func (w *welcomer) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.welcomed.Clear()
}
