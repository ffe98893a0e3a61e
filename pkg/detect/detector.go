package detect

import (
	"github.com/sirupsen/logrus"

	"chatpilot/pkg/dom"
	"chatpilot/pkg/selectors"
)

// Result contains the outcome of live-stream detection and the resolved
// element handles, any of which may be nil.
type Result struct {
	Live          bool
	ChatInput     *dom.Element
	ChatContainer *dom.Element
	SendButton    *dom.Element
	LiveIndicator *dom.Element
}

// Detector decides whether the current page is a supported live chat by
// resolving the chat UI roles. Idempotent and safe to call repeatedly.
type Detector struct {
	res *selectors.Resolver
	log *logrus.Entry
}

// NewDetector creates a Detector over the given resolver.
func NewDetector(res *selectors.Resolver, log *logrus.Entry) *Detector {
	return &Detector{res: res, log: log}
}

// Detect resolves chat input, chat container, send button and live
// indicator. The page counts as an active live stream when at least one of
// {chat input, chat container, live indicator} resolves.
func (d *Detector) Detect() Result {
	r := Result{
		ChatInput:     d.res.Find(selectors.RoleChatInput),
		ChatContainer: d.res.Find(selectors.RoleChatContainer),
		SendButton:    d.res.Find(selectors.RoleSendButton),
		LiveIndicator: d.res.Find(selectors.RoleLiveIndicator),
	}
	r.Live = r.ChatInput != nil || r.ChatContainer != nil || r.LiveIndicator != nil

	d.log.WithFields(logrus.Fields{
		"live":      r.Live,
		"input":     r.ChatInput != nil,
		"container": r.ChatContainer != nil,
		"button":    r.SendButton != nil,
		"indicator": r.LiveIndicator != nil,
	}).Debug("Live-stream detection pass")
	return r
}
