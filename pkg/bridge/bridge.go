package bridge

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"chatpilot/pkg/config"
	"chatpilot/pkg/rules"
	"chatpilot/pkg/utils"
)

// Inbound message types accepted from the other process. Anything outside
// this allow-list is rejected with an explicit error response.
const (
	TypeSettingsUpdated    = "SETTINGS_UPDATED"
	TypeSendTemplate       = "SEND_TEMPLATE"
	TypeGetGiveawayEntries = "GET_GIVEAWAY_ENTRIES"
	TypeResetGiveaway      = "RESET_GIVEAWAY"
	TypeGetChatMetrics     = "GET_CHAT_METRICS"
	TypeResetChatMetrics   = "RESET_CHAT_METRICS"
	TypeSendQuickReply     = "SEND_QUICK_REPLY"
)

// Request is one inbound cross-process message.
type Request struct {
	SenderID string // Verified against the engine's own process id
	Type     string
	Payload  []byte // Raw JSON, validated per type before use
}

// Response is the explicit reply every request gets; malformed input is
// rejected, never silently ignored or partially applied.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Hooks is the capability surface the session exposes to the bridge.
type Hooks interface {
	ApplySettings(s config.Settings) error
	SendTemplate(ctx context.Context, text string) error
	GiveawayEntries() []rules.EntrySnapshot
	ResetGiveaway() int
	ChatMetrics() rules.MetricsSnapshot
	ResetChatMetrics()
	QuickReply(ctx context.Context, index int) error
}

// Handler validates and dispatches inbound requests.
type Handler struct {
	selfID string
	hooks  Hooks
	log    *logrus.Entry
}

// NewHandler creates a Handler that only accepts requests from selfID.
func NewHandler(selfID string, hooks Hooks, log *logrus.Entry) *Handler {
	return &Handler{selfID: selfID, hooks: hooks, log: log}
}

// Handle processes one request. Gate rejections on sends come back as
// success with a skipped marker; genuine contract violations come back as
// explicit failures.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	if req.SenderID != h.selfID {
		h.log.WithField("sender", req.SenderID).Warn("Rejecting request from foreign sender")
		return fail("sender not recognized")
	}

	switch req.Type {
	case TypeSettingsUpdated:
		return h.settingsUpdated(req.Payload)
	case TypeSendTemplate:
		return h.sendTemplate(ctx, req.Payload)
	case TypeGetGiveawayEntries:
		return ok(h.hooks.GiveawayEntries())
	case TypeResetGiveaway:
		return ok(map[string]int{"cleared": h.hooks.ResetGiveaway()})
	case TypeGetChatMetrics:
		return ok(h.hooks.ChatMetrics())
	case TypeResetChatMetrics:
		h.hooks.ResetChatMetrics()
		return ok(nil)
	case TypeSendQuickReply:
		return h.sendQuickReply(ctx, req.Payload)
	default:
		h.log.WithField("type", req.Type).Warn("Rejecting unknown request type")
		return fail(fmt.Sprintf("unknown message type %q", req.Type))
	}
}

// settingsUpdated re-validates the full settings object field by field
// before adoption. A deserialized object from another process is never
// trusted as-is.
func (h *Handler) settingsUpdated(payload []byte) Response {
	settings, err := config.Normalize(payload)
	if err != nil {
		return fail(fmt.Sprintf("invalid settings payload: %v", err))
	}
	if err := h.hooks.ApplySettings(settings); err != nil {
		return fail(fmt.Sprintf("applying settings: %v", err))
	}
	return ok(nil)
}

func (h *Handler) sendTemplate(ctx context.Context, payload []byte) Response {
	if !gjson.ValidBytes(payload) {
		return fail("payload is not valid JSON")
	}
	text := gjson.GetBytes(payload, "text")
	if text.Type != gjson.String || text.Str == "" {
		return fail("payload requires a non-empty string \"text\"")
	}
	return h.sendResult(h.hooks.SendTemplate(ctx, text.Str))
}

func (h *Handler) sendQuickReply(ctx context.Context, payload []byte) Response {
	if !gjson.ValidBytes(payload) {
		return fail("payload is not valid JSON")
	}
	index := gjson.GetBytes(payload, "index")
	if index.Type != gjson.Number {
		return fail("payload requires a numeric \"index\"")
	}
	return h.sendResult(h.hooks.QuickReply(ctx, int(index.Int())))
}

// sendResult maps a send outcome to a response: rate/quota rejections are a
// normal outcome surfaced as skipped, everything else is a failure.
func (h *Handler) sendResult(err error) Response {
	if err == nil {
		return ok(nil)
	}
	if utils.IsGateRejection(err) {
		return ok(map[string]string{"skipped": err.Error()})
	}
	return fail(err.Error())
}

func ok(data any) Response     { return Response{Success: true, Data: data} }
func fail(msg string) Response { return Response{Success: false, Error: msg} }
