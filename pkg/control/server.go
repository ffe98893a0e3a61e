package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"chatpilot/pkg/bridge"
)

const (
	serverName    = "chatpilot"
	serverVersion = "1.0.0"
)

// StatusFunc reports the session's current state for the get_status tool.
type StatusFunc func() map[string]any

// ServerConfig holds configuration for the control server.
type ServerConfig struct {
	SelfID    string // Process id the bridge handler accepts
	Handler   *bridge.Handler
	Status    StatusFunc
	Transport string // "stdio" or "sse"
	Port      int
	Logger    *logrus.Logger
}

// Server exposes the bridge operations as MCP tools for the operator
// process. Every tool call goes through the bridge handler, so the
// popup-originated path and the control path share one validation surface.
type Server struct {
	mcpServer *server.MCPServer
	cfg       *ServerConfig
	log       *logrus.Entry
}

// NewServer creates a control server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("Handler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		cfg:       cfg,
		log:       cfg.Logger.WithField("component", "control"),
	}

	s.registerTools()
	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	updateSettingsTool := mcp.NewTool("update_settings",
		mcp.WithDescription("Replace the bot settings with a full settings object (validated field by field before adoption)"),
		mcp.WithString("settings",
			mcp.Required(),
			mcp.Description("JSON-encoded settings object"),
		),
	)
	s.mcpServer.AddTool(updateSettingsTool, s.handleUpdateSettings)

	sendTemplateTool := mcp.NewTool("send_template",
		mcp.WithDescription("Send a chat message through the gated send path (rate limit and quota apply)"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Message text to send"),
		),
	)
	s.mcpServer.AddTool(sendTemplateTool, s.handleSendTemplate)

	quickReplyTool := mcp.NewTool("send_quick_reply",
		mcp.WithDescription("Send a configured quick reply by its palette index"),
		mcp.WithNumber("index",
			mcp.Required(),
			mcp.Description("Zero-based index into the quick reply list"),
		),
	)
	s.mcpServer.AddTool(quickReplyTool, s.handleSendQuickReply)

	giveawayEntriesTool := mcp.NewTool("get_giveaway_entries",
		mcp.WithDescription("List recorded giveaway entries, oldest first"),
	)
	s.mcpServer.AddTool(giveawayEntriesTool, s.bridgeTool(bridge.TypeGetGiveawayEntries))

	resetGiveawayTool := mcp.NewTool("reset_giveaway",
		mcp.WithDescription("Clear all giveaway entries"),
	)
	s.mcpServer.AddTool(resetGiveawayTool, s.bridgeTool(bridge.TypeResetGiveaway))

	chatMetricsTool := mcp.NewTool("get_chat_metrics",
		mcp.WithDescription("Get session chat metrics: totals, unique chatters, message rate and peak"),
	)
	s.mcpServer.AddTool(chatMetricsTool, s.bridgeTool(bridge.TypeGetChatMetrics))

	resetMetricsTool := mcp.NewTool("reset_chat_metrics",
		mcp.WithDescription("Reset session chat metrics"),
	)
	s.mcpServer.AddTool(resetMetricsTool, s.bridgeTool(bridge.TypeResetChatMetrics))

	statusTool := mcp.NewTool("get_status",
		mcp.WithDescription("Get the session status: live detection, running state, quota usage"),
	)
	s.mcpServer.AddTool(statusTool, s.handleGetStatus)

	s.log.Infof("Registered %d MCP tools", 8)
}

func (s *Server) handleUpdateSettings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := request.GetString("settings", "")
	if raw == "" {
		return mcp.NewToolResultError("settings parameter is required"), nil
	}
	return s.dispatch(ctx, bridge.TypeSettingsUpdated, []byte(raw))
}

func (s *Server) handleSendTemplate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := request.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("text parameter is required"), nil
	}
	payload, _ := json.Marshal(map[string]string{"text": text})
	return s.dispatch(ctx, bridge.TypeSendTemplate, payload)
}

func (s *Server) handleSendQuickReply(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index := request.GetInt("index", -1)
	if index < 0 {
		return mcp.NewToolResultError("index parameter is required and must be >= 0"), nil
	}
	payload, _ := json.Marshal(map[string]int{"index": index})
	return s.dispatch(ctx, bridge.TypeSendQuickReply, payload)
}

func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.cfg.Status == nil {
		return mcp.NewToolResultError("status is not available"), nil
	}
	return mcp.NewToolResultText(formatJSON(s.cfg.Status())), nil
}

// bridgeTool builds a handler for payload-less bridge operations.
func (s *Server) bridgeTool(msgType string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.dispatch(ctx, msgType, nil)
	}
}

// dispatch routes one operation through the bridge handler.
func (s *Server) dispatch(ctx context.Context, msgType string, payload []byte) (*mcp.CallToolResult, error) {
	resp := s.cfg.Handler.Handle(ctx, bridge.Request{
		SenderID: s.cfg.SelfID,
		Type:     msgType,
		Payload:  payload,
	})
	if !resp.Success {
		return mcp.NewToolResultError(resp.Error), nil
	}
	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// Run starts the control server with the configured transport.
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting control server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting control server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

func formatJSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}
