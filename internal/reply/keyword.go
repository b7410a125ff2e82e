package reply

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Counter reports per-chat message counts for the history command.
type Counter interface {
	CountMessages(ctx context.Context, sessionID, remoteJID string, fromMe bool) (int64, error)
}

// KeywordConfig configures the default handler.
type KeywordConfig struct {
	Keywords  []string
	ReplyText string
	// Commands enables !info, !history and !help.
	Commands bool
}

// KeywordHandler answers configured keywords with a canned reply and serves
// a few operator commands.
type KeywordHandler struct {
	cfg     KeywordConfig
	counter Counter
	logger  *zap.Logger
}

// NewKeywordHandler creates the default handler.
func NewKeywordHandler(cfg KeywordConfig, counter Counter, logger *zap.Logger) *KeywordHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeywordHandler{cfg: cfg, counter: counter, logger: logger}
}

const helpText = "Commands:\n- !info: shows this session's id.\n- !history: shows message counts for this chat.\n- !help: shows this menu."

func (h *KeywordHandler) Handle(ctx context.Context, req Request, r Responder) error {
	command := strings.ToLower(strings.TrimSpace(req.Text))

	if h.cfg.Commands {
		switch command {
		case "!info":
			h.logger.Info("executing command", zap.String("command", command), zap.String("from", req.From))
			return r.Reply(ctx, req.From, "Session ID: "+req.SessionID)
		case "!history":
			h.logger.Info("executing command", zap.String("command", command), zap.String("from", req.From))
			text, err := h.history(ctx, req)
			if err != nil {
				return err
			}
			return r.Reply(ctx, req.From, text)
		case "!help":
			h.logger.Info("executing command", zap.String("command", command), zap.String("from", req.From))
			return r.Reply(ctx, req.From, helpText)
		}
	}

	if h.cfg.ReplyText == "" {
		return nil
	}
	if command == "!test" || ContainsAny(req.Text, h.cfg.Keywords) {
		h.logger.Info("keyword matched", zap.String("from", req.From))
		return r.Reply(ctx, req.From, h.cfg.ReplyText)
	}
	return nil
}

func (h *KeywordHandler) history(ctx context.Context, req Request) (string, error) {
	if h.counter == nil {
		return "", fmt.Errorf("history: no message counter configured")
	}
	theirs, err := h.counter.CountMessages(ctx, req.SessionID, req.From, false)
	if err != nil {
		return "", fmt.Errorf("count inbound: %w", err)
	}
	ours, err := h.counter.CountMessages(ctx, req.SessionID, req.From, true)
	if err != nil {
		return "", fmt.Errorf("count outbound: %w", err)
	}
	return fmt.Sprintf("Conversation history:\n- You: %d messages\n- Bot: %d messages", theirs, ours), nil
}
