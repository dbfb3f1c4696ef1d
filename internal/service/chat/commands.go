package chat

import (
	"context"
	"fmt"
	"strings"

	chatmodel "github.com/zhouzirui/pymind/backend/internal/model/chat"
)

// Command is a reserved user input handled without calling the model.
type Command string

const (
	CommandReset   Command = "/reset"
	CommandHelp    Command = "/help"
	CommandHistory Command = "/history"
)

// Fixed command replies.
const (
	ResetMessage     = "Chat history cleared!"
	NoHistoryMessage = "No chat history yet."
	HelpMessage      = `Available Commands:
• /reset - Clear chat history
• /help - Show this message
• /history - Show chat history

Features:
• File upload support
• Markdown formatting
• Persistent chat history`
)

// ParseCommand matches text against the reserved commands, ignoring case and
// surrounding whitespace.
func ParseCommand(text string) (Command, bool) {
	switch cmd := Command(strings.ToLower(strings.TrimSpace(text))); cmd {
	case CommandReset, CommandHelp, CommandHistory:
		return cmd, true
	default:
		return "", false
	}
}

// RenderHistory formats every turn of the transcript for display. A pending
// turn renders with an empty bot line.
func RenderHistory(transcript chatmodel.Transcript) string {
	if len(transcript) == 0 {
		return NoHistoryMessage
	}

	blocks := make([]string, 0, len(transcript))
	for _, turn := range transcript {
		ts := turn.Timestamp
		if ts == "" {
			ts = "N/A"
		}
		blocks = append(blocks, fmt.Sprintf("[%s] User: %s\nBot: %s", ts, turn.User, turn.BotText()))
	}
	return "Your chat history:\n\n" + strings.Join(blocks, "\n\n")
}

// runCommand performs the command effect and sends its single reply.
func (s *Service) runCommand(ctx context.Context, cmd Command, sessionID string, history chatmodel.Transcript, out Output) error {
	var reply string
	switch cmd {
	case CommandReset:
		if err := s.store.Replace(ctx, sessionID, chatmodel.Transcript{}); err != nil {
			return err
		}
		reply = ResetMessage
	case CommandHelp:
		reply = HelpMessage
	case CommandHistory:
		reply = RenderHistory(history)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return out.Send(ctx, chatmodel.Reply{Content: reply})
}
