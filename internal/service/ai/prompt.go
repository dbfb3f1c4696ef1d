package ai

import (
	"strings"

	"github.com/zhouzirui/pymind/backend/internal/model/chat"
)

// DefaultWindow is the number of trailing turns rendered into a prompt.
const DefaultWindow = 5

const (
	userPrefix = "User: "
	botPrefix  = "Bot: "
)

// BuildPrompt renders the system preamble and the trailing window of the
// transcript into a completion prompt ending with an open "User: " marker.
func BuildPrompt(preamble string, transcript chat.Transcript, window int) string {
	if window <= 0 {
		window = DefaultWindow
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")

	for _, turn := range transcript.Tail(window) {
		if turn.User != "" {
			b.WriteString(userPrefix)
			b.WriteString(turn.User)
			b.WriteString("\n")
		}
		if turn.Bot != nil {
			b.WriteString(botPrefix)
			b.WriteString(*turn.Bot)
			b.WriteString("\n")
		}
	}

	b.WriteString(userPrefix)
	return b.String()
}
