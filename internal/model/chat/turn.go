package chat

import "time"

// TimestampLayout is the format used for turn timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Turn is one user message and its optional model reply.
type Turn struct {
	User         string  `json:"user"`
	Timestamp    string  `json:"timestamp,omitempty"`
	Bot          *string `json:"bot,omitempty"`
	BotTimestamp *string `json:"bot_timestamp,omitempty"`
}

// NewTurn creates a pending turn stamped with now.
func NewTurn(user string, now time.Time) Turn {
	return Turn{User: user, Timestamp: now.Format(TimestampLayout)}
}

// Answered reports whether the model reply has been recorded.
func (t Turn) Answered() bool {
	return t.Bot != nil
}

// BotText returns the reply text, or "" while the turn is pending.
func (t Turn) BotText() string {
	if t.Bot == nil {
		return ""
	}
	return *t.Bot
}

// Transcript is the ordered turn history of one session.
type Transcript []Turn

// Append returns the transcript with a new pending turn at the end.
func (tr Transcript) Append(user string, now time.Time) Transcript {
	return append(tr, NewTurn(user, now))
}

// Last returns a pointer to the most recent turn, or nil when empty.
func (tr Transcript) Last() *Turn {
	if len(tr) == 0 {
		return nil
	}
	return &tr[len(tr)-1]
}

// Answer sets the reply on the most recent turn. It is a no-op when the
// transcript is empty or the last turn already has a reply.
func (tr Transcript) Answer(bot string, now time.Time) bool {
	last := tr.Last()
	if last == nil || last.Answered() {
		return false
	}
	ts := now.Format(TimestampLayout)
	last.Bot = &bot
	last.BotTimestamp = &ts
	return true
}

// Tail returns at most n trailing turns.
func (tr Transcript) Tail(n int) Transcript {
	if n <= 0 || len(tr) <= n {
		return tr
	}
	return tr[len(tr)-n:]
}

// Record is the persisted shape of a transcript, keyed by session id.
type Record struct {
	ID      string     `json:"id"`
	History Transcript `json:"history"`
}
