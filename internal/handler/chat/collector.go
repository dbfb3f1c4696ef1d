package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"

	chatmodel "github.com/zhouzirui/pymind/backend/internal/model/chat"
	chatService "github.com/zhouzirui/pymind/backend/internal/service/chat"
)

// collectedReply is a reply buffered for a JSON response.
type collectedReply struct {
	ID string `json:"id"`
	chatmodel.Reply
}

// collector implements the controller output for plain request/response
// clients: transient messages are dropped once removed.
type collector struct {
	mu      sync.Mutex
	replies []collectedReply
}

func (c *collector) Send(_ context.Context, reply chatmodel.Reply) error {
	c.add(reply)
	return nil
}

func (c *collector) SendTransient(_ context.Context, reply chatmodel.Reply) (chatService.Removable, error) {
	id := c.add(reply)
	return removal{c: c, id: id}, nil
}

func (c *collector) add(reply chatmodel.Reply) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	c.replies = append(c.replies, collectedReply{ID: id, Reply: reply})
	return id
}

// Replies returns the messages still visible.
func (c *collector) Replies() []collectedReply {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]collectedReply{}, c.replies...)
}

type removal struct {
	c  *collector
	id string
}

func (r removal) Remove(context.Context) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	for i, reply := range r.c.replies {
		if reply.ID == r.id {
			r.c.replies = append(r.c.replies[:i], r.c.replies[i+1:]...)
			break
		}
	}
	return nil
}
