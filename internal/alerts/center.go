package alerts

import (
	"sync"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
)

// Center backs the notification-center UI: a capped list of the most recent
// notifications with read/unread bookkeeping. All mutations are idempotent.
type Center struct {
	mu    sync.RWMutex
	buf   []model.NotificationData
	limit int
}

func NewCenter(limit int) *Center {
	if limit <= 0 {
		limit = 50
	}
	return &Center{limit: limit}
}

func (c *Center) Push(n model.NotificationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) < c.limit {
		c.buf = append(c.buf, n)
		return
	}
	copy(c.buf, c.buf[1:])
	c.buf[len(c.buf)-1] = n
}

// List returns newest first, the order the UI renders.
func (c *Center) List() []model.NotificationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.NotificationData, 0, len(c.buf))
	for i := len(c.buf) - 1; i >= 0; i-- {
		out = append(out, c.buf[i])
	}
	return out
}

func (c *Center) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, item := range c.buf {
		if !item.Read {
			n++
		}
	}
	return n
}

func (c *Center) MarkRead(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.buf {
		if c.buf[i].ID == id {
			c.buf[i].Read = true
			return true
		}
	}
	return false
}

func (c *Center) MarkAllRead() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	marked := 0
	for i := range c.buf {
		if !c.buf[i].Read {
			c.buf[i].Read = true
			marked++
		}
	}
	return marked
}

func (c *Center) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.buf {
		if c.buf[i].ID == id {
			c.buf = append(c.buf[:i], c.buf[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Center) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buf)
}

func (c *Center) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = nil
}
