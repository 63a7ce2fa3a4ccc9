package coordinator

import (
	"strings"
	"sync"
	"time"
)

// mediaGroupBuffer buffers inbound updates sharing a media_group_id. A
// timer starts on the first arrival and extends on every subsequent one;
// on expiry the buffered group is flushed as a single merged Inbound, per
// spec.md's "Media-group buffering" rule.
type mediaGroupBuffer struct {
	window time.Duration
	flush  func(Inbound)

	mu     sync.Mutex
	groups map[string]*pendingGroup
}

type pendingGroup struct {
	items []Inbound
	timer *time.Timer
}

func newMediaGroupBuffer(window time.Duration, flush func(Inbound)) *mediaGroupBuffer {
	return &mediaGroupBuffer{window: window, flush: flush, groups: make(map[string]*pendingGroup)}
}

func (b *mediaGroupBuffer) add(in Inbound) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.groups[in.MediaGroupID]
	if !ok {
		g = &pendingGroup{}
		b.groups[in.MediaGroupID] = g
	}
	g.items = append(g.items, in)

	if g.timer != nil {
		g.timer.Stop()
	}
	groupID := in.MediaGroupID
	g.timer = time.AfterFunc(b.window, func() { b.expire(groupID) })
}

func (b *mediaGroupBuffer) expire(groupID string) {
	b.mu.Lock()
	g, ok := b.groups[groupID]
	if ok {
		delete(b.groups, groupID)
	}
	b.mu.Unlock()
	if !ok || len(g.items) == 0 {
		return
	}

	merged := g.items[0]
	var texts []string
	for _, item := range g.items {
		if item.Text != "" {
			texts = append(texts, item.Text)
		}
	}
	merged.Text = strings.Join(texts, "\n")
	merged.MediaGroupID = ""

	b.flush(merged)
}
