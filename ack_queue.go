package bbrcore

import (
	"slices"
	"sync"
	"time"

	"github.com/quartzflow/bbrcore/internal/protocol"
)

// maxAckDelay bounds how long an ack can be held back waiting to piggyback
// on further arrivals, mirroring protocol.MaxAckDelay on the receive side.
const maxAckDelay = protocol.MaxAckDelay

type ackQueue struct {
	sort       bool
	firstSeen  time.Time
	maxSeen    uint32
	list       []uint32
	mu         sync.Mutex
}

func newAckQueue() *ackQueue {
	return &ackQueue{}
}

func (a *ackQueue) add(t time.Time, sequenceID uint32) {
	a.mu.Lock()
	if len(a.list) == 0 {
		a.firstSeen = t
	}
	if len(a.list) > 0 && sequenceID < a.list[len(a.list)-1] {
		a.sort = true
	}
	a.list = append(a.list, sequenceID)
	a.maxSeen = max(a.maxSeen, sequenceID)
	a.mu.Unlock()
}

// next is the deadline by which a pending ack must be flushed, used by the
// connection's event loop to size its timer; the zero Time means nothing
// is pending.
func (a *ackQueue) next() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.list) == 0 {
		return time.Time{}
	}
	return a.firstSeen.Add(maxAckDelay)
}

func (a *ackQueue) flush(now time.Time) (list []uint32, maxSequenceID uint32, delay time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.list) == 0 {
		return nil, 0, 0
	}

	list = a.list
	maxSequenceID = a.maxSeen
	delay = now.Sub(a.firstSeen)
	if a.sort {
		slices.Sort(list)
		a.sort = false
	}
	a.list = nil
	a.firstSeen = time.Time{}
	return
}
