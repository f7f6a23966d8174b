package bbrcore

import (
	"sync"

	"github.com/quartzflow/bbrcore/internal/protocol"
)

const minPacketPayload = protocol.MinPacketSize - protocol.PacketHeaderSize

// sendQueue buffers already-frame-encoded payloads (StreamData, control
// frames, ...) awaiting a spot in an outgoing packet. One connection owns
// one sendQueue; frames are coalesced into a packet up to whatever budget
// the congestion window and path MTU allow.
type sendQueue struct {
	mtu    uint64
	list   [][]byte
	staged int
	mu     sync.Mutex
}

func newSendQueue() *sendQueue {
	return &sendQueue{mtu: minPacketPayload}
}

func (s *sendQueue) setMSS(mtu uint64) {
	s.mu.Lock()
	s.mtu = mtu - protocol.PacketHeaderSize
	s.mu.Unlock()
}

func (s *sendQueue) add(p []byte) {
	s.mu.Lock()
	s.list = append(s.list, p)
	s.mu.Unlock()
}

func (s *sendQueue) available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list) > 0
}

// pack stages as many queued frames as fit within budget (the lesser of the
// congestion window and the path MTU) and returns their count and
// concatenated bytes. The caller must call flush to commit the staging
// before calling pack again.
func (s *sendQueue) pack(budget uint64) (total uint32, p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := min(budget, s.mtu)
	var buf []byte
	var count int
	for _, entry := range s.list {
		if uint64(len(buf)+len(entry)) > limit {
			break
		}
		buf = append(buf, entry...)
		count++
	}
	s.staged = count
	return uint32(count), buf
}

func (s *sendQueue) flush() {
	s.mu.Lock()
	s.list = s.list[s.staged:]
	s.staged = 0
	s.mu.Unlock()
}

func (s *sendQueue) clear() {
	s.mu.Lock()
	s.list = nil
	s.staged = 0
	s.mu.Unlock()
}
