package bbrcore

import (
	"context"
	"io"
	"sync"

	"github.com/quartzflow/bbrcore/internal/frame"
	"github.com/quartzflow/bbrcore/internal/log"
	"github.com/quartzflow/bbrcore/internal/protocol"
)

const maxPayloadSize = 1024

// Stream is an ordered, reliable byte stream multiplexed over a
// connection's single congestion-controlled packet flow. Writes past
// maxPayloadSize are split across multiple StreamData frames, each with
// its own sequence number, and reassembled in sequence-number order on the
// receiving side.
type Stream struct {
	ctx        context.Context
	cancelFunc context.CancelFunc
	streamID   protocol.StreamID
	sendQueue  *sendQueue
	wake       func()
	onClose    func()
	logger     log.Logger

	sequenceID uint32
	ordered    *frameQueue
	buf        []byte
	mu         sync.Mutex
	cond       *sync.Cond
	once       sync.Once
}

func newStream(streamID protocol.StreamID, parentCtx context.Context, sendQueue *sendQueue, wake func(), onClose func(), logger log.Logger) *Stream {
	ctx, cancelFunc := context.WithCancel(parentCtx)
	s := &Stream{
		ctx:        ctx,
		cancelFunc: cancelFunc,
		streamID:   streamID,
		sendQueue:  sendQueue,
		wake:       wake,
		onClose:    onClose,
		logger:     logger,
		ordered:    newFrameQueue(),
		buf:        make([]byte, 0, 4096),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Stream) Read(p []byte) (int, error) {
	select {
	case <-s.ctx.Done():
		return 0, s.ctx.Err()
	default:
	}

	s.mu.Lock()
	for len(s.buf) == 0 && s.buf != nil {
		s.cond.Wait()
	}

	if s.buf == nil {
		s.mu.Unlock()
		return 0, io.EOF
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	s.mu.Unlock()
	return n, nil
}

func (s *Stream) Write(p []byte) (int, error) {
	select {
	case <-s.ctx.Done():
		return 0, s.ctx.Err()
	default:
	}

	if len(p) == 0 {
		return 0, nil
	}

	for start := 0; start < len(p); start += maxPayloadSize {
		end := min(start+maxPayloadSize, len(p))
		fr := &frame.StreamData{
			StreamID:   s.streamID,
			SequenceID: s.sequenceID,
			Payload:    p[start:end],
		}
		s.sendQueue.add(frame.PackSingle(fr))
		s.sequenceID++
	}
	s.wake()
	return len(p), nil
}

func (s *Stream) Context() context.Context {
	return s.ctx
}

func (s *Stream) Close() error {
	fr := &frame.StreamClose{StreamID: s.streamID}
	s.sendQueue.add(frame.PackSingle(fr))
	s.wake()
	return s.internalClose("closed locally")
}

func (s *Stream) internalClose(reason string) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.buf = s.buf[:0]
		s.buf = nil
		s.mu.Unlock()
		s.cond.Signal()
		s.cancelFunc()
		s.logger.Log("stream_close", "streamID", s.streamID, "reason", reason)
		s.onClose()
	})
	return nil
}

// receive enqueues an arrival by sequence number and drains whatever
// prefix of in-order frames that arrival completed into buf.
func (s *Stream) receive(sequenceID uint32, p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ordered.enqueue(sequenceID, p)
	s.order()
	s.cond.Signal()
}

func (s *Stream) order() {
	for {
		entry := s.ordered.top()
		if entry == nil {
			break
		}
		s.buf = append(s.buf, entry.payload...)
		s.ordered.dequeue()
	}
}
