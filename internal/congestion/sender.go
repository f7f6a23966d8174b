package congestion

import (
	"time"

	"github.com/quartzflow/bbrcore/internal/log"
)

// Algorithm selects which controller a Sender drives window/pacing from.
type Algorithm uint8

const (
	AlgorithmBBR Algorithm = iota
	AlgorithmReno
	AlgorithmCubic
)

type Sender struct {
	flight            uint64
	recoverySend      bool
	recoveryStartTime time.Time
	cc                controller
	pacer             *pacer
	sampler           *Sampler
}

func NewSender(algorithm Algorithm, logger log.Logger, now time.Time, mss uint64) *Sender {
	var cc controller
	switch algorithm {
	case AlgorithmReno:
		cc = newReno(logger, mss)
	case AlgorithmCubic:
		cc = NewCubic(logger, mss)
	default:
		cc = NewBBR(logger, now, mss)
	}
	return &Sender{
		recoveryStartTime: now,
		cc:                cc,
		pacer:             newPacer(now),
		sampler:           NewSampler(),
	}
}

// pacingRateReporter is satisfied only by controllers with a pacing-rate
// model of their own (BBR); reno and Cubic have no notion of one and are
// paced by the window bucket alone.
type pacingRateReporter interface {
	pacingRate() uint64
}

func (s *Sender) TimeUntilSend(now time.Time, rtt *RTT, bytes uint64) time.Time {
	var rate uint64
	if reporter, ok := s.cc.(pacingRateReporter); ok {
		rate = reporter.pacingRate()
	}
	return s.pacer.timeUntilSend(now, rtt.SRTT(), bytes, s.cc.mss(), s.cc.window(), rate)
}

// SetMaxPacingRate caps the pacing rate a rate-aware controller will ever
// request, mirroring sk_max_pacing_rate. Controllers with no pacing rate
// of their own ignore it.
func (s *Sender) SetMaxPacingRate(bps uint64) {
	if capper, ok := s.cc.(interface{ SetMaxPacingRate(bps uint64) }); ok {
		capper.SetMaxPacingRate(bps)
	}
}

// SetSndCwndClamp caps cwnd growth, mirroring snd_cwnd_clamp.
func (s *Sender) SetSndCwndClamp(bytes uint64) {
	if clamper, ok := s.cc.(interface{ SetSndCwndClamp(bytes uint64) }); ok {
		clamper.SetSndCwndClamp(bytes)
	}
}

func (s *Sender) OnSend(now time.Time, sequenceID uint32, bytes uint64) {
	if s.flight == 0 {
		if idle, ok := s.cc.(idleRestarter); ok {
			idle.OnIdleRestart(now)
		}
	}
	s.flight += bytes
	s.pacer.onSend(bytes)
	s.sampler.OnPacketSent(uint64(sequenceID), now, bytes)
	if s.recoverySend {
		s.recoverySend = false
	}
}

// idleRestarter is satisfied only by controllers that care about a send
// resuming after the pipe sat empty (BBR's min-RTT tracking does; reno and
// Cubic have no notion of it).
type idleRestarter interface {
	OnIdleRestart(now time.Time)
}

// SendBufferExpansion reports how much headroom, as a multiple of the
// current window, the host transport should keep in its send buffer so
// pacing never stalls waiting on buffer space. Controllers with no
// opinion (reno, Cubic) report the default of one window.
func (s *Sender) SendBufferExpansion() uint64 {
	if bufferer, ok := s.cc.(interface{ SendBufferExpansion() uint64 }); ok {
		return bufferer.SendBufferExpansion()
	}
	return 1
}

// TSOSegmentsGoal reports how many mss-sized segments the host transport
// should try to batch into a single outgoing packet. Controllers with no
// pacing-rate-derived opinion (reno, Cubic) report a single segment.
func (s *Sender) TSOSegmentsGoal() uint64 {
	if batcher, ok := s.cc.(interface{ TSOSegmentsGoal() uint64 }); ok {
		return batcher.TSOSegmentsGoal()
	}
	return 1
}

// Info reports the controller's internal state for diagnostics, when the
// controller exposes one.
func (s *Sender) Info() (Info, bool) {
	if reporter, ok := s.cc.(interface{ Info() Info }); ok {
		return reporter.Info(), true
	}
	return Info{}, false
}

func (s *Sender) OnAck(now, sent time.Time, sequenceID uint32, rtt *RTT, bytes uint64) {
	if s.flight > bytes {
		s.flight -= bytes
	} else {
		s.flight = 0
	}

	rs, ok := s.sampler.OnPacketAcked(uint64(sequenceID), now, rtt.LatestRTT(), 0, s.flight+bytes)
	var rsp *RateSample
	if ok {
		rsp = &rs
	}
	s.cc.onAck(now, sent, s.recoveryStartTime, rtt, bytes, s.flight, rsp)
}

func (s *Sender) OnCongestionEvent(now time.Time, sequenceID uint32, sent time.Time, bytes uint64) {
	s.sampler.OnPacketLost(uint64(sequenceID), bytes)
	if sent.After(s.recoveryStartTime) {
		s.recoverySend = true
		s.recoveryStartTime = now
		s.cc.onCongestionEvent(now, sent)
	}
}

// OnAppLimited marks the sampler as app-limited: the send queue ran dry
// with window still available, so the next rate sample reflects how much
// the application had to send, not the path's capacity.
func (s *Sender) OnAppLimited() {
	s.sampler.OnAppLimited()
}

func (s *Sender) SetMSS(mss uint64) {
	s.cc.setMSS(mss)
}

func (s *Sender) Available() uint64 {
	if s.recoverySend {
		return s.cc.mss()
	}

	if window := s.cc.window(); window > s.flight {
		return window - s.flight
	}
	return 0
}
