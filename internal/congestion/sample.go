package congestion

import "time"

// RateSample is the per-ACK delivery-rate observation the host transport
// hands to the BBR core, matching the rate sample contract of the external
// interface: everything BBR needs to update its path model for one ACK
// event, and nothing it would have to ask the transport for separately.
type RateSample struct {
	Delivered       uint64 // bytes delivered over the sample's interval, since the acked packet was sent
	PriorDelivered  uint64 // cumulative delivered count when the oldest newly-acked packet was sent
	IntervalUs      int64  // delivery interval for the sample, microseconds
	RttUs           int64  // RTT of the sample; negative if unknown
	Losses          uint64
	AckedSacked     uint64
	PriorInFlight   uint64
	IsAppLimited    bool
	IsAckDelayed    bool
	DeliveredMstamp time.Time
	TCPMstamp       time.Time
}

// packetSnapshot is the connection state captured at the moment a packet
// was sent, grounded on the quic-go/XTLS BBR ports' pattern of snapshotting
// the sampler's cumulative counters at send time so a later ACK can
// compute a delta-based rate sample without re-walking history.
type packetSnapshot struct {
	sentTime               time.Time
	size                    uint64
	totalDeliveredAtSend    uint64
	deliveredMstampAtSend   time.Time
	isAppLimitedAtSend      bool
}

// Sampler tracks outstanding per-packet send snapshots and turns ACKs into
// RateSamples. One Sampler per connection, touched only from the
// connection's single processing goroutine.
type Sampler struct {
	totalDelivered      uint64
	totalLost           uint64
	deliveredMstamp     time.Time
	isAppLimited        bool
	packets             map[uint64]packetSnapshot
}

func NewSampler() *Sampler {
	return &Sampler{packets: make(map[uint64]packetSnapshot)}
}

// OnPacketSent records the connection state at the time sequenceID departs.
func (s *Sampler) OnPacketSent(sequenceID uint64, now time.Time, bytes uint64) {
	s.packets[sequenceID] = packetSnapshot{
		sentTime:              now,
		size:                  bytes,
		totalDeliveredAtSend:  s.totalDelivered,
		deliveredMstampAtSend: s.deliveredMstamp,
		isAppLimitedAtSend:    s.isAppLimited,
	}
}

// OnAppLimited marks the sampler as app-limited as of now: the next sample
// it produces reflects application behaviour, not path capacity.
func (s *Sampler) OnAppLimited() {
	s.isAppLimited = true
}

// OnPacketAcked retires sequenceID's snapshot and produces a RateSample for
// it. priorInFlight is the bytes in flight just before this packet was
// marked acked. ackDelay is the peer-reported delay for this ACK, if any.
// ok is false if sequenceID has no outstanding snapshot (already retired).
func (s *Sampler) OnPacketAcked(sequenceID uint64, now time.Time, rtt time.Duration, ackDelay time.Duration, priorInFlight uint64) (rs RateSample, ok bool) {
	snap, found := s.packets[sequenceID]
	if !found {
		return RateSample{}, false
	}
	delete(s.packets, sequenceID)

	s.totalDelivered += snap.size
	s.deliveredMstamp = now
	s.isAppLimited = false

	intervalUs := int64(-1)
	if !snap.deliveredMstampAtSend.IsZero() {
		intervalUs = now.Sub(snap.deliveredMstampAtSend).Microseconds()
	}

	rttUs := int64(-1)
	if rtt > 0 {
		rttUs = rtt.Microseconds()
	}

	return RateSample{
		Delivered:       s.totalDelivered - snap.totalDeliveredAtSend,
		PriorDelivered:  snap.totalDeliveredAtSend,
		IntervalUs:      intervalUs,
		RttUs:           rttUs,
		AckedSacked:     snap.size,
		PriorInFlight:   priorInFlight,
		IsAppLimited:    snap.isAppLimitedAtSend,
		IsAckDelayed:    ackDelay > 0,
		DeliveredMstamp: s.deliveredMstamp,
		TCPMstamp:       now,
	}, true
}

// OnPacketLost retires sequenceID's snapshot without producing a rate
// sample, and adds its bytes to the cumulative count TotalLost reports.
// The RateSamples this sampler produces carry no loss count.
func (s *Sampler) OnPacketLost(sequenceID uint64, bytes uint64) {
	delete(s.packets, sequenceID)
	s.totalLost += bytes
}

// TotalLost returns the cumulative bytes this sampler has marked lost.
func (s *Sampler) TotalLost() uint64 {
	return s.totalLost
}
