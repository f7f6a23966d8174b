package congestion

import (
	"math"
	"math/rand"
	"time"

	"github.com/quartzflow/bbrcore/internal/log"
)

// mode is BBR's four-state pacing/cwnd regime. Only the enterX functions in
// bbr_mode.go may assign BBR.mode, so a mode-inconsistent field combination
// cannot arise from anywhere else in the package.
type mode uint8

const (
	modeStartup mode = iota
	modeDrain
	modeProbeBW
	modeProbeRTT
)

func (m mode) String() string {
	switch m {
	case modeStartup:
		return "startup"
	case modeDrain:
		return "drain"
	case modeProbeBW:
		return "probe_bw"
	case modeProbeRTT:
		return "probe_rtt"
	default:
		return "unknown"
	}
}

// caState mirrors the host transport's idea of congestion-event severity,
// the set_state(conn, new_state) input from the external interface. This
// transport has no SACK-based fast retransmit, only a single RTO-style
// retransmission timer, so Disorder/CWR collapse into Open and a timed-out
// retransmission is reported as Loss.
type caState uint8

const (
	caOpen caState = iota
	caRecovery
	caLoss
)

const (
	// highGain is 2/ln(2) scaled and biased by +1/256, matching the
	// reference source's refusal to round it down to a flat 2885/1000:
	// startup must double the pipe every round, and truncation would leave
	// it short by a hair every single round.
	highGain         = gainUnit*2885/1000 + 1
	drainGain        = gainUnit * 1000 / 2885
	cwndGain         = 2 * gainUnit
	probeRTTGain     = gainUnit
	probeRTTCwndGain = gainUnit

	minPipeCwndPackets = 4
	fullBWThreshold    = gainUnit * 5 / 4 // 1.25x
	fullBWCountGoal    = 3

	cycleLength    = 8
	probeRTTModeMs = 200 * time.Millisecond
	minRTTExpiry   = 10 * time.Second

	bwWindowRounds        = 10
	extraAckedWinRTTsGoal = 5
)

// pacingGainCycle is the 8-phase PROBE_BW gain sequence: one probing phase
// at 5/4 bandwidth, one draining phase at 3/4, and six phases at 1 (unity).
var pacingGainCycle = [cycleLength]uint64{
	gainUnit * 5 / 4,
	gainUnit * 3 / 4,
	gainUnit, gainUnit, gainUnit, gainUnit, gainUnit, gainUnit,
}

// BBR is the congestion-control core: an online model of the path's
// bottleneck bandwidth and round-trip time, a four-state mode machine
// riding on top of that model, and the pacing-rate/cwnd control laws
// derived from both. It owns no timers, sockets, or locks; every external
// effect is a value the caller reads back after calling into it.
type BBR struct {
	logger         log.Logger
	maxSegmentSize uint64

	mode       mode
	roundStart bool
	roundCount uint64

	// nextRoundDelivered is the delivered-bytes watermark that must be
	// passed by an ACK for that ACK to start a new round trip.
	nextRoundDelivered uint64
	delivered          uint64
	lost               uint64

	idleRestart bool

	bw        *windowedFilter // bytes/us << bwScale, max over bwWindowRounds rounds
	rtProp    time.Duration   // mirrors minRTT; the round-trip time backing BDP computation
	hasRTProp bool

	minRTT        time.Duration
	minRTTStamp   time.Time
	rtPropExpired bool

	probeRTTDoneStamp time.Time
	probeRTTRoundDone bool
	priorCwnd         uint64

	fullBWReached bool
	fullBW        uint64
	fullBWCount   uint8

	cycleIdx   uint8
	cycleStamp time.Time

	pacingGain uint64
	cwndGain   uint64

	cwnd               uint64
	pacingRateBps      uint64
	packetConservation bool
	prevCAState        caState

	// maxPacingRate/sndCwndClamp are host-imposed ceilings (sk_max_pacing_rate,
	// snd_cwnd_clamp); zero means unbounded, the default until a caller sets
	// one.
	maxPacingRate uint64
	sndCwndClamp  uint64

	// ack-aggregation estimator (§4.4): how many bytes in excess of the
	// modeled bandwidth a single ACK event can deliver before that excess
	// should be treated as real headroom rather than burst noise.
	extraAcked        [2]uint64
	extraAckedIdx     uint8
	extraAckedWinRTTs uint8
	ackEpochStamp     time.Time
	ackEpochAcked     uint64

	// long-term (policer) bandwidth estimator (§4.8)
	ltBW             uint64
	ltUseBW          bool
	ltIsSampling     bool
	ltRTTCount       uint8
	ltLastStamp      time.Time
	ltLastDelivered  uint64
	ltLastLost       uint64
	ltLastRoundCount uint64

	caState           caState
	recoveryStartTime time.Time

	now time.Time // last time onAck/update ran, used as a monotonic jiffy source
}

// nominalRTTUs is the RTT bbr_init_pacing_rate_from_rtt falls back to when
// no RTT sample exists yet: without it the pacing rate would start at zero
// and every send would wait on the window bucket alone until the first ACK.
const nominalRTTUs = 1000

// NewBBR constructs a BBR in STARTUP with an empty path model, mirroring
// bbr_init's zeroing plus its non-zero defaults: highGain (~2.89) pacing and
// cwnd gains, the initial window, and a pacing rate seeded from it.
func NewBBR(logger log.Logger, now time.Time, mss uint64) *BBR {
	b := &BBR{
		logger:         logger,
		maxSegmentSize: mss,
		bw:             newMaxFilter(bwWindowRounds),
		minRTT:         0,
		minRTTStamp:    now,
		cwnd:           initialWindow(mss),
		now:            now,
	}
	b.enterStartup()
	b.resetAckAggregation(now)
	b.resetLongTermBandwidthSampling(now)

	initBW := b.cwnd * bwUnit / nominalRTTUs
	b.pacingRateBps = rateBytesPerSecond(initBW, highGain, mss)

	b.logger.Log("bbr_init", "cwnd", b.cwnd, "mss", mss, "pacingRate", b.pacingRateBps)
	return b
}

// SetMaxPacingRate installs a host-imposed pacing rate ceiling. A zero
// value (the default) leaves the rate unbounded.
func (b *BBR) SetMaxPacingRate(bps uint64) {
	b.maxPacingRate = bps
}

// SetSndCwndClamp installs a host-imposed cwnd ceiling. A zero value (the
// default) leaves cwnd unbounded.
func (b *BBR) SetSndCwndClamp(bytes uint64) {
	b.sndCwndClamp = bytes
}

// onAck satisfies the controller interface. When the Sender has a Sampler
// producing the full §6 rate-sample contract, rs carries it through
// unmodified; a caller with no Sampler (or a retransmission that the
// Sampler already retired) gets a minimal sample built from the arguments
// Sender always has on hand.
func (b *BBR) onAck(now, sent, _ time.Time, rtt *RTT, bytes, flight uint64, rs *RateSample) {
	if rs == nil {
		intervalUs := now.Sub(sent).Microseconds()
		if intervalUs <= 0 {
			intervalUs = 1
		}
		rs = &RateSample{
			Delivered:     bytes,
			IntervalUs:    intervalUs,
			RttUs:         rtt.LatestRTT().Microseconds(),
			AckedSacked:   bytes,
			PriorInFlight: flight + bytes,
		}
	}
	b.Update(now, rs)
}

func (b *BBR) onCongestionEvent(now, _ time.Time) {
	b.OnCAStateChange(now, caLoss)
}

func (b *BBR) setMSS(mss uint64) {
	b.maxSegmentSize = mss
	b.cwnd = max(b.cwnd, minimumWindow(mss))
}

func (b *BBR) mss() uint64 {
	return b.maxSegmentSize
}

func (b *BBR) window() uint64 {
	return b.cwnd
}

// pacingRate returns the current pacing rate in bytes/second, the other
// control-law output besides cwnd, as last computed by setPacingRate.
func (b *BBR) pacingRate() uint64 {
	return b.pacingRateBps
}

// bandwidth is bbr_bw(conn): the bandwidth every pacing/cwnd control-law
// computation reads. It is the raw bandwidth filter except while the
// long-term estimator has a policer pinned, in which case the filter is
// still fed (checkFullPipe/updateBandwidth keep watching it) but every
// downstream decision reads the policer's steadier estimate instead.
func (b *BBR) bandwidth() uint64 {
	if b.ltUseBW {
		return b.ltBW
	}
	return b.bw.Get()
}

// Update is the main(conn, rate_sample) entry point: one call per ACK
// event, running the components in the fixed order §2 specifies.
func (b *BBR) Update(now time.Time, rs *RateSample) {
	if rs == nil || rs.Delivered == 0 && rs.AckedSacked == 0 {
		return
	}
	b.now = now

	b.updateRound(rs)
	b.updateBandwidth(rs)
	b.updateAckAggregation(now, rs)
	b.updateCyclePhase(now, rs)
	b.checkFullPipe(rs)
	b.checkDrain(now, rs)
	b.updateRTProp(rs)
	b.checkProbeRTT(now, rs)
	b.updateLongTermBandwidth(now, rs)
	b.setPacingRate()
	b.setCwnd(rs)
}

// Info reports the get_info(conn) snapshot a caller (logging, diagnostics)
// might want without reaching into private fields.
type Info struct {
	Mode       string
	BW         uint64
	MinRTT     time.Duration
	PacingRate uint64
	Cwnd       uint64
	FullBW     bool
	LTUseBW    bool
	RoundCount uint64
}

func (b *BBR) Info() Info {
	return Info{
		Mode:       b.mode.String(),
		BW:         b.bandwidth(),
		MinRTT:     b.minRTT,
		PacingRate: b.pacingRate(),
		Cwnd:       b.cwnd,
		FullBW:     b.fullBWReached,
		LTUseBW:    b.ltUseBW,
		RoundCount: b.roundCount,
	}
}

// SSThresh is ssthresh(conn). BBR does not use ssthresh to drive its own
// control law; per the recorded decision on the init-time ssthresh typo,
// it reports the largest value a caller can safely treat as "no limit".
func (b *BBR) SSThresh() uint64 {
	return math.MaxUint64
}

// SendBufferExpansion is sndbuf_expand(conn): BBR wants three times the
// window of buffer headroom so pacing is never starved by a full send
// buffer.
func (b *BBR) SendBufferExpansion() uint64 {
	return 3
}

func randCycleIdx() uint8 {
	return uint8(rand.Intn(cycleLength - 1))
}
