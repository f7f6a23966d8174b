package congestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzflow/bbrcore/internal/log"
)

const testMSS = 1350

func newTestBBR(now time.Time) *BBR {
	return NewBBR(log.NopLogger{}, now, testMSS)
}

// forceRoundStart builds a RateSample guaranteed to advance the round
// counter regardless of prior state, by setting PriorDelivered past any
// watermark BBR could have accumulated.
func forceRoundStart(rs RateSample) *RateSample {
	rs.PriorDelivered = ^uint64(0)
	return &rs
}

func feedRounds(b *BBR, start time.Time, n int, bytesPerRTT uint64, rtt time.Duration) time.Time {
	now := start
	for i := 0; i < n; i++ {
		now = now.Add(rtt)
		rs := forceRoundStart(RateSample{
			Delivered:     bytesPerRTT,
			IntervalUs:    rtt.Microseconds(),
			RttUs:         rtt.Microseconds(),
			AckedSacked:   bytesPerRTT,
			PriorInFlight: bytesPerRTT,
		})
		b.Update(now, rs)
	}
	return now
}

// P3: cwnd never drops below four segments once a control loop has run.
func TestInitialCwndAtLeastFourSegments(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	require.GreaterOrEqual(t, b.cwnd, 4*uint64(testMSS))

	now = feedRounds(b, now, 1, 8*testMSS, 20*time.Millisecond)
	assert.GreaterOrEqual(t, b.cwnd, 4*uint64(testMSS))
}

// P1: bandwidth() reports the max delivery-rate sample seen within the
// filter's round window, not merely the latest one.
func TestBandwidthFilterTracksMax(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)

	rtt := 20 * time.Millisecond
	now = now.Add(rtt)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 20 * testMSS, IntervalUs: rtt.Microseconds(),
		RttUs: rtt.Microseconds(), AckedSacked: 20 * testMSS, PriorInFlight: 20 * testMSS,
	}))
	peak := b.bandwidth()
	require.Greater(t, peak, uint64(0))

	// A smaller sample the very next round must not push bandwidth() below
	// the peak: the max filter must still be holding it.
	now = now.Add(rtt)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 2 * testMSS, IntervalUs: rtt.Microseconds(),
		RttUs: rtt.Microseconds(), AckedSacked: 2 * testMSS, PriorInFlight: 2 * testMSS,
	}))
	assert.Equal(t, peak, b.bandwidth())
}

// P2: min_rtt is non-increasing across a window of samples with varying
// RTTs, always the smallest sample seen inside minRTTExpiry.
func TestMinRTTNonIncreasing(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)

	rtts := []time.Duration{50 * time.Millisecond, 10 * time.Millisecond, 30 * time.Millisecond}
	var last time.Duration
	for i, rtt := range rtts {
		now = now.Add(rtt)
		b.Update(now, forceRoundStart(RateSample{
			Delivered: 4 * testMSS, IntervalUs: rtt.Microseconds(),
			RttUs: rtt.Microseconds(), AckedSacked: 4 * testMSS, PriorInFlight: 4 * testMSS,
		}))
		if i > 0 {
			assert.LessOrEqual(t, b.minRTT, last)
		}
		last = b.minRTT
	}
	assert.Equal(t, 10*time.Millisecond, b.minRTT)
}

// P4: while in PROBE_RTT, cwnd is capped at four segments and both gains
// are unity.
func TestProbeRTTCapsCwndAndUnityGains(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	b.enterProbeRTT(now)
	b.priorCwnd = b.cwnd

	rtt := 20 * time.Millisecond
	now = now.Add(rtt)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 8 * testMSS, IntervalUs: rtt.Microseconds(),
		RttUs: rtt.Microseconds(), AckedSacked: 8 * testMSS, PriorInFlight: 8 * testMSS,
	}))

	require.Equal(t, modeProbeRTT, b.mode)
	assert.Equal(t, uint64(gainUnit), b.pacingGain)
	assert.Equal(t, uint64(gainUnit), b.cwndGain)
	assert.LessOrEqual(t, b.cwnd, minPipeCwndPackets*uint64(testMSS))
}

// P5: full_bw_reached only ever transitions false->true; UndoCwnd clears
// the full-pipe counters but leaves the flag set.
func TestFullBWReachedMonotoneAcrossUndoCwnd(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)

	rtt := 20 * time.Millisecond
	// Three consecutive rounds with no bandwidth growth latch full_bw_reached.
	now = now.Add(rtt)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 10 * testMSS, IntervalUs: rtt.Microseconds(),
		RttUs: rtt.Microseconds(), AckedSacked: 10 * testMSS, PriorInFlight: 10 * testMSS,
	}))
	for i := 0; i < fullBWCountGoal; i++ {
		now = now.Add(rtt)
		b.Update(now, forceRoundStart(RateSample{
			Delivered: 10 * testMSS, IntervalUs: rtt.Microseconds(),
			RttUs: rtt.Microseconds(), AckedSacked: 10 * testMSS, PriorInFlight: 10 * testMSS,
		}))
	}
	require.True(t, b.fullBWReached)

	// UndoCwnd resets the full-pipe counters that feed the latch, but the
	// latch itself is a one-way flag: it does not flip back to false.
	b.UndoCwnd()
	assert.True(t, b.fullBWReached)
	assert.Equal(t, uint64(0), b.fullBW)
	assert.Equal(t, uint8(0), b.fullBWCount)
}

// P6: cycle_idx wraps modulo 8, and cycle_mstamp is monotone non-decreasing
// as PROBE_BW advances phases.
func TestCycleIdxWrapsModulo8(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	b.enterProbeBW(now)
	b.rtProp = 20 * time.Millisecond
	b.hasRTProp = true
	b.cycleIdx = 0
	b.cycleStamp = now

	var last time.Time = b.cycleStamp
	for i := 0; i < 20; i++ {
		now = now.Add(b.rtProp + time.Millisecond)
		b.advanceCyclePhase(now)
		assert.Less(t, uint8(0), uint8(cycleLength))
		assert.Less(t, b.cycleIdx, uint8(cycleLength))
		assert.False(t, b.cycleStamp.Before(last))
		last = b.cycleStamp
	}
}

// P7: once the long-term estimator engages, bandwidth() reads lt_bw
// irrespective of what the raw max filter holds.
func TestLongTermBandwidthOverridesMaxFilter(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	b.ltBW = 12345
	b.ltUseBW = true

	assert.Equal(t, uint64(12345), b.bandwidth())

	// Feed a much larger raw sample: bandwidth() must not move off ltBW.
	rtt := 20 * time.Millisecond
	now = now.Add(rtt)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 100 * testMSS, IntervalUs: rtt.Microseconds(),
		RttUs: rtt.Microseconds(), AckedSacked: 100 * testMSS, PriorInFlight: 100 * testMSS,
	}))
	assert.Equal(t, uint64(12345), b.bandwidth())
	assert.Greater(t, b.bw.Get(), uint64(12345)) // raw filter kept tracking independently
}

// P8: a round starts exactly once per Update call whose PriorDelivered
// passes the watermark, never more than once.
func TestRoundStartsExactlyOnce(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	before := b.roundCount

	now = now.Add(20 * time.Millisecond)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 4 * testMSS, IntervalUs: 20_000, RttUs: 20_000,
		AckedSacked: 4 * testMSS, PriorInFlight: 4 * testMSS,
	}))
	assert.Equal(t, before+1, b.roundCount)
	assert.True(t, b.roundStart)

	// A sample whose PriorDelivered has not caught up to the new watermark
	// must not start another round.
	now = now.Add(5 * time.Millisecond)
	b.Update(now, &RateSample{
		Delivered: testMSS, PriorDelivered: 0, IntervalUs: 5_000, RttUs: 20_000,
		AckedSacked: testMSS, PriorInFlight: 5 * testMSS,
	})
	assert.Equal(t, before+1, b.roundCount)
	assert.False(t, b.roundStart)
}

// P9: pacing_rate tracks bandwidth*gain within the documented margin.
func TestPacingRateFormulaTolerance(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	b.hasRTProp = true
	b.minRTT = 20 * time.Millisecond
	b.rtProp = 20 * time.Millisecond

	// Delivered is large enough that the resulting bandwidth sample pushes
	// the computed rate above NewBBR's cwnd/nominal-RTT seeded starting
	// rate; otherwise STARTUP's ratchet-only-up rule would leave
	// pacingRateBps at the seed and this assertion would compare against
	// the wrong quantity.
	rtt := 20 * time.Millisecond
	now = now.Add(rtt)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 250 * testMSS, IntervalUs: rtt.Microseconds(),
		RttUs: rtt.Microseconds(), AckedSacked: 250 * testMSS, PriorInFlight: 250 * testMSS,
	}))

	want := rateBytesPerSecond(b.bandwidth(), b.pacingGain, b.maxSegmentSize)
	assert.Equal(t, want, b.pacingRateBps)
	assert.LessOrEqual(t, b.pacingRateBps, rateBytesPerSecond(b.bandwidth(), b.pacingGain, b.maxSegmentSize)+1)
}

// S1: sustained bandwidth-growth failure carries STARTUP through DRAIN into
// PROBE_BW.
func TestStartupDrainProbeBWTransition(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	require.Equal(t, modeStartup, b.mode)

	// STARTUP has built a queue: inflight (40 segments) sits above the
	// one-BDP (20 segments) mark, so DRAIN has something to drain.
	rtt := 20 * time.Millisecond
	now = now.Add(rtt)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 20 * testMSS, IntervalUs: rtt.Microseconds(),
		RttUs: rtt.Microseconds(), AckedSacked: 20 * testMSS, PriorInFlight: 40 * testMSS,
	}))
	for i := 0; i < fullBWCountGoal; i++ {
		now = now.Add(rtt)
		b.Update(now, forceRoundStart(RateSample{
			Delivered: 20 * testMSS, IntervalUs: rtt.Microseconds(),
			RttUs: rtt.Microseconds(), AckedSacked: 20 * testMSS, PriorInFlight: 40 * testMSS,
		}))
	}
	require.True(t, b.fullBWReached)
	require.Equal(t, modeDrain, b.mode)

	// Draining reports inflight has fallen to one BDP: DRAIN hands off to
	// PROBE_BW.
	now = now.Add(rtt)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 1, IntervalUs: rtt.Microseconds(),
		RttUs: rtt.Microseconds(), AckedSacked: 1, PriorInFlight: 1,
	}))
	assert.Equal(t, modeProbeBW, b.mode)
}

// S2: PROBE_BW's cycle phase advances once a full round-trip has elapsed at
// the current gain.
func TestProbeBWCyclePhaseAdvancement(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	b.fullBWReached = true
	b.enterProbeBW(now)
	b.hasRTProp = true
	b.minRTT = 20 * time.Millisecond
	b.rtProp = 20 * time.Millisecond
	b.cycleIdx = 0
	b.cycleStamp = now
	b.pacingGain = pacingGainCycle[0]

	now = now.Add(b.rtProp + time.Millisecond)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 4 * testMSS, IntervalUs: 20_000, RttUs: 20_000,
		AckedSacked: 4 * testMSS, PriorInFlight: 4 * testMSS, Losses: 1,
	}))
	assert.Equal(t, uint8(1), b.cycleIdx)
}

// S3: PROBE_RTT is entered once the min_rtt window goes stale, and exited
// again once inflight has stayed at the floor for a full round plus
// probeRTTModeMs.
func TestProbeRTTEntryAndExit(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	b.fullBWReached = true
	b.enterProbeBW(now)
	b.hasRTProp = true
	b.rtProp = 20 * time.Millisecond
	b.minRTT = 20 * time.Millisecond
	b.minRTTStamp = now.Add(-minRTTExpiry - time.Second)

	now = now.Add(20 * time.Millisecond)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 4 * testMSS, IntervalUs: 20_000, RttUs: 20_000,
		AckedSacked: 4 * testMSS, PriorInFlight: minPipeCwndPackets * testMSS,
	}))
	require.Equal(t, modeProbeRTT, b.mode)

	now = now.Add(20 * time.Millisecond)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 4 * testMSS, IntervalUs: 20_000, RttUs: 20_000,
		AckedSacked: 4 * testMSS, PriorInFlight: minPipeCwndPackets * testMSS,
	}))

	now = now.Add(probeRTTModeMs + 20*time.Millisecond)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 4 * testMSS, IntervalUs: 20_000, RttUs: 20_000,
		AckedSacked: 4 * testMSS, PriorInFlight: minPipeCwndPackets * testMSS,
	}))
	assert.Equal(t, modeProbeBW, b.mode)
}

// S4: a policer pattern (sustained loss, stable delivery rate across two
// sampling intervals) engages the long-term estimator.
func TestPolicerDetectionAcrossTwoIntervals(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)

	rtt := 10 * time.Millisecond
	bytesPerRound := uint64(10 * testMSS)

	// Every round in the interval carries loss: updateLongTermBandwidth only
	// advances its round/elapsed bookkeeping on samples that report a loss,
	// mirroring the loss-triggered nature of the policer heuristic.
	runInterval := func() {
		for i := 0; i < ltIntervalMinRounds+1; i++ {
			now = now.Add(rtt)
			b.Update(now, forceRoundStart(RateSample{
				Delivered: bytesPerRound, IntervalUs: rtt.Microseconds(),
				RttUs: rtt.Microseconds(), AckedSacked: bytesPerRound,
				PriorInFlight: bytesPerRound, Losses: bytesPerRound,
			}))
		}
	}

	runInterval()
	require.False(t, b.ltUseBW)
	firstBW := b.ltBW
	require.Greater(t, firstBW, uint64(0))

	runInterval()
	assert.True(t, b.ltUseBW)
	assert.Equal(t, uint64(gainUnit), b.pacingGain)
}

// S5: on recovery entry, cwnd is restored to at least packets_in_flight
// plus the newly acked bytes, never below it.
func TestRecoveryRestoreCapsCwndAtInflightPlusAcked(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	b.cwnd = 2 * testMSS

	rs := &RateSample{PriorInFlight: 10 * testMSS, AckedSacked: 2 * testMSS}
	b.caState = caRecovery
	b.prevCAState = caOpen
	cwnd, recovering := b.setCwndToRecoverOrRestore(rs, rs.AckedSacked)
	assert.True(t, recovering)
	assert.GreaterOrEqual(t, cwnd, rs.PriorInFlight+rs.AckedSacked)
}

// S6: an idle restart clears once the next sample reports real delivery.
func TestIdleRestartClearsOnDelivery(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	b.OnIdleRestart(now)
	require.True(t, b.idleRestart)

	now = now.Add(20 * time.Millisecond)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 4 * testMSS, IntervalUs: 20_000, RttUs: 20_000,
		AckedSacked: 4 * testMSS, PriorInFlight: 4 * testMSS,
	}))
	assert.False(t, b.idleRestart)
}

// S7: packet_conservation is cleared at the start of every round, not just
// on recovery exit, so a multi-round recovery doesn't stay pinned to
// inflight+acked past its first round.
func TestPacketConservationClearsEveryRoundStart(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	b.packetConservation = true

	now = now.Add(20 * time.Millisecond)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 4 * testMSS, IntervalUs: 20_000, RttUs: 20_000,
		AckedSacked: 4 * testMSS, PriorInFlight: 4 * testMSS,
	}))
	assert.False(t, b.packetConservation)
}

// S8: an app-limited sample discards whatever policer interval was in
// progress instead of letting it count toward the loss ratio.
func TestAppLimitedSampleResetsLongTermSampler(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	b.ltIsSampling = true
	b.ltBW = 999

	b.updateLongTermBandwidth(now, &RateSample{Losses: 1, IsAppLimited: true})

	assert.False(t, b.ltIsSampling)
	assert.Equal(t, uint64(0), b.ltBW)
}

// S9: a host-imposed pacing rate and cwnd ceiling are never exceeded, even
// when the raw control law would ask for more.
func TestMaxPacingRateAndSndCwndClampBound(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	b.SetMaxPacingRate(1000)
	b.SetSndCwndClamp(4 * testMSS)

	rtt := 20 * time.Millisecond
	now = now.Add(rtt)
	b.Update(now, forceRoundStart(RateSample{
		Delivered: 500 * testMSS, IntervalUs: rtt.Microseconds(),
		RttUs: rtt.Microseconds(), AckedSacked: 500 * testMSS, PriorInFlight: 500 * testMSS,
	}))

	assert.LessOrEqual(t, b.pacingRateBps, uint64(1000))
	assert.LessOrEqual(t, b.cwnd, 4*uint64(testMSS))
}

// S10: NewBBR seeds a non-zero pacing rate from cwnd and a nominal RTT, so
// the very first send is paced rather than scheduled immediately.
func TestNewBBRSeedsInitialPacingRate(t *testing.T) {
	now := time.Now()
	b := newTestBBR(now)
	assert.Greater(t, b.pacingRateBps, uint64(0))
}
