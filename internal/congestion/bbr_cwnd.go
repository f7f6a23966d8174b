package congestion

import "time"

// setPacingRate is the first of the two control-law outputs (§4.9). In
// STARTUP it only rises, so a transient dip in the bandwidth estimate while
// ramping up cannot pull the pacing rate down; outside STARTUP it follows
// the estimate in both directions.
func (b *BBR) setPacingRate() {
	rate := rateBytesPerSecond(b.bandwidth(), b.pacingGain, b.maxSegmentSize)
	if b.mode != modeStartup || rate > b.pacingRateBps {
		b.pacingRateBps = rate
	}
	if b.maxPacingRate != 0 {
		b.pacingRateBps = min(b.pacingRateBps, b.maxPacingRate)
	}
}

// targetCwnd is bbr_target_cwnd: the BDP at the given gain, padded for
// three TSO-sized bursts and rounded to an even number of segments so
// delayed ACKs don't stall the window just shy of opening further.
func (b *BBR) targetCwnd(gain uint64) uint64 {
	if !b.hasRTProp {
		return initialWindow(b.maxSegmentSize)
	}

	cwnd := bdpPackets(b.bandwidth(), uint64(b.rtProp.Microseconds()), gain)
	cwnd += 3 * b.TSOSegmentsGoal() * b.maxSegmentSize

	segs := (cwnd + b.maxSegmentSize - 1) / b.maxSegmentSize
	segs = (segs + 1) &^ 1
	cwnd = segs * b.maxSegmentSize

	if b.mode == modeProbeBW && gain > gainUnit {
		cwnd += 2 * b.maxSegmentSize
	}
	return cwnd
}

// setCwndToRecoverOrRestore is bbr_set_cwnd_to_recover_or_restore: loss
// recovery first claws back exactly the lost bytes so the window doesn't
// over-release, then holds inflight+acked flat for the first round of
// recovery (packet conservation) before letting the ordinary growth law
// resume; leaving recovery restores whatever cwnd PROBE_RTT/recovery
// entry had saved.
func (b *BBR) setCwndToRecoverOrRestore(rs *RateSample, acked uint64) (cwnd uint64, recovering bool) {
	cwnd = b.cwnd
	if rs.Losses > 0 {
		if cwnd > rs.Losses {
			cwnd -= rs.Losses
		} else {
			cwnd = b.maxSegmentSize
		}
	}

	if b.caState == caRecovery && b.prevCAState != caRecovery {
		b.priorCwnd = b.saveCwnd()
		b.packetConservation = true
		b.nextRoundDelivered = b.delivered
		cwnd = rs.PriorInFlight + acked
	} else if b.prevCAState >= caRecovery && b.caState < caRecovery {
		cwnd = max(cwnd, b.priorCwnd)
		b.packetConservation = false
	}
	b.prevCAState = b.caState

	if b.packetConservation {
		return max(cwnd, rs.PriorInFlight+acked), true
	}
	return cwnd, false
}

// setCwnd is the second control-law output: grow toward targetCwnd at a
// rate bounded by what this ACK actually confirmed left the network,
// folding in whatever headroom the ack-aggregation estimator has earned.
func (b *BBR) setCwnd(rs *RateSample) {
	acked := rs.AckedSacked
	if acked == 0 {
		b.applyCwndCaps()
		return
	}

	cwnd, recovering := b.setCwndToRecoverOrRestore(rs, acked)
	if !recovering {
		target := b.targetCwnd(b.cwndGain) + b.ackAggregationBonus()
		if b.fullBWReached {
			cwnd = min(cwnd+acked, target)
		} else if cwnd < target || b.delivered < initialWindow(b.maxSegmentSize) {
			cwnd += acked
		}
		cwnd = max(cwnd, minPipeCwndPackets*b.maxSegmentSize)
	}

	b.cwnd = cwnd
	b.applyCwndCaps()
}

func (b *BBR) applyCwndCaps() {
	if b.mode == modeProbeRTT {
		b.cwnd = min(b.cwnd, minPipeCwndPackets*b.maxSegmentSize)
	}
	if b.sndCwndClamp != 0 {
		b.cwnd = min(b.cwnd, b.sndCwndClamp)
	}
}

// saveCwnd is bbr_save_cwnd: remember the window from before PROBE_RTT or
// loss recovery cut it, so it can be restored once either ends. A cwnd
// that was cut for either reason already is not worth overwriting with a
// smaller "good enough" value.
func (b *BBR) saveCwnd() uint64 {
	if b.prevCAState < caRecovery && b.mode != modeProbeRTT {
		return b.cwnd
	}
	return max(b.priorCwnd, b.cwnd)
}

func (b *BBR) restoreCwnd() {
	b.cwnd = max(b.cwnd, b.priorCwnd)
}

// UndoCwnd is undo_cwnd(conn): a congestion event later judged spurious
// (e.g. an RTO that turned out to have been unnecessary) resets full-pipe
// detection's progress counter so STARTUP/DRAIN gets a fair second look,
// but deliberately leaves fullBWReached itself alone — a spurious loss
// doesn't mean the pipe was never full, only that this particular
// measurement of "still growing" is suspect.
func (b *BBR) UndoCwnd() uint64 {
	b.fullBW = 0
	b.fullBWCount = 0
	b.resetLongTermBandwidthSampling(b.now)
	return b.cwnd
}

// OnCAStateChange is set_state(conn, new_state): entering Loss is treated
// like the end of a round (an RTO has no ACK to start one otherwise) and
// feeds the long-term estimator a synthetic one-loss sample, mirroring how
// the reference implementation primes policer detection from timeouts as
// well as ordinary loss.
func (b *BBR) OnCAStateChange(now time.Time, state caState) {
	b.caState = state
	if state == caLoss {
		b.prevCAState = caLoss
		b.fullBW = 0
		b.roundStart = true
		b.updateLongTermBandwidth(now, &RateSample{Losses: 1})
	}
}

// OnIdleRestart is cwnd_event(conn, TX_START): resuming after an idle
// spell sets idleRestart, which keeps checkProbeRTT from entering
// PROBE_RTT until a sample with real delivery clears it; it also restarts
// the ack-aggregation epoch and, in PROBE_BW, recomputes the pacing rate
// at the current pacing gain.
func (b *BBR) OnIdleRestart(now time.Time) {
	b.idleRestart = true
	b.ackEpochStamp = now
	b.ackEpochAcked = 0
	if b.mode == modeProbeBW {
		b.setPacingRate()
	}
}

// minTSORateBps is min_tso_rate: below this pacing rate, a two-segment
// floor would waste more bandwidth on TSO overhead than it saves, so the
// floor drops to a single segment.
const minTSORateBps = 1_200_000 / 8

// TSOSegments is tso_segs(conn, mss): how many mss-sized segments a single
// GSO/TSO send should batch at the current pacing rate, so the kernel
// isn't asked to emit one tiny segment at a time at high bandwidth.
func (b *BBR) TSOSegments() uint64 {
	minSegs := uint64(2)
	if b.pacingRateBps < minTSORateBps {
		minSegs = 1
	}
	bytesPerMs := b.pacingRateBps / 1000
	segs := bytesPerMs / b.maxSegmentSize
	return clampU64(segs, minSegs, 64)
}

// TSOSegmentsGoal is tso_segs_goal(conn), the same hint expressed as a
// per-burst goal the cwnd padding in targetCwnd consumes directly.
func (b *BBR) TSOSegmentsGoal() uint64 {
	return clampU64(b.TSOSegments(), 1, 10)
}
