package congestion

import "time"

// enterStartup is the only place allowed to put BBR in STARTUP: a fresh
// path model, doubling the pipe every round via highGain until the
// bandwidth estimate stops growing (checkFullPipe).
func (b *BBR) enterStartup() {
	b.mode = modeStartup
	b.pacingGain = highGain
	b.cwndGain = highGain
}

// enterDrain follows a completed STARTUP: pace at 1/highGain to drain the
// queue STARTUP's aggressive probing built up, without losing the cwnd
// STARTUP earned.
func (b *BBR) enterDrain() {
	b.mode = modeDrain
	b.pacingGain = drainGain
	b.cwndGain = highGain
	b.logger.Log("bbr_mode", "mode", b.mode.String())
}

// enterProbeBW is the steady state: cycle the pacing gain through the
// 8-phase schedule to alternately probe for more bandwidth and drain any
// queue that probing built up, holding cwnd at roughly one BDP.
func (b *BBR) enterProbeBW(now time.Time) {
	b.mode = modeProbeBW
	b.cwndGain = cwndGain
	b.cycleIdx = randCycleIdx()
	b.cycleStamp = now
	b.pacingGain = pacingGainCycle[b.cycleIdx]
	if b.ltUseBW {
		b.pacingGain = gainUnit
	}
	b.logger.Log("bbr_mode", "mode", b.mode.String())
}

// enterProbeRTT briefly caps inflight to drain any standing queue so
// min_rtt tracking sees the path's true propagation delay again.
func (b *BBR) enterProbeRTT(now time.Time) {
	b.mode = modeProbeRTT
	b.pacingGain = probeRTTGain
	b.cwndGain = probeRTTCwndGain
	b.probeRTTDoneStamp = time.Time{}
	b.probeRTTRoundDone = false
	b.ackEpochStamp = now
	b.ackEpochAcked = 0
	b.logger.Log("bbr_mode", "mode", b.mode.String())
}

// resetMode picks up where BBR should go once PROBE_RTT ends: PROBE_BW
// once the pipe is known full, STARTUP still if not.
func (b *BBR) resetMode(now time.Time) {
	if !b.fullBWReached {
		b.enterStartup()
	} else {
		b.enterProbeBW(now)
	}
}

// isNextCyclePhase reports whether PROBE_BW has spent a full round at the
// current cycle gain and, for the probing phase, whether inflight has
// actually reached the gain's target (so a slow-to-fill pipe isn't cut
// short) or for the draining phase whether the queue has actually drained.
func (b *BBR) isNextCyclePhase(now time.Time, rs *RateSample) bool {
	isFullLength := now.Sub(b.cycleStamp) > b.rtProp
	if b.pacingGain == gainUnit {
		return isFullLength
	}

	inflight := rs.PriorInFlight
	if b.pacingGain > gainUnit {
		bdp := bdpPackets(b.bandwidth(), uint64(b.rtProp.Microseconds()), b.pacingGain)
		return isFullLength && (rs.Losses > 0 || inflight >= bdp)
	}
	bdp := bdpPackets(b.bandwidth(), uint64(b.rtProp.Microseconds()), gainUnit)
	return isFullLength || inflight <= bdp
}

// advanceCyclePhase moves PROBE_BW to its next gain phase once
// isNextCyclePhase says the current one has run its course.
func (b *BBR) advanceCyclePhase(now time.Time) {
	b.cycleIdx = (b.cycleIdx + 1) % cycleLength
	b.cycleStamp = now
	b.pacingGain = pacingGainCycle[b.cycleIdx]
	if b.ltUseBW {
		b.pacingGain = gainUnit
	}
}

// updateCyclePhase is the PROBE_BW-only half of §2's "advance PROBE_BW
// cycle phase" step; STARTUP/DRAIN/PROBE_RTT ignore it.
func (b *BBR) updateCyclePhase(now time.Time, rs *RateSample) {
	if b.mode == modeProbeBW && b.isNextCyclePhase(now, rs) {
		b.advanceCyclePhase(now)
	}
}
