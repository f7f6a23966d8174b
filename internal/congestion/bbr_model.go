package congestion

import "time"

// updateRound advances the round-trip counter: a new round starts once an
// ACK confirms delivery of a packet sent at or after the delivered
// watermark recorded at the start of the current round.
func (b *BBR) updateRound(rs *RateSample) {
	b.delivered += rs.AckedSacked
	b.lost += rs.Losses

	if rs.PriorDelivered >= b.nextRoundDelivered {
		b.nextRoundDelivered = b.delivered
		b.roundCount++
		b.roundStart = true
		b.packetConservation = false
	} else {
		b.roundStart = false
	}
}

// updateRTProp tracks the minimum RTT observed in the last minRTTExpiry
// window, forcing a fresh minimum in whenever the window has no sample
// left to justify the current one. rtProp mirrors minRTT; it exists as a
// separate field because §4.9's control laws read "the RTT backing the BDP
// estimate" without caring whether that value came from this round or an
// older one still inside the window.
func (b *BBR) updateRTProp(rs *RateSample) {
	// rtPropExpired is latched before minRTTStamp is possibly refreshed
	// below: checkProbeRTT decides mode transitions off this same stale-window
	// verdict, not off a value that this call may have just reset to zero.
	b.rtPropExpired = b.now.Sub(b.minRTTStamp) > minRTTExpiry

	if rs.RttUs < 0 {
		return
	}
	sampleRTT := time.Duration(rs.RttUs) * time.Microsecond

	if !b.hasRTProp || sampleRTT <= b.minRTT || b.rtPropExpired {
		b.minRTT = sampleRTT
		b.minRTTStamp = b.now
		b.hasRTProp = true
	}
	b.rtProp = b.minRTT
}

// updateBandwidth feeds the round's delivery rate into the windowed
// max-filter that backs every downstream control law.
func (b *BBR) updateBandwidth(rs *RateSample) {
	if rs.IntervalUs <= 0 || rs.Delivered == 0 {
		return
	}

	// bytes/us scaled by bwUnit, matching the fixed-point convention
	// rateBytesPerSecond/bdpPackets already assume.
	sampleBW := rs.Delivered * bwUnit / uint64(rs.IntervalUs)
	if !rs.IsAppLimited || sampleBW >= b.bw.Get() {
		b.bw.Update(uint32(b.roundCount), sampleBW)
	}
}

// checkFullPipe declares the pipe full once three consecutive rounds fail
// to grow bandwidth by at least fullBWThreshold, ending STARTUP's doubling.
func (b *BBR) checkFullPipe(rs *RateSample) {
	if b.fullBWReached || !b.roundStart || rs.IsAppLimited {
		return
	}

	if b.bw.Get() >= b.fullBW*fullBWThreshold/gainUnit {
		b.fullBW = b.bw.Get()
		b.fullBWCount = 0
		return
	}

	b.fullBWCount++
	if b.fullBWCount >= fullBWCountGoal {
		b.fullBWReached = true
		b.logger.Log("bbr_full_bw_reached", "bw", b.fullBW)
	}
}

// checkDrain leaves STARTUP for DRAIN the instant the pipe is judged full,
// and leaves DRAIN for PROBE_BW once inflight has fallen back to one BDP
// (the queue DRAIN built up is gone).
func (b *BBR) checkDrain(now time.Time, rs *RateSample) {
	if b.mode == modeStartup && b.fullBWReached {
		b.enterDrain()
	}

	if b.mode == modeDrain {
		bdp := bdpPackets(b.bandwidth(), uint64(b.rtProp.Microseconds()), gainUnit)
		if rs.PriorInFlight <= bdp {
			b.enterProbeBW(now)
		}
	}
}

// checkProbeRTT enters PROBE_RTT whenever the min_rtt window has gone
// stale, and while inside it waits for inflight to fall under a small
// floor for at least probeRTTModeMs (and at least one full round) before
// handing control back to resetMode.
func (b *BBR) checkProbeRTT(now time.Time, rs *RateSample) {
	if b.rtPropExpired && !b.idleRestart && b.mode != modeProbeRTT {
		b.enterProbeRTT(now)
		b.priorCwnd = b.saveCwnd()
		b.probeRTTDoneStamp = time.Time{}
	}

	if b.mode == modeProbeRTT {
		probeRTTCwnd := minPipeCwndPackets * b.maxSegmentSize
		if b.probeRTTDoneStamp.IsZero() && rs.PriorInFlight <= probeRTTCwnd {
			b.probeRTTDoneStamp = now.Add(probeRTTModeMs)
			b.probeRTTRoundDone = false
			b.nextRoundDelivered = b.delivered
		} else if !b.probeRTTDoneStamp.IsZero() {
			if b.roundStart {
				b.probeRTTRoundDone = true
			}
			if b.probeRTTRoundDone && !now.Before(b.probeRTTDoneStamp) {
				b.minRTTStamp = now
				b.restoreCwnd()
				b.resetMode(now)
			}
		}
	}

	if rs.Delivered > 0 {
		b.idleRestart = false
	}
}

// updateAckAggregation estimates how many bytes beyond the modeled
// bandwidth a single ACK event can legitimately deliver (ack
// compression/aggregation at the bottleneck, not real extra capacity), so
// setCwnd can add that much headroom without mistaking burst noise for
// bandwidth growth.
func (b *BBR) updateAckAggregation(now time.Time, rs *RateSample) {
	if rs.AckedSacked == 0 || rs.IntervalUs <= 0 {
		return
	}

	if b.roundStart {
		b.extraAckedWinRTTs = min(b.extraAckedWinRTTs+1, 31)
		if b.extraAckedWinRTTs >= extraAckedWinRTTsGoal {
			b.extraAckedWinRTTs = 0
			if b.extraAckedIdx == 0 {
				b.extraAckedIdx = 1
			} else {
				b.extraAckedIdx = 0
			}
			b.extraAcked[b.extraAckedIdx] = 0
		}
	}

	epochUs := now.Sub(b.ackEpochStamp).Microseconds()
	if epochUs < 0 {
		epochUs = 0
	}
	expectedAcked := b.bandwidth() * uint64(epochUs) / bwUnit

	if b.ackEpochAcked <= expectedAcked || b.ackEpochAcked+rs.AckedSacked >= 1<<20 {
		b.ackEpochAcked = 0
		b.ackEpochStamp = now
		expectedAcked = 0
	}

	b.ackEpochAcked = min(b.ackEpochAcked+rs.AckedSacked, 1<<20)
	var extraAcked uint64
	if b.ackEpochAcked > expectedAcked {
		extraAcked = b.ackEpochAcked - expectedAcked
	}
	extraAcked = min(extraAcked, b.cwnd)

	if extraAcked > b.extraAcked[b.extraAckedIdx] {
		b.extraAcked[b.extraAckedIdx] = extraAcked
	}
}

// ackAggregationBonus is the larger of the two tracked aggregation-bonus
// slots, the value setCwnd adds on top of the raw BDP.
func (b *BBR) ackAggregationBonus() uint64 {
	return max(b.extraAcked[0], b.extraAcked[1])
}

func (b *BBR) resetAckAggregation(now time.Time) {
	b.ackEpochStamp = now
	b.ackEpochAcked = 0
	b.extraAcked = [2]uint64{}
	b.extraAckedIdx = 0
	b.extraAckedWinRTTs = 0
}
