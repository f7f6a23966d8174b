package congestion

import "time"

// Long-term (policer) bandwidth estimator (§4.8): some paths run a token
// bucket policer that looks like capacity to the model (it lets bursts
// through) until the bucket empties and it starts dropping, at which point
// the model's bandwidth filter will chase a ceiling that isn't really
// there. This estimator watches for that pattern — a sustained loss ratio
// paired with a stable delivery rate across the interval — and when it
// finds one in two consecutive intervals, pins the pacing gain to unity and
// the bandwidth estimate to the long-term rate for ltBWMaxRTTs rounds of
// PROBE_BW, after which sampling starts over.
const (
	ltIntervalMinRounds = 4
	ltIntervalMaxRounds = 4 * ltIntervalMinRounds
	ltLossThreshNum     = 50
	ltLossThreshDenom   = 256 // ~19.53% of delivered bytes lost
	ltBWRatioNum        = 1
	ltBWRatioDenom      = 8 // within 12.5% of the previous interval's estimate
	ltBWDiffBps         = 4000 / 8
	ltBWMaxRTTs         = 48
)

func (b *BBR) resetLongTermBandwidthSampling(now time.Time) {
	b.ltBW = 0
	b.ltUseBW = false
	b.ltIsSampling = false
	b.resetLongTermBandwidthSamplingInterval(now)
}

func (b *BBR) resetLongTermBandwidthSamplingInterval(now time.Time) {
	b.ltLastStamp = now
	b.ltLastDelivered = b.delivered
	b.ltLastLost = b.lost
	b.ltLastRoundCount = b.roundCount
	b.ltRTTCount = 0
}

// updateLongTermBandwidth is set_state(TCP_CA_Loss)'s and every
// ACK's entry point into the policer heuristic: set_state feeds it a
// synthetic one-loss sample (see OnCAStateChange), every other ACK feeds
// it whatever the round actually saw.
func (b *BBR) updateLongTermBandwidth(now time.Time, rs *RateSample) {
	if b.ltUseBW {
		if b.mode == modeProbeBW && b.roundStart {
			b.ltRTTCount++
			if b.ltRTTCount >= ltBWMaxRTTs {
				b.resetLongTermBandwidthSampling(now)
				b.enterProbeBW(now) // restart gain cycling
			}
		}
		return
	}

	// Wait for the first loss before sampling, so the policer's bucket has
	// had a chance to run dry and reveal a rate below burst capacity.
	if !b.ltIsSampling {
		if rs.Losses == 0 {
			return
		}
		b.resetLongTermBandwidthSamplingInterval(now)
		b.ltIsSampling = true
	}

	// An app-limited sample says nothing about path capacity; the interval
	// so far can't be trusted to reflect a policer, so drop it entirely
	// rather than let it count toward the loss ratio or round budget.
	if rs.IsAppLimited {
		b.resetLongTermBandwidthSampling(now)
		return
	}

	if rs.IsAckDelayed {
		return
	}
	if rs.Losses == 0 {
		return
	}

	lost := b.lost - b.ltLastLost
	delivered := b.delivered - b.ltLastDelivered
	if delivered == 0 || lost*ltLossThreshDenom < delivered*ltLossThreshNum {
		return
	}

	elapsed := now.Sub(b.ltLastStamp)
	rounds := b.roundCount - b.ltLastRoundCount
	if elapsed <= 0 {
		return
	}
	if rounds > ltIntervalMaxRounds {
		b.resetLongTermBandwidthSampling(now)
		return
	}
	if rounds < ltIntervalMinRounds {
		return
	}

	bw := delivered * bwUnit / uint64(elapsed.Microseconds())
	b.ltBandwidthIntervalDone(now, bw)
}

func (b *BBR) ltBandwidthIntervalDone(now time.Time, bw uint64) {
	if b.ltBW != 0 {
		var diff uint64
		if bw > b.ltBW {
			diff = bw - b.ltBW
		} else {
			diff = b.ltBW - bw
		}

		withinRatio := diff*ltBWRatioDenom <= ltBWRatioNum*b.ltBW
		withinAbsolute := rateBytesPerSecond(diff, gainUnit, b.maxSegmentSize) <= ltBWDiffBps
		if withinRatio || withinAbsolute {
			b.ltBW = (bw + b.ltBW) / 2
			b.ltUseBW = true
			b.pacingGain = gainUnit
			b.ltRTTCount = 0
			b.logger.Log("bbr_lt_bw_engage", "bw", b.ltBW)
			return
		}
	}
	b.ltBW = bw
	b.resetLongTermBandwidthSamplingInterval(now)
}
