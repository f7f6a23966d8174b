package congestion

import (
	"math"
	"time"
)

const (
	burstIntervalNanoseconds = 2_000_000
	minBurstSize             = 10
	maxBurstSize             = 256
)

// pacer holds two independent token buckets: one keyed to the window/RTT
// (the teacher's original conservation-based burst limit, which reno and
// Cubic rely on since neither has a pacing rate of its own) and one keyed
// to the controller's own pacing_rate, when it has one. timeUntilSend
// returns whichever bucket says to wait longer, so a controller that
// reports a pacing rate (BBR) actually has that rate enforced on the send
// path rather than only surfaced for diagnostics.
type pacer struct {
	capacity uint64
	tokens   uint64
	mss      uint64
	window   uint64
	prev     time.Time

	rateCapacity uint64
	rateTokens   uint64
	rate         uint64
	ratePrev     time.Time
}

func newPacer(now time.Time) *pacer {
	return &pacer{prev: now, ratePrev: now}
}

func (p *pacer) timeUntilSend(now time.Time, rtt time.Duration, bytes uint64, mss uint64, window uint64, rate uint64) (t time.Time) {
	windowDeadline := p.windowDeadline(now, rtt, bytes, mss, window)
	rateDeadline := p.rateDeadline(now, bytes, mss, rate)
	if rateDeadline.After(windowDeadline) {
		return rateDeadline
	}
	return windowDeadline
}

func (p *pacer) windowDeadline(now time.Time, rtt time.Duration, bytes uint64, mss uint64, window uint64) (t time.Time) {
	if mss != p.mss || window != p.window {
		p.capacity = optimalCapacity(rtt, mss, window)
		p.tokens = min(p.tokens, p.capacity)
		p.mss = mss
		p.window = window
	}

	if p.tokens >= bytes {
		return
	}

	if window >= math.MaxUint32 {
		return
	}

	elapsed := now.Sub(p.prev)
	elapsedRTT := elapsed.Seconds() / rtt.Seconds()
	newTokens := float64(window) * 1.25 * elapsedRTT
	p.tokens = min(p.tokens+uint64(newTokens), p.capacity)
	p.prev = now
	if p.tokens >= bytes {
		return
	}
	unscaledDelay := uint64(rtt) * (min(bytes, p.capacity) - p.tokens) / window
	return p.prev.Add(time.Duration(unscaledDelay/5) * 4)
}

// rateDeadline is the same leaky-bucket shape as windowDeadline, keyed to
// bytes/second instead of window/RTT. A controller with no pacing rate
// (reno, Cubic) reports rate == 0, which disables this bucket entirely and
// leaves scheduling to the window bucket alone.
func (p *pacer) rateDeadline(now time.Time, bytes uint64, mss uint64, rate uint64) (t time.Time) {
	if rate == 0 {
		return
	}

	if rate != p.rate {
		p.rateCapacity = optimalRateCapacity(rate, mss)
		p.rateTokens = min(p.rateTokens, p.rateCapacity)
		p.rate = rate
	}

	if p.rateTokens >= bytes {
		return
	}

	elapsedNs := uint64(max(now.Sub(p.ratePrev).Nanoseconds(), 0))
	newTokens := rate * elapsedNs / uint64(time.Second)
	p.rateTokens = min(p.rateTokens+newTokens, p.rateCapacity)
	p.ratePrev = now
	if p.rateTokens >= bytes {
		return
	}
	deficit := min(bytes, p.rateCapacity) - p.rateTokens
	delayNs := deficit * uint64(time.Second) / rate
	return p.ratePrev.Add(time.Duration(delayNs))
}

func (p *pacer) onSend(bytes uint64) {
	p.tokens = subtractOrZero(p.tokens, bytes)
	p.rateTokens = subtractOrZero(p.rateTokens, bytes)
}

func subtractOrZero(tokens, bytes uint64) uint64 {
	if tokens > bytes {
		return tokens - bytes
	}
	return 0
}

func optimalCapacity(rtt time.Duration, mss uint64, window uint64) uint64 {
	rttNs := max(rtt.Nanoseconds(), 1)
	capacity := (window * burstIntervalNanoseconds) / uint64(rttNs)
	return clamp(capacity, minBurstSize*mss, maxBurstSize*mss)
}

// optimalRateCapacity mirrors optimalCapacity's burst-interval sizing, but
// scaled from a bytes/second rate instead of a window/RTT pair.
func optimalRateCapacity(rate uint64, mss uint64) uint64 {
	capacity := rate * burstIntervalNanoseconds / uint64(time.Second)
	return clamp(capacity, minBurstSize*mss, maxBurstSize*mss)
}
