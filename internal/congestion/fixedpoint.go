package congestion

// Fixed-point scales shared by the BBR model and control laws. Bandwidths
// are stored as bytes/us scaled by 1<<bwScale; gains are stored as rationals
// scaled by 1<<gainScale. Both scales, and the multiplication order below,
// are part of the on-the-wire observable behaviour and must not be
// refactored away even though it looks like it could be simplified.
const (
	bwScale   = 24
	bwUnit    = 1 << bwScale
	gainScale = 8
	gainUnit  = 1 << gainScale
)

// pacingMarginPercent paces slightly below the estimated bandwidth so the
// bottleneck queue stays close to empty on average.
const pacingMarginPercent = 1

// rateBytesPerSecond converts a bytes/us<<bwScale bandwidth and a gain<<gainScale
// into bytes/second. The order of operations is fixed to avoid overflowing a
// uint64 for rates up to ~2.9 Tbit/s at gain <= 2.89; do not reorder via the
// distributive law. The third (segment size) argument is not used: the
// bandwidth is already in bytes.
func rateBytesPerSecond(bw uint64, gain uint64, _ uint64) uint64 {
	rate := bw * gain
	rate >>= gainScale
	rate *= (1_000_000 / 100) * (100 - pacingMarginPercent)
	return rate >> bwScale
}

// bdpPackets computes ceil(bw * rttUs * gain / (bwUnit * gainUnit)), the
// bandwidth-delay product for the given gain, in bytes since bw is bytes/us.
func bdpPackets(bw uint64, rttUs uint64, gain uint64) uint64 {
	w := bw * rttUs
	bdp := ((w * gain) >> gainScale) + bwUnit - 1
	return bdp / bwUnit
}

func clampU64(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
