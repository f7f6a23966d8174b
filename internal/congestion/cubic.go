package congestion

import (
	"math"
	"time"

	"github.com/quartzflow/bbrcore/internal/log"
	"github.com/quartzflow/bbrcore/internal/protocol"
)

const (
	maxBurstPackets  = 3
	cubicInitialWMax = protocol.MaxPacketSize * 32

	cubicBeta = 0.7
	cubicC    = 0.4
)

// Cubic is the alternate, selectable loss-based controller: CUBIC window
// growth in congestion avoidance, Reno-style slow start below ssthresh.
type Cubic struct {
	maxSegmentSize uint64
	cwnd           uint64
	ssthres        uint64
	bytesAcked     uint64
	wMax           uint64
	k              float64
	epochStart     time.Time
	logger         log.Logger
}

func NewCubic(logger log.Logger, mss uint64) *Cubic {
	return &Cubic{
		maxSegmentSize: mss,
		cwnd:           initialWindow(mss),
		ssthres:        math.MaxUint64,
		wMax:           cubicInitialWMax,
		logger:         logger,
	}
}

func (c *Cubic) onAck(now, _, _ time.Time, _ *RTT, bytes, flight uint64, _ *RateSample) {
	if !shouldIncreaseWindow(flight, c.cwnd, c.ssthres) {
		return
	}

	if c.cwnd < c.ssthres {
		c.cwnd += c.maxSegmentSize
		c.logger.Log("congestion_window_increase", "cause", "slow_start", "window", c.cwnd, "threshold", c.ssthres)
		if c.cwnd >= c.ssthres {
			c.ssthres = c.cwnd
			c.logger.Log("congestion_exit_slow_start", "window", c.cwnd, "threshold", c.ssthres)
		}
		return
	}

	if c.epochStart.IsZero() {
		c.epochStart = now
		c.k = math.Cbrt(float64(c.wMax) * (1.0 - cubicBeta) / cubicC)
	}

	elapsed := now.Sub(c.epochStart).Seconds()
	target := uint64(cubicC*math.Pow(elapsed-c.k, 3)*float64(c.maxSegmentSize) + float64(c.wMax))
	if target > c.cwnd {
		c.cwnd = target
		c.logger.Log("congestion_window_increase", "cause", "cubic", "window", c.cwnd, "threshold", c.ssthres)
	}
}

func (c *Cubic) onCongestionEvent(_ time.Time, _ time.Time) {
	c.wMax = c.cwnd
	c.cwnd = max(uint64(float64(c.cwnd)*cubicBeta), minimumWindow(c.maxSegmentSize))
	c.ssthres = c.cwnd
	c.bytesAcked = 0
	c.epochStart = time.Time{}
	c.logger.Log("congestion_window_decrease", "window", c.cwnd, "threshold", c.ssthres)
}

func (c *Cubic) setMSS(mss uint64) {
	c.maxSegmentSize = mss
	c.cwnd = max(c.cwnd, minimumWindow(mss))
}

func (c *Cubic) mss() uint64 {
	return c.maxSegmentSize
}

func (c *Cubic) window() uint64 {
	return c.cwnd
}
