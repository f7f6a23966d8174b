package protocol

import "time"

var Magic = []byte{0x20, 0x24, 0x10, 0x01}

type ConnectionID int64

type StreamID int64

const SendBufferSize = 1024 * 1024 * 7

const ReceiveBufferSize = 1024 * 1024 * 7

const MaxPacketSize = 1452

const MinPacketSize = 1200

const MaxUDPPayloadSize = 1452

const PacketHeaderSize = 20

// TimerGranularity bounds the smallest useful timer tick; loss detection
// and pacing deadlines are never scheduled finer than this.
const TimerGranularity = time.Millisecond

// MaxAckDelay is the largest peer-reported ack delay we allow into an RTT
// sample; delays above this are assumed to be stale acks, not real latency.
const MaxAckDelay = 25 * time.Millisecond

// InitialCongestionWindowPackets mirrors TCP_INIT_CWND (10 packets). Nothing
// in the module reads it; the congestion package's initialWindow computes
// the window used before any RTT sample exists.
const InitialCongestionWindowPackets = 10
