package rtpsession

import "time"

// ntpEpoch is the NTP era-0 epoch (1900-01-01), used to convert between
// time.Time and the 64-bit NTP timestamp format RFC 3550 §4 specifies
// for Sender Reports.
var ntpEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// ReferenceClock maps between wall-clock time and a session's RTP
// timestamp units. It is an interface, not a concrete struct, so tests
// can drive time deterministically instead of depending on time.Now.
type ReferenceClock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
	// ToRTPTimestamp converts a wall-clock time to this session's RTP
	// timestamp units, given the payload's clock rate and the
	// session's timestamp base and epoch.
	ToRTPTimestamp(t time.Time, clockRate uint32) uint32
}

// SystemClock is the default ReferenceClock, backed by time.Now and a
// fixed epoch captured at construction.
type SystemClock struct {
	epoch time.Time
	base  uint32
}

// NewSystemClock returns a clock whose RTP timestamp 0 (before adding
// base) corresponds to epoch.
func NewSystemClock(base uint32) *SystemClock {
	return &SystemClock{epoch: time.Now(), base: base}
}

func (c *SystemClock) Now() time.Time { return time.Now() }

func (c *SystemClock) ToRTPTimestamp(t time.Time, clockRate uint32) uint32 {
	elapsed := t.Sub(c.epoch).Seconds()
	return c.base + uint32(int64(elapsed*float64(clockRate)))
}

// NTPTimestamp converts t to the 64-bit NTP format (32-bit seconds
// since 1900, 32-bit fraction) RFC 3550 Sender Reports carry.
func NTPTimestamp(t time.Time) uint64 {
	d := t.Sub(ntpEpoch)
	seconds := uint64(d / time.Second)
	frac := uint64((d % time.Second).Nanoseconds())
	frac = (frac << 32) / uint64(time.Second)
	return seconds<<32 | frac
}

// NTPTimestampToTime is the inverse of NTPTimestamp.
func NTPTimestampToTime(ntp uint64) time.Time {
	seconds := int64(ntp >> 32)
	frac := ntp & 0xFFFFFFFF
	nanos := int64((frac * uint64(time.Second)) >> 32)
	return ntpEpoch.Add(time.Duration(seconds)*time.Second + time.Duration(nanos))
}

// MiddleBits extracts the middle 32 bits of a 64-bit NTP timestamp, the
// LSR value an SR's receiver stores per RFC 3550 §6.4.1.
func MiddleBits(ntp uint64) uint32 {
	return uint32(ntp >> 16)
}
