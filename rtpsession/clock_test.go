package rtpsession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNTPTimestampRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC)
	ntp := NTPTimestamp(now)
	back := NTPTimestampToTime(ntp)
	assert.WithinDuration(t, now, back, time.Millisecond)
}

func TestMiddleBitsExtractsMiddle32(t *testing.T) {
	ntp := uint64(0x1122334455667788)
	assert.Equal(t, uint32(0x33445566), MiddleBits(ntp))
}

func TestSystemClockMonotonicTimestamps(t *testing.T) {
	c := NewSystemClock(1000)
	t0 := time.Now()
	ts0 := c.ToRTPTimestamp(t0, 8000)
	ts1 := c.ToRTPTimestamp(t0.Add(time.Second), 8000)
	assert.Equal(t, uint32(8000), ts1-ts0, "one second at an 8kHz clock rate advances the timestamp by 8000 units")
}
