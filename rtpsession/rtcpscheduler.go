// RtcpScheduler owns the deterministic RTCP transmission interval
// described by RFC 3550 §6.3: it computes td from the member count
// and average packet size, applies the randomisation factor, and
// implements both forward reconsideration (deferring a scheduled
// report when td grows) and reverse reconsideration (the accelerated
// schedule used for BYE). This is grounded on the teacher's
// rtcp_session.go timer goroutine shape — a single timer reset in a
// loop, guarded by atomics for Start/Stop — married to the interval
// arithmetic from original_source's RtcpReportManager.cpp.
package rtpsession

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// RtcpSchedulerConfig parameterises interval computation.
type RtcpSchedulerConfig struct {
	SessionBandwidthBps float64 // total RTCP bandwidth budget, bytes/sec
	IsAVPF              bool    // RFC 4585 reduced minimum applies
	InitialMembers      int
}

// RtcpScheduler drives when the session must emit its next compound
// RTCP packet. Callers drive it with a Fire func invoked from the
// timer goroutine; the scheduler itself carries no knowledge of RTCP
// wire formats.
type RtcpScheduler struct {
	cfg RtcpSchedulerConfig

	mu              sync.Mutex
	members         *MemberDb
	tp              time.Time // last transmission time
	tn              time.Time // next scheduled time
	initial         bool
	avgPacketSize   float64
	weSent          bool
	pmembers        int // member count at last computation, for reconsideration

	running int32
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	onFire func(reverseReconsidered bool)
}

// NewRtcpScheduler constructs a scheduler bound to db for member-count
// and average-size lookups.
func NewRtcpScheduler(db *MemberDb, cfg RtcpSchedulerConfig, onFire func(reverse bool)) *RtcpScheduler {
	return &RtcpScheduler{
		cfg:           cfg,
		members:       db,
		initial:       true,
		avgPacketSize: 200,
		onFire:        onFire,
		pmembers:      maxInt(cfg.InitialMembers, 1),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// deterministicInterval computes Td per RFC 3550 §6.3.1 / Appendix
// A.7, without the randomisation factor, given the current member and
// sender counts.
func (s *RtcpScheduler) deterministicInterval(members, senders int) time.Duration {
	rtcpBw := s.cfg.SessionBandwidthBps
	if rtcpBw <= 0 {
		rtcpBw = 64000 * DefaultRTCPBandwidthFraction
	}

	minInterval := RTCPMinInterval
	if s.cfg.IsAVPF {
		minInterval = RTCPMinIntervalReduced
	}
	if s.initial {
		minInterval /= 2
	}

	n := members
	senderFraction := 0.0
	if n > 0 {
		senderFraction = float64(senders) / float64(n)
	}

	var bw float64
	if senderFraction <= SenderReportFractionCeiling {
		if s.weSent {
			bw = rtcpBw * SenderReportFractionCeiling
			n = senders
			if n < 1 {
				n = 1
			}
		} else {
			bw = rtcpBw * (1 - SenderReportFractionCeiling)
			n = members - senders
			if n < 1 {
				n = 1
			}
		}
	} else {
		bw = rtcpBw
	}

	avg := s.avgPacketSize
	if avg <= 0 {
		avg = 200
	}
	t := avg * float64(n) / bw
	if t < minInterval.Seconds() {
		t = minInterval.Seconds()
	}
	return time.Duration(t * float64(time.Second))
}

// nextInterval applies the randomisation factor (uniform on
// [0.5,1.5)) and the compensation constant RFC 3550 Appendix A.7 uses
// to offset the fixed bias introduced by always waiting at least
// Td/compensation between transmissions.
func (s *RtcpScheduler) nextInterval(members, senders int) time.Duration {
	td := s.deterministicInterval(members, senders)
	randomised := float64(td) * (0.5 + rand.Float64())
	return time.Duration(randomised / RTCPCompensation)
}

// Start begins the scheduler's timer goroutine. now is the
// caller-supplied reference time, letting tests drive the schedule
// deterministically.
func (s *RtcpScheduler) Start(ctx context.Context, now time.Time) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.Lock()
	s.tp = now
	members := s.members.ActiveMemberCount()
	senders := s.members.SenderCount()
	interval := s.nextInterval(members, senders)
	s.tn = now.Add(interval)
	s.pmembers = members
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(runCtx, interval)
}

func (s *RtcpScheduler) loop(ctx context.Context, firstInterval time.Duration) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			defaultLogger().Error().Interface("panic", r).Msg("rtcp scheduler loop recovered")
		}
	}()

	timer := time.NewTimer(firstInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			now := time.Now()
			s.mu.Lock()
			members := s.members.ActiveMemberCount()

			// Forward reconsideration (RFC 3550 §6.3.3): if
			// membership grew enough that recomputed Tn would push
			// the deadline further out than now, reschedule instead
			// of firing.
			senders := s.members.SenderCount()
			recomputed := s.nextInterval(members, senders)
			if members > s.pmembers && now.Add(recomputed).After(s.tn) {
				s.tn = now.Add(recomputed)
				s.pmembers = members
				s.mu.Unlock()
				timer.Reset(time.Until(s.tn))
				continue
			}

			s.tp = now
			s.initial = false
			s.pmembers = members
			nextIv := s.nextInterval(members, senders)
			s.tn = now.Add(nextIv)
			s.mu.Unlock()

			if s.onFire != nil {
				s.onFire(false)
			}
			timer.Reset(nextIv)
		}
	}
}

// NoteAveragePacketSize lets the caller push MemberDb's EWMA in after
// transmitting, so the next interval reflects this report's actual
// size.
func (s *RtcpScheduler) NoteAveragePacketSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avgPacketSize = 0.0625*float64(size) + 0.9375*s.avgPacketSize
}

// SetWeSent marks whether the local participant is currently an
// active sender, toggling which bandwidth partition applies.
func (s *RtcpScheduler) SetWeSent(sent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weSent = sent
}

// ReverseReconsider implements RFC 3550 §6.3.4's accelerated schedule
// used when a BYE must go out promptly: it recomputes the interval
// using the post-departure member count and, if that is shorter than
// the time already elapsed, fires (almost) immediately; otherwise it
// reschedules tn proportionally so the group's aggregate bandwidth
// rule still holds.
func (s *RtcpScheduler) ReverseReconsider(now time.Time, membersAfterLeave int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if membersAfterLeave <= ImmediateByeMemberLimit {
		// Small enough group that RFC 3550 §6.3.7 allows an immediate
		// BYE with no rate limiting; the timer goroutine picks up the
		// shrunk membership on its next natural fire.
		return 0
	}

	total := s.tn.Sub(s.tp)
	if total <= 0 {
		return 0
	}
	scaled := time.Duration(float64(total) * float64(membersAfterLeave) / float64(s.pmembers))
	newTn := s.tp.Add(scaled)
	s.pmembers = membersAfterLeave
	s.tn = newTn
	remaining := newTn.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Stop halts the timer goroutine and waits for it to exit.
func (s *RtcpScheduler) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
