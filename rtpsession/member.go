// MemberDb owns every MemberEntry known to a session. It is the sole
// authority on whether an incoming RTP packet counts, what its extended
// sequence number is, and whether the local participant is currently a
// sender. Structurally this follows the teacher's SourceManager
// (pkg/rtp/source_manager.go): an RWMutex-guarded map, a config struct
// with event callbacks, and a periodic Sweep (called from the Session's
// RTCP timer rather than from a goroutine of its own) — but the
// sequence-validation and loss/jitter bookkeeping are rewritten against
// RFC 3550 Appendix A.1/A.3/A.8, replacing the teacher's simplified
// "allow ±100" probation check.
package rtpsession

import (
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// Observation is what MemberDb.ObserveRTP returns to the Session for
// every accepted incoming RTP packet.
type Observation struct {
	SSRC              uint32
	ExtendedSeq       uint32
	PresentationTime  time.Time
	SourceValidated   bool
	RTCPSynchronised  bool
	IsNewSource       bool
}

// MemberEntry is the per-SSRC record MemberDb maintains. Field names
// and grouping follow RFC 3550 Appendix A.1's source-state fields
// directly (base_seq, max_seq, probation, cycles, received, ...).
type MemberEntry struct {
	SSRC   uint32
	IsSelf bool // true for entries representing the local participant

	// Validation (RFC 3550 Appendix A.1).
	probation int
	validated bool

	// Sequence space.
	baseSeq uint16
	maxSeq  uint16
	badSeq  uint32 // sentinel; -1 represented as "unset" via badSeqSet
	badSeqSet bool
	cycles    uint32
	received  uint32

	// Reporting-interval counters (RFC 3550 Appendix A.3).
	expectedPrior   uint32
	receivedPrior   uint32
	rtpPacketsRecv  uint64
	rtcpPacketsRecv uint64

	// Jitter (RFC 3550 Appendix A.8).
	jitter       float64
	prevTransit  int64
	havePrevTS   bool
	prevRTPTS    uint32
	prevArrival  time.Time

	// SR/RR synchronisation.
	lastSRNTPMiddle uint32
	lastSRArrival   time.Time
	rtt             time.Duration
	cumulativeLost  int32
	fractionLost    uint8

	// Liveness.
	tLastRTPSent   time.Time
	tLastAnySent   time.Time
	markedInactive bool
	tMarkedInactive time.Time

	desc SourceDescription
}

// Validated reports whether the source has cleared probation (or been
// fast-validated via SDES CNAME).
func (m *MemberEntry) Validated() bool { return m.validated }

// ExtendedHighestSeq returns (cycles<<16 | maxSeq), the 32-bit extended
// highest sequence number RFC 3550 Reception Reports carry.
func (m *MemberEntry) ExtendedHighestSeq() uint32 {
	return m.cycles | uint32(m.maxSeq)
}

// MemberDbConfig configures a MemberDb's timeouts and event hooks.
type MemberDbConfig struct {
	// SenderTimeoutMultiple and ReceiverTimeoutMultiple scale the
	// deterministic RTCP interval to produce the sender/receiver
	// timeouts: Sweep removes a member that has sent RTP once its last
	// activity is older than the sender timeout, and any other member
	// once it is older than the receiver timeout (defaults 2x and 5x).
	SenderTimeoutMultiple   float64
	ReceiverTimeoutMultiple float64

	OnSourceAdded   func(*MemberEntry)
	OnSourceRemoved func(*MemberEntry)
	OnSourceValidated func(*MemberEntry)
}

// MemberDb is the per-session source database RFC 3550 §6.2's SSRC/CSRC
// bookkeeping describes.
type MemberDb struct {
	mu      sync.RWMutex
	members map[uint32]*MemberEntry
	self    uint32 // local SSRC(s) treated as self-reports
	selfRtx uint32

	avgRTCPSize float64 // EWMA, bytes including IP+UDP

	cfg MemberDbConfig
}

// NewMemberDb creates an empty database and inserts the local
// participant's SSRC as an already-validated self entry.
func NewMemberDb(localSSRC uint32, localRtxSSRC uint32, cfg MemberDbConfig) *MemberDb {
	if cfg.SenderTimeoutMultiple == 0 {
		cfg.SenderTimeoutMultiple = 2
	}
	if cfg.ReceiverTimeoutMultiple == 0 {
		cfg.ReceiverTimeoutMultiple = 5
	}
	db := &MemberDb{
		members:     make(map[uint32]*MemberEntry),
		self:        localSSRC,
		selfRtx:     localRtxSSRC,
		avgRTCPSize: 200,
		cfg:         cfg,
	}
	db.members[localSSRC] = &MemberEntry{SSRC: localSSRC, IsSelf: true, validated: true, tLastAnySent: time.Now()}
	return db
}

// ObserveRTP applies RFC 3550 Appendix A.1's sequence-number update
// algorithm to an incoming packet, inserting a MemberEntry for a
// never-before-seen SSRC. The only failure mode is header validation,
// which is the caller's responsibility before invoking ObserveRTP —
// this method never itself returns an error; a packet that fails the
// wire-level decode never reaches MemberDb at all.
func (db *MemberDb) ObserveRTP(pkt *rtp.Packet, clockRate uint32, arrival time.Time) Observation {
	db.mu.Lock()
	defer db.mu.Unlock()

	ssrc := pkt.SSRC
	m, isNew := db.members[ssrc]
	if !isNew {
		m = &MemberEntry{SSRC: ssrc}
		db.members[ssrc] = m
		// The creating packet itself must still pass through updateSeq
		// below so it consumes its own probation slot: anchor max_seq
		// one behind it so the creating packet is itself the first of
		// MinSequential strictly-consecutive arrivals Appendix A.1
		// requires before validation.
		m.baseSeq = pkt.SequenceNumber
		m.maxSeq = pkt.SequenceNumber - 1
		m.probation = MinSequential
		if db.cfg.OnSourceAdded != nil {
			db.cfg.OnSourceAdded(m)
		}
	}

	validatedBefore := m.validated
	accepted := db.updateSeq(m, pkt.SequenceNumber)
	if accepted {
		m.received++
		m.rtpPacketsRecv++
		m.tLastRTPSent = arrival
		m.tLastAnySent = arrival
		db.updateJitter(m, pkt.Timestamp, arrival, clockRate)
	}

	if !validatedBefore && m.validated && db.cfg.OnSourceValidated != nil {
		db.cfg.OnSourceValidated(m)
	}

	return Observation{
		SSRC:             ssrc,
		ExtendedSeq:      m.ExtendedHighestSeq(),
		PresentationTime: arrival,
		SourceValidated:  m.validated,
		RTCPSynchronised: !m.lastSRArrival.IsZero(),
		IsNewSource:      !isNew,
	}
}

func initSequence(m *MemberEntry, seq uint16) {
	m.baseSeq = seq
	m.maxSeq = seq
	m.badSeqSet = false
	m.cycles = 0
	m.received = 0
}

// updateSeq is the RFC 3550 Appendix A.1 decision procedure:
//
//	udelta = seq - max_seq (mod 2^16)
//	in probation: strictly-consecutive advances it, else shorten the
//	  window to MinSequential-1 and re-anchor max_seq
//	udelta < MAX_DROPOUT: in-order, bump cycles on wrap
//	udelta <= 2^16-MAX_MISORDER: big jump, remember/compare bad_seq
//	otherwise: duplicate/reorder, counted but not advanced
//
// Returns whether the packet should count toward received/jitter
// accounting (everything except the "remember bad_seq and drop" path).
func (db *MemberDb) updateSeq(m *MemberEntry, seq uint16) bool {
	udelta := seq - m.maxSeq

	if m.probation > 0 {
		if seq == m.maxSeq+1 {
			m.probation--
			m.maxSeq = seq
			if m.probation == 0 {
				// Validated on the MinSequential-th strictly-consecutive
				// arrival: re-anchor base_seq/max_seq/cycles/received at
				// this packet, exactly as Appendix A.1's init_seq does
				// when called from inside update_seq.
				initSequence(m, seq)
				m.validated = true
				return true
			}
			return false
		}
		// Non-consecutive arrival during probation: Appendix A.1 only
		// shortens the remaining window by one and re-anchors max_seq,
		// it does not restart base_seq or the full probation count.
		m.probation = MinSequential - 1
		m.maxSeq = seq
		return false
	}

	switch {
	case udelta < MaxDropout:
		if seq < m.maxSeq {
			m.cycles += 1 << 16
		}
		m.maxSeq = seq
		return true
	case uint32(udelta) <= uint32(1<<16)-MaxMisorder:
		if uint32(seq) == m.badSeq && m.badSeqSet {
			initSequence(m, seq)
			m.validated = true
			return true
		}
		m.badSeq = uint32(seq+1) & 0xFFFF
		m.badSeqSet = true
		return false
	default:
		return true
	}
}

// FastValidate marks ssrc valid immediately on receipt of an SDES
// CNAME, short-circuiting Appendix A.1 probation the way an
// out-of-band CNAME association lets an implementation validate a
// source faster than waiting out MinSequential RTP arrivals.
func (db *MemberDb) FastValidate(ssrc uint32, cname string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.members[ssrc]
	if !ok {
		m = &MemberEntry{SSRC: ssrc}
		db.members[ssrc] = m
		if db.cfg.OnSourceAdded != nil {
			db.cfg.OnSourceAdded(m)
		}
	}
	wasValidated := m.validated
	m.validated = true
	m.probation = 0
	m.desc.CNAME = cname
	if !wasValidated && db.cfg.OnSourceValidated != nil {
		db.cfg.OnSourceValidated(m)
	}
}

// updateJitter implements RFC 3550 Appendix A.8: jitter only updates
// once received>1 and the RTP timestamp differs from the previous
// packet's.
func (db *MemberDb) updateJitter(m *MemberEntry, rtpTS uint32, arrival time.Time, clockRate uint32) {
	if !m.havePrevTS {
		m.prevRTPTS = rtpTS
		m.prevArrival = arrival
		m.havePrevTS = true
		return
	}
	if rtpTS == m.prevRTPTS {
		return
	}
	arrivalUnits := int64(float64(arrival.Sub(m.prevArrival).Seconds())*float64(clockRate)) + int64(m.prevRTPTS)
	transit := arrivalUnits - int64(rtpTS)
	if m.received > 1 {
		d := transit - m.prevTransit
		if d < 0 {
			d = -d
		}
		m.jitter += (float64(d) - m.jitter) / 16.0
	}
	m.prevTransit = transit
	m.prevRTPTS = rtpTS
	m.prevArrival = arrival
}

// ObserveRTCP dispatches each packet of a compound RTCP bundle to its
// per-type handler and updates the running average RTCP packet size
// per RFC 3550 §6.3.3's avg_rtcp_size EWMA: avg = 0.0625*size +
// 0.9375*avg.
func (db *MemberDb) ObserveRTCP(packets []rtcp.Packet, size int, now time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.avgRTCPSize = 0.0625*float64(size) + 0.9375*db.avgRTCPSize

	for _, p := range packets {
		switch pkt := p.(type) {
		case *rtcp.SenderReport:
			db.onSenderReport(pkt, now)
		case *rtcp.ReceiverReport:
			db.onReceiverReport(pkt, now)
		case *rtcp.SourceDescription:
			db.onSDES(pkt)
		case *rtcp.Goodbye:
			db.onBye(pkt, now)
		}
	}
}

func (db *MemberDb) entryLocked(ssrc uint32) *MemberEntry {
	m, ok := db.members[ssrc]
	if !ok {
		m = &MemberEntry{SSRC: ssrc}
		db.members[ssrc] = m
		if db.cfg.OnSourceAdded != nil {
			db.cfg.OnSourceAdded(m)
		}
	}
	return m
}

func (db *MemberDb) onSenderReport(sr *rtcp.SenderReport, now time.Time) {
	m := db.entryLocked(sr.SSRC)
	m.lastSRNTPMiddle = MiddleBits(sr.NTPTime)
	m.lastSRArrival = now
	m.rtcpPacketsRecv++
	m.tLastAnySent = now
	for _, block := range sr.Reports {
		db.applyReceptionReportAboutSelf(block, now)
	}
}

func (db *MemberDb) onReceiverReport(rr *rtcp.ReceiverReport, now time.Time) {
	m := db.entryLocked(rr.SSRC)
	m.rtcpPacketsRecv++
	m.tLastAnySent = now
	for _, block := range rr.Reports {
		db.applyReceptionReportAboutSelf(block, now)
	}
}

// applyReceptionReportAboutSelf computes RTT when a remote's RR block
// reports on one of our own SSRCs: RTT = now_ntp_mid32 - dlsr - lsr
// (RFC 3550 §6.4.1), clamped to 0 if the subtraction would go negative.
func (db *MemberDb) applyReceptionReportAboutSelf(block rtcp.ReceptionReport, now time.Time) {
	if block.SSRC != db.self && block.SSRC != db.selfRtx {
		return
	}
	if block.LastSenderReport == 0 {
		return
	}
	nowMid := MiddleBits(NTPTimestamp(now))
	lsr := block.LastSenderReport
	dlsr := block.Delay
	raw := int64(nowMid) - int64(dlsr) - int64(lsr)
	if raw < 0 {
		raw = 0
	}
	// raw is in 1/65536s units.
	selfEntry := db.members[db.self]
	if selfEntry != nil {
		selfEntry.rtt = time.Duration(raw) * time.Second / 65536
	}
}

func (db *MemberDb) onSDES(sdes *rtcp.SourceDescription) {
	for _, chunk := range sdes.Chunks {
		m := db.entryLocked(chunk.Source)
		for _, item := range chunk.Items {
			if item.Type == rtcp.SDESCNAME {
				wasValidated := m.validated
				m.validated = true
				m.probation = 0
				m.desc.CNAME = item.Text
				if !wasValidated && db.cfg.OnSourceValidated != nil {
					db.cfg.OnSourceValidated(m)
				}
			}
		}
	}
}

func (db *MemberDb) onBye(bye *rtcp.Goodbye, now time.Time) {
	for _, ssrc := range bye.Sources {
		m, ok := db.members[ssrc]
		if !ok {
			continue
		}
		m.markedInactive = true
		m.tMarkedInactive = now
	}
}

// TakeReportData finalises per-source reporting-interval state and
// resets interval counters, to be called exactly once per RTCP
// transmission (RFC 3550 §6.3.3 scopes expected_prior/received_prior to
// one reporting interval). Its senders result is always empty: every
// remote source from which RTP has been accepted is returned in
// receivers.
type ReportSource struct {
	Entry *MemberEntry
}

func (db *MemberDb) TakeReportData() (isLocalSender bool, senders []ReportSource, receivers []ReportSource) {
	db.mu.Lock()
	defer db.mu.Unlock()

	self := db.members[db.self]
	isLocalSender = self != nil && !self.tLastRTPSent.IsZero()

	for ssrc, m := range db.members {
		if ssrc == db.self {
			continue
		}
		db.finaliseInterval(m)
		if m.rtpPacketsRecv > 0 {
			receivers = append(receivers, ReportSource{Entry: m})
		}
	}
	return isLocalSender, senders, receivers
}

// finaliseInterval computes the loss fraction for the interval just
// ending (RFC 3550 Appendix A.3) and resets the interval's prior
// counters.
func (db *MemberDb) finaliseInterval(m *MemberEntry) {
	extended := m.ExtendedHighestSeq()
	expected := extended - uint32(m.baseSeq) + 1
	expectedInterval := expected - m.expectedPrior
	receivedInterval := m.received - m.receivedPrior
	lostInterval := int64(expectedInterval) - int64(receivedInterval)

	if expectedInterval == 0 || lostInterval <= 0 {
		m.fractionLost = 0
	} else {
		m.fractionLost = uint8((lostInterval << 8) / int64(expectedInterval))
	}

	m.expectedPrior = expected
	m.receivedPrior = m.received

	cumulative := int64(expected) - int64(m.received)
	const clampMax = int64(1<<23) - 1
	const clampMin = -int64(1 << 23)
	if cumulative > clampMax {
		cumulative = clampMax
	} else if cumulative < clampMin {
		cumulative = clampMin
	}
	m.cumulativeLost = int32(cumulative)
}

// MarkSent records that the local SSRC just transmitted an RTP packet,
// so TakeReportData knows to build a Sender Report this interval.
func (db *MemberDb) MarkSent(now time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if self, ok := db.members[db.self]; ok {
		self.tLastRTPSent = now
		self.tLastAnySent = now
	}
}

// Sweep removes entries whose last activity precedes the timeout or
// whose BYE grace has elapsed, per RFC 3550 §6.3.4/§6.3.5.
func (db *MemberDb) Sweep(now time.Time, deterministicInterval time.Duration) {
	db.mu.Lock()
	defer db.mu.Unlock()

	senderTimeout := time.Duration(float64(deterministicInterval) * db.cfg.SenderTimeoutMultiple)
	receiverTimeout := time.Duration(float64(deterministicInterval) * db.cfg.ReceiverTimeoutMultiple)

	for ssrc, m := range db.members {
		if ssrc == db.self {
			continue
		}
		if m.markedInactive && now.Sub(m.tMarkedInactive) >= ByeGrace {
			delete(db.members, ssrc)
			if db.cfg.OnSourceRemoved != nil {
				db.cfg.OnSourceRemoved(m)
			}
			continue
		}
		timeout := receiverTimeout
		if !m.tLastRTPSent.IsZero() {
			timeout = senderTimeout
		}
		if timeout > 0 && now.Sub(m.tLastAnySent) > timeout {
			delete(db.members, ssrc)
			if db.cfg.OnSourceRemoved != nil {
				db.cfg.OnSourceRemoved(m)
			}
		}
	}
}

// SenderCount returns the number of members that have sent RTP data:
// the local participant once MarkSent has been called, and each remote
// source from which ObserveRTP has accepted a packet. The mark is not
// cleared between reporting intervals.
func (db *MemberDb) SenderCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	n := 0
	for _, m := range db.members {
		if !m.tLastRTPSent.IsZero() {
			n++
		}
	}
	return n
}

// ActiveMemberCount returns the total number of known members,
// including the local participant.
func (db *MemberDb) ActiveMemberCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.members)
}

// AverageRTCPSize returns the current EWMA of compound RTCP packet
// size in bytes, used by the RtcpScheduler's bandwidth division.
func (db *MemberDb) AverageRTCPSize() float64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.avgRTCPSize
}

// IsSender reports whether ssrc has sent RTP data this session (via
// MarkSent for the local participant, via an accepted packet for a
// remote source).
func (db *MemberDb) IsSender(ssrc uint32) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	m, ok := db.members[ssrc]
	return ok && !m.tLastRTPSent.IsZero()
}

// Get returns a copy of the entry for ssrc, for read-only inspection.
func (db *MemberDb) Get(ssrc uint32) (MemberEntry, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	m, ok := db.members[ssrc]
	if !ok {
		return MemberEntry{}, false
	}
	return *m, true
}
