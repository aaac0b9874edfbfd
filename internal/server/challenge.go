package server

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"arenacore/internal/protocol"
)

// maxChallenges bounds the challenge table; once full the globally oldest
// record is evicted regardless of which address owns it.
const maxChallenges = 1024

// maxChallengesPerAddress caps how many distinct, unconsumed challenges a
// single address may hold concurrently.
const maxChallengesPerAddress = 3

// challengeRecord is a pending handshake entry.
type challengeRecord struct {
	id uuid.UUID // correlation id, carried into log lines for this handshake

	addr            Addr
	challenge       int32
	clientChallenge int32
	issuedAt        time.Time
	pingTime        time.Time
	connected       bool
	refused         bool
}

// challengeTable is a fixed-capacity LRU of pending handshakes, plus the
// leaky buckets that gate getchallenge requests. It is only ever touched
// from the tick goroutine.
type challengeTable struct {
	records []challengeRecord // insertion order, oldest first

	rng *rand.Rand

	perAddress *bucketSet    // 10 per 1000ms per address
	global     *rate.Limiter // 10 per 100ms, shared across all addresses
}

func newChallengeTable(seed int64) *challengeTable {
	return &challengeTable{
		records:    make([]challengeRecord, 0, maxChallenges),
		rng:        rand.New(rand.NewSource(seed)),
		perAddress: newBucketSet(10, 1000*time.Millisecond),
		global:     newLeakyBucket(10, 100*time.Millisecond),
	}
}

// nonce mixes two 16-bit random words with the current tick time so the
// resulting challenge is neither predictable across reboots nor replayable.
func (t *challengeTable) nonce(now time.Time) int32 {
	a := int32(t.rng.Uint32() & 0xFFFF)
	b := int32(t.rng.Uint32() & 0xFFFF)
	mixed := (a << 16) ^ b
	return mixed ^ int32(now.UnixMilli())
}

// countForAddress returns how many unconsumed (not connected) records exist
// for addr.
func (t *challengeTable) countForAddress(addr Addr) int {
	n := 0
	for i := range t.records {
		if t.records[i].addr == addr && !t.records[i].connected {
			n++
		}
	}
	return n
}

// findUnconsumed returns a pointer to an existing unconsumed record for
// addr, or nil.
func (t *challengeTable) findUnconsumed(addr Addr) *challengeRecord {
	for i := range t.records {
		if t.records[i].addr == addr && !t.records[i].connected {
			return &t.records[i]
		}
	}
	return nil
}

// findByChallenge locates the record matching addr and challenge, used by
// the acceptor to validate an inbound connect.
func (t *challengeTable) findByChallenge(addr Addr, challenge int32) *challengeRecord {
	for i := range t.records {
		if t.records[i].addr == addr && t.records[i].challenge == challenge {
			return &t.records[i]
		}
	}
	return nil
}

// evictOldest drops the record with the earliest issuedAt, freeing a slot
// for a fresh one once the table is at capacity.
func (t *challengeTable) evictOldest() {
	if len(t.records) == 0 {
		return
	}
	oldest := 0
	for i := range t.records {
		if t.records[i].issuedAt.Before(t.records[oldest].issuedAt) {
			oldest = i
		}
	}
	t.records = append(t.records[:oldest], t.records[oldest+1:]...)
}

// GetChallenge implements the anti-spoof handshake: issue a server-picked
// nonce bound to the sender's address so a forged source address cannot
// complete a connect. Returns the out-of-band reply to send, or nil to
// silently drop.
func (srv *Server) GetChallenge(from Addr, clientChallenge int32, gameName string, now time.Time) []byte {
	ct := srv.challenges

	if srv.cfg.SinglePlayer {
		return nil
	}

	if !ct.perAddress.Allow(from.IP) {
		return nil
	}
	if !ct.global.Allow() {
		return nil
	}

	if gameName != srv.cfg.GameName {
		return protocol.FormatOOB(fmt.Sprintf("print \"Game mismatch: this server is running %s\"\n", srv.cfg.GameName))
	}

	rec := ct.findUnconsumed(from)
	if rec == nil {
		if len(ct.records) >= maxChallenges || ct.countForAddress(from) >= maxChallengesPerAddress {
			ct.evictOldest()
		}
		ct.records = append(ct.records, challengeRecord{
			id:   uuid.New(),
			addr: from,
		})
		rec = &ct.records[len(ct.records)-1]
	}

	rec.clientChallenge = clientChallenge
	rec.challenge = ct.nonce(now)
	rec.issuedAt = now
	rec.pingTime = now

	srv.logger.Debug("issued challenge",
		"handshake", rec.id,
		"addr", from.String(),
		"challenge", rec.challenge,
	)

	return protocol.FormatOOB(fmt.Sprintf("challengeResponse %d %d %d\n", rec.challenge, clientChallenge, srv.cfg.Protocol))
}
