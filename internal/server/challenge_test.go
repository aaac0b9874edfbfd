package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arenacore/internal/protocol"
)

func TestGetChallenge_HappyPath(t *testing.T) {
	srv, _, _, _, out := newTestServer()
	from := testAddr("203.0.113.10", 27960)

	reply := srv.GetChallenge(from, 42, srv.cfg.GameName, time.Now())
	require.NotNil(t, reply)

	cmd, rest := protocol.ParseOOB(reply)
	assert.Equal(t, "challengeResponse", cmd)
	assert.Contains(t, rest, "42")
	assert.Len(t, out.sent, 0, "GetChallenge returns the reply; the caller enqueues it")
}

func TestGetChallenge_GameNameMismatch(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	from := testAddr("203.0.113.11", 27960)

	reply := srv.GetChallenge(from, 1, "WrongGame", time.Now())
	require.NotNil(t, reply)
	cmd, _ := protocol.ParseOOB(reply)
	assert.Equal(t, "print", cmd)
}

func TestGetChallenge_RateLimited(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	from := testAddr("203.0.113.12", 27960)
	now := time.Now()

	accepted := 0
	for i := 0; i < 30; i++ {
		if srv.GetChallenge(from, int32(i), srv.cfg.GameName, now) != nil {
			accepted++
		}
	}
	// Bounded by both the per-address bucket (10/1000ms) and the global
	// bucket (10/100ms); either way strictly fewer than 30 get through.
	assert.Less(t, accepted, 30)
	assert.Greater(t, accepted, 0)
}

func TestGetChallenge_SinglePlayerRefusesSilently(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	srv.cfg.SinglePlayer = true
	from := testAddr("203.0.113.13", 27960)

	reply := srv.GetChallenge(from, 7, srv.cfg.GameName, time.Now())
	assert.Nil(t, reply)
}

func TestChallengeTable_EvictsOldestWhenFull(t *testing.T) {
	ct := newChallengeTable(1)
	base := time.Now()
	for i := 0; i < maxChallenges+5; i++ {
		ct.records = append(ct.records, challengeRecord{
			addr:     Addr{Port: uint16(i)},
			issuedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
	}
	assert.Greater(t, len(ct.records), maxChallenges)
	ct.evictOldest()
	for _, r := range ct.records {
		assert.NotEqual(t, base, r.issuedAt)
	}
}
