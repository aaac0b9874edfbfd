package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arenacore/internal/protocol"
)

func issueChallenge(t *testing.T, srv *Server, from Addr, now time.Time) int32 {
	t.Helper()
	reply := srv.GetChallenge(from, 1, srv.cfg.GameName, now)
	require.NotNil(t, reply)
	rec := srv.challenges.findUnconsumed(from)
	require.NotNil(t, rec)
	return rec.challenge
}

func connectUserinfo(challenge int32, qport int) string {
	info := ""
	info = protocol.InfoSetValueForKey(info, "protocol", "68")
	info = protocol.InfoSetValueForKey(info, "challenge", fmt.Sprintf("%d", challenge))
	info = protocol.InfoSetValueForKey(info, "qport", fmt.Sprintf("%d", qport))
	info = protocol.InfoSetValueForKey(info, "name", "Player")
	return info
}

func TestDirectConnect_HappyPath(t *testing.T) {
	srv, game, _, _, _ := newTestServer()
	from := testAddr("203.0.113.20", 27960)
	now := time.Now()

	challenge := issueChallenge(t, srv, from, now)
	reply := srv.DirectConnect(from, connectUserinfo(challenge, 1234), now)
	require.NotNil(t, reply)

	cmd, rest := protocol.ParseOOB(reply)
	assert.Equal(t, "connectResponse", cmd)
	assert.Contains(t, rest, fmt.Sprintf("%d", challenge))

	assert.Equal(t, StateConnected, srv.slots[0].State())
	assert.Equal(t, []int{0}, game.connectCalls)
}

func TestDirectConnect_BadChallengeRejected(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	from := testAddr("203.0.113.21", 27960)
	now := time.Now()

	reply := srv.DirectConnect(from, connectUserinfo(99999, 1), now)
	require.NotNil(t, reply)
	cmd, _ := protocol.ParseOOB(reply)
	assert.Equal(t, "print", cmd)
	assert.Equal(t, StateFree, srv.slots[0].State())
}

func TestDirectConnect_ProtocolMismatch(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	from := testAddr("203.0.113.22", 27960)
	now := time.Now()

	challenge := issueChallenge(t, srv, from, now)
	info := connectUserinfo(challenge, 1)
	info = protocol.InfoSetValueForKey(info, "protocol", "1")

	reply := srv.DirectConnect(from, info, now)
	require.NotNil(t, reply)
	cmd, _ := protocol.ParseOOB(reply)
	assert.Equal(t, "print", cmd)
}

func TestDirectConnect_Banned(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	from := testAddr("203.0.113.23", 27960)
	srv.bans.Replace([]banEntry{{CIDR: mustPrefix("203.0.113.23/32")}})

	reply := srv.DirectConnect(from, connectUserinfo(1, 1), time.Now())
	require.NotNil(t, reply)
	cmd, rest := protocol.ParseOOB(reply)
	assert.Equal(t, "print", cmd)
	assert.Contains(t, rest, "banned")
}

func TestDirectConnect_ReconnectCooldown(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	srv.cfg.ReconnectCooldown = 5
	from := testAddr("203.0.113.24", 27960)
	now := time.Now()

	challenge := issueChallenge(t, srv, from, now)
	reply := srv.DirectConnect(from, connectUserinfo(challenge, 1), now)
	require.NotNil(t, reply)

	// Second attempt moments later, still within cooldown: silently dropped.
	challenge2 := issueChallenge(t, srv, from, now.Add(2*time.Second))
	reply2 := srv.DirectConnect(from, connectUserinfo(challenge2, 1), now.Add(2*time.Second))
	assert.Nil(t, reply2)

	// Past the cooldown: reuses the same slot index.
	challenge3 := issueChallenge(t, srv, from, now.Add(6*time.Second))
	reply3 := srv.DirectConnect(from, connectUserinfo(challenge3, 1), now.Add(6*time.Second))
	require.NotNil(t, reply3)
	assert.Equal(t, 0, srv.slots[0].index)
	assert.Equal(t, StateConnected, srv.slots[0].State())
}

func TestDirectConnect_ServerFull(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	now := time.Now()

	for i := 0; i < srv.cfg.MaxClients; i++ {
		from := testAddr(fmt.Sprintf("203.0.113.%d", 30+i), 27960)
		challenge := issueChallenge(t, srv, from, now)
		reply := srv.DirectConnect(from, connectUserinfo(challenge, 1000+i), now)
		require.NotNil(t, reply)
	}

	from := testAddr("203.0.113.99", 27960)
	challenge := issueChallenge(t, srv, from, now)
	reply := srv.DirectConnect(from, connectUserinfo(challenge, 9999), now)
	require.NotNil(t, reply)
	cmd, rest := protocol.ParseOOB(reply)
	assert.Equal(t, "print", cmd)
	assert.Contains(t, rest, "full")
}
