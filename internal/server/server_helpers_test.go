package server

import (
	"io"
	"log/slog"
	"net/netip"

	"arenacore/internal/config"
)

// mockGameModule records every hook invocation so tests can assert on
// ordering and arguments without pulling in a real gameplay module.
type mockGameModule struct {
	connectCalls    []int
	rejectSlot      map[int]string
	disconnectCalls []int
	beginCalls      []int
	userinfoCalls   []int
	thinkCalls      []UserCmd
	commandCalls    [][]string
}

func newMockGameModule() *mockGameModule {
	return &mockGameModule{rejectSlot: make(map[int]string)}
}

func (m *mockGameModule) ClientConnect(slot int, firstTime, isBot bool) (string, bool) {
	m.connectCalls = append(m.connectCalls, slot)
	if reason, reject := m.rejectSlot[slot]; reject {
		return reason, false
	}
	return "", true
}

func (m *mockGameModule) ClientDisconnect(slot int) {
	m.disconnectCalls = append(m.disconnectCalls, slot)
}

func (m *mockGameModule) ClientBegin(slot int) {
	m.beginCalls = append(m.beginCalls, slot)
}

func (m *mockGameModule) ClientUserinfoChanged(slot int) {
	m.userinfoCalls = append(m.userinfoCalls, slot)
}

func (m *mockGameModule) ClientThink(slot int, cmd UserCmd) {
	m.thinkCalls = append(m.thinkCalls, cmd)
}

func (m *mockGameModule) ClientCommand(slot int, args []string) {
	m.commandCalls = append(m.commandCalls, args)
}

type mockDemoRecorder struct {
	beginCalls []int
	stopCalls  []int
}

func (m *mockDemoRecorder) BeginRecording(slot int) { m.beginCalls = append(m.beginCalls, slot) }
func (m *mockDemoRecorder) StopRecording(slot int)  { m.stopCalls = append(m.stopCalls, slot) }

type mockHeartbeat struct {
	calls int
}

func (m *mockHeartbeat) Heartbeat() { m.calls++ }

type mockContentStore struct {
	cgame int32
	ui    int32
	paks  []int32
}

func (m *mockContentStore) CgameChecksum() int32  { return m.cgame }
func (m *mockContentStore) UIChecksum() int32     { return m.ui }
func (m *mockContentStore) PakChecksums() []int32 { return m.paks }

type mockOutbound struct {
	sent []sentDatagram
}

type sentDatagram struct {
	addr Addr
	data []byte
}

func (m *mockOutbound) Enqueue(addr Addr, data []byte) {
	m.sent = append(m.sent, sentDatagram{addr: addr, data: append([]byte(nil), data...)})
}

func testAddr(ip string, port uint16) Addr {
	return Addr{IP: netip.MustParseAddr(ip), Port: port}
}

func mustPrefix(s string) netip.Prefix {
	return netip.MustParsePrefix(s)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer() (*Server, *mockGameModule, *mockHeartbeat, *mockContentStore, *mockOutbound) {
	cfg := config.Default()
	cfg.MaxClients = 4
	cfg.Public = false // tests use non-LAN public-internet addresses deliberately

	game := newMockGameModule()
	hb := &mockHeartbeat{}
	content := &mockContentStore{cgame: 0xC, ui: 0xD, paks: []int32{0x11, 0x22}}
	out := &mockOutbound{}

	srv := NewServer(cfg, discardLogger(), game, hb, content, out)
	return srv, game, hb, content, out
}
