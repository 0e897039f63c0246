package bthost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emulab/bthost/internal/h4"
	"github.com/emulab/bthost/internal/hciopcode"
)

// attachSpy is an SMP stub that records the initiator flag Attach was
// called with, so handleConnectionComplete's role derivation can be
// observed directly.
type attachSpy struct {
	lastInitiator bool
	calls         int
}

func (s *attachSpy) Attach(handle uint16, initiator bool) SMPConn {
	s.lastInitiator = initiator
	s.calls++
	return nopSMPConn{}
}
func (s *attachSpy) DeliverSM(b []byte)                            {}
func (s *attachSpy) DeliverBREDRSM(b []byte)                       {}
func (s *attachSpy) Encrypted(mode uint8)                          {}
func (s *attachSpy) GetLTK(rand uint64, ediv uint16) ([16]byte, bool) { return [16]byte{}, false }

func connCompleteEvent(handle uint16, addr [6]byte, linkType, encEnabled uint8) []byte {
	body := make([]byte, 11)
	body[0] = 0 // status
	h4.O.PutUint16(body[1:], handle)
	h4.O.PutMAC(body[3:], addr)
	body[9] = linkType
	body[10] = encEnabled
	return append([]byte{0x04, byte(hciopcode.ConnectionComplete), byte(len(body))}, body...)
}

// TestConnectionCompleteInitiatorFollowsHciConnect covers the fix for
// hcievent.go's initiator derivation: issuing HciConnect must mark the
// resulting ACL Conn as the initiator side, independent of the event's
// Encryption_Enabled byte.
func TestConnectionCompleteInitiatorFollowsHciConnect(t *testing.T) {
	h, _ := newTestHost()
	spy := &attachSpy{}
	h.smp = spy

	h.HciConnect([6]byte{1, 2, 3, 4, 5, 6})
	assert.True(t, h.pendingConnect)

	h.ReceiveH4(connCompleteEvent(0x0001, [6]byte{1, 2, 3, 4, 5, 6}, 0x01, 0x00))

	require.Equal(t, 1, spy.calls)
	assert.True(t, spy.lastInitiator, "a Host-issued CREATE_CONN must make the resulting Conn the initiator")
	assert.False(t, h.pendingConnect, "pendingConnect must be consumed by the matching Connection Complete")
}

// TestConnectionCompleteInitiatorFalseForInboundConnection covers the
// other side of the same fix: a Connection Complete that was not
// preceded by HciConnect (the peer connected to us, via Accept
// Connection Request) must not be misreported as initiator.
func TestConnectionCompleteInitiatorFalseForInboundConnection(t *testing.T) {
	h, _ := newTestHost()
	spy := &attachSpy{}
	h.smp = spy

	// Encryption_Enabled=1 here would have previously been misread as
	// "initiator=false"; the point of the fix is that this byte is
	// irrelevant to role derivation either way.
	h.ReceiveH4(connCompleteEvent(0x0002, [6]byte{9, 9, 9, 9, 9, 9}, 0x01, 0x01))

	require.Equal(t, 1, spy.calls)
	assert.False(t, spy.lastInitiator, "a peer-initiated connection must not be reported as the initiator side")
}

// TestConnectionCompleteClearsPendingConnectOnFailure ensures a failed
// Connection Complete still consumes pendingConnect, so a later,
// unrelated inbound connection isn't mistakenly tagged initiator.
func TestConnectionCompleteClearsPendingConnectOnFailure(t *testing.T) {
	h, _ := newTestHost()
	h.HciConnect([6]byte{1, 2, 3, 4, 5, 6})

	failed := connCompleteEvent(0x0003, [6]byte{1, 2, 3, 4, 5, 6}, 0x01, 0x00)
	failed[3] = 0x0f // status: non-zero (page timeout)
	h.ReceiveH4(failed)

	assert.False(t, h.pendingConnect)
}

// TestConnectionRequestAlwaysRequestsMasterRole covers the fix for
// handleConnectionRequest: it must always send Role=0x00 ("become
// master") in Accept Connection Request, matching bthost.c's
// evt_conn_request, regardless of the inbound event's Link_Type byte.
func TestConnectionRequestAlwaysRequestsMasterRole(t *testing.T) {
	h, sent := newTestHost()

	body := make([]byte, 10)
	addr := [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	h4.O.PutMAC(body[0:], addr)
	body[9] = 0x01 // Link_Type: ACL
	evt := append([]byte{0x04, byte(hciopcode.ConnectionRequest), byte(len(body))}, body...)
	h.ReceiveH4(evt)

	require.NotEmpty(t, *sent)
	frame := (*sent)[len(*sent)-1]
	opcode := uint16(frame[1]) | uint16(frame[2])<<8
	require.Equal(t, uint16(hciopcode.AcceptConnReq), opcode)
	payload := frame[4:]
	assert.Equal(t, addr, h4.O.MAC(payload[0:6]))
	assert.Equal(t, uint8(0x00), payload[6], "role must always be 0x00 (become master), never aliased from Link_Type")
}
