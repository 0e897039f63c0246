package bthost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emulab/bthost/internal/hciopcode"
)

// newTestHost builds a Host wired to a slice-backed send capture, the
// way the teacher's testL2CShim captures writes without a real socket.
func newTestHost() (*Host, *[][]byte) {
	h := New()
	var sent [][]byte
	h.SetSendHandler(func(frame []byte) error {
		sent = append(sent, append([]byte(nil), frame...))
		return nil
	})
	return h, &sent
}

func TestStartQueuesBehindInitialCredit(t *testing.T) {
	h, sent := newTestHost()

	h.Start()

	// ncmd starts at 1 (spec §3): RESET transmits immediately, the other
	// two queue.
	require.Len(t, *sent, 1)
	assert.Equal(t, byte(0x01), (*sent)[0][0], "RESET must go out as an HCI command packet")
	assert.Len(t, h.cmdQueue, 2)
}

func TestCommandCompleteRefreshesCreditAndDrainsFIFO(t *testing.T) {
	h, sent := newTestHost()
	h.Start()
	require.Len(t, *sent, 1)

	// Command Complete(ncmd=2, RESET, status=0): h4 EVT type, event code
	// 0x0e, plen=4, then {ncmd, opcode_lo, opcode_hi, status}.
	evt := []byte{0x04, 0x0e, 0x04,
		0x02, byte(hciopcode.Reset), byte(hciopcode.Reset >> 8), 0x00}
	h.ReceiveH4(evt)

	// Both queued commands (READ_LOCAL_FEATURES, READ_BD_ADDR) must now
	// have been sent, preserving FIFO order, consuming exactly one credit
	// each (universal property 2).
	require.Len(t, *sent, 3)
	gotOp2 := uint16((*sent)[1][1]) | uint16((*sent)[1][2])<<8
	gotOp3 := uint16((*sent)[2][1]) | uint16((*sent)[2][2])<<8
	assert.Equal(t, uint16(hciopcode.ReadLocalFeatures), gotOp2)
	assert.Equal(t, uint16(hciopcode.ReadBDAddr), gotOp3)
	assert.Empty(t, h.cmdQueue)
}

func TestReadBDAddrCompletionMarksReadyAndFiresCallback(t *testing.T) {
	h, _ := newTestHost()
	h.ncmd = 3 // let all three Start() commands transmit at once
	h.Start()

	fired := false
	h.OnReady(func() { fired = true })
	assert.False(t, h.Ready())

	addr := [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	// return params: status(1) + address(6), address transmitted
	// least-significant-octet-first.
	params := []byte{0, addr[5], addr[4], addr[3], addr[2], addr[1], addr[0]}

	body := append([]byte{0x01, byte(hciopcode.ReadBDAddr), byte(hciopcode.ReadBDAddr >> 8)}, params...)
	evt := append([]byte{0x04, 0x0e, byte(len(body))}, body...)
	h.ReceiveH4(evt)

	assert.True(t, h.Ready())
	assert.True(t, fired)
	assert.Equal(t, addr, h.BDAddr())
}

func TestDestroyCancelsPendingL2CAPRequests(t *testing.T) {
	h, _ := newTestHost()
	var gotCode uint8
	var called bool
	h.l2reqs = append(h.l2reqs, &l2capPendingRequest{
		Ident: 1,
		Callback: func(code uint8, data []byte, user interface{}) {
			called = true
			gotCode = code
		},
	})

	h.Destroy()

	assert.True(t, called)
	assert.Equal(t, uint8(0), gotCode)
	assert.Empty(t, h.l2reqs)
}
