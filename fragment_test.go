package bthost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emulab/bthost/internal/h4"
)

func newTestConn(h *Host, handle uint16) *Conn {
	c := newConn(handle, kindACL, [6]byte{1, 2, 3, 4, 5, 6}, AddrBREDR)
	h.conns[handle] = c
	return c
}

// TestSendCidFragmentsWhenOverMTU exercises universal property 1: the
// concatenation of ACL fragment payloads reconstitutes the exact bytes
// sent, in order.
func TestSendCidFragmentsWhenOverMTU(t *testing.T) {
	h, sent := newTestHost()
	h.SetACLMTU(10) // force multiple fragments for a small payload
	c := newTestConn(h, 0x0042)

	payload := []byte("0123456789ABCDEF") // 16 bytes, plus 4-byte L2CAP header = 20
	h.SendCid(c, 0x0044, payload)

	require.GreaterOrEqual(t, len(*sent), 2, "expected the L2CAP frame to split across multiple ACL fragments")

	var reassembled []byte
	for i, frame := range *sent {
		require.Equal(t, byte(h4.TypeACL), frame[0])
		hf := h4.O.Uint16(frame[1:])
		pb := uint8((hf >> 12) & 0x3)
		if i == 0 {
			assert.Equal(t, uint8(0x00), pb, "first fragment must carry PB=start")
		} else {
			assert.Equal(t, uint8(0x01), pb, "continuation fragments must carry PB=continuation")
		}
		dlen := h4.O.Uint16(frame[3:])
		chunk := frame[5 : 5+int(dlen)]
		reassembled = append(reassembled, chunk...)
	}

	length := h4.O.Uint16(reassembled[0:])
	cid := h4.O.Uint16(reassembled[2:])
	assert.Equal(t, uint16(len(payload)), length)
	assert.Equal(t, uint16(0x0044), cid)
	assert.Equal(t, payload, reassembled[4:])
}

// TestSendCidVConcatenatesBuffers checks the vectored form produces the
// same wire bytes as pre-joining the pieces.
func TestSendCidVConcatenatesBuffers(t *testing.T) {
	h, sent := newTestHost()
	c := newTestConn(h, 0x0042)

	h.SendCidV(c, 0x0044, [][]byte{[]byte("ab"), []byte("cd"), []byte("ef")})

	require.Len(t, *sent, 1)
	frame := (*sent)[0]
	dlen := h4.O.Uint16(frame[3:])
	data := frame[5 : 5+int(dlen)]
	assert.Equal(t, []byte("abcdef"), data[4:])
}

// TestSendCidOnNilConnIsNoOp covers the nil half of scenario S6: a nil
// Conn (what a lookup of an unknown handle yields) must not panic or
// emit traffic. The torn-down Conn case is in teardown_test.go.
func TestSendCidOnNilConnIsNoOp(t *testing.T) {
	h, sent := newTestHost()
	h.SendCid(nil, 0x0044, []byte("x"))
	assert.Empty(t, *sent)
}

// TestReceiveACLReassemblesContinuationFragments exercises the inbound
// half of universal property 1, driving a fragmented ACL PDU through
// ReceiveH4 and observing the routed L2CAP payload via a CID hook.
func TestReceiveACLReassemblesContinuationFragments(t *testing.T) {
	h, _ := newTestHost()
	c := newTestConn(h, 0x0042)

	var got []byte
	c.AddCidHook(0x0044, func(b []byte) { got = append([]byte(nil), b...) }, nil, nil)

	l2capPayload := []byte("hello, rfcomm carrier")
	l2capFrame := make([]byte, 4+len(l2capPayload))
	h4.O.PutUint16(l2capFrame[0:], uint16(len(l2capPayload)))
	h4.O.PutUint16(l2capFrame[2:], 0x0044)
	copy(l2capFrame[4:], l2capPayload)

	first := l2capFrame[:6]
	rest := l2capFrame[6:]

	startFrame := make([]byte, 1+4+len(first))
	startFrame[0] = byte(h4.TypeACL)
	h4.O.PutUint16(startFrame[1:], packHandle(c.Handle, 0x00))
	h4.O.PutUint16(startFrame[3:], uint16(len(first)))
	copy(startFrame[5:], first)
	h.ReceiveH4(startFrame)

	assert.Nil(t, got, "must not deliver until reassembly completes")

	contFrame := make([]byte, 1+4+len(rest))
	contFrame[0] = byte(h4.TypeACL)
	h4.O.PutUint16(contFrame[1:], packHandle(c.Handle, 0x01))
	h4.O.PutUint16(contFrame[3:], uint16(len(rest)))
	copy(contFrame[5:], rest)
	h.ReceiveH4(contFrame)

	assert.Equal(t, l2capPayload, got)
}
