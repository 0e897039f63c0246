package bthost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emulab/bthost/internal/h4"
)

func sigFrame(code, ident uint8, payload []byte) []byte {
	frame := make([]byte, 4+len(payload))
	frame[0] = code
	frame[1] = ident
	h4.O.PutUint16(frame[2:], uint16(len(payload)))
	copy(frame[4:], payload)
	return frame
}

func deliverL2CAP(h *Host, c *Conn, cid uint16, payload []byte) {
	l2capFrame := make([]byte, 4+len(payload))
	h4.O.PutUint16(l2capFrame[0:], uint16(len(payload)))
	h4.O.PutUint16(l2capFrame[2:], cid)
	copy(l2capFrame[4:], payload)

	frame := make([]byte, 1+4+len(l2capFrame))
	frame[0] = byte(h4.TypeACL)
	h4.O.PutUint16(frame[1:], packHandle(c.Handle, 0x00))
	h4.O.PutUint16(frame[3:], uint16(len(l2capFrame)))
	copy(frame[5:], l2capFrame)
	h.ReceiveH4(frame)
}

// lastSigPDU extracts the most recently transmitted L2CAP signaling PDU
// {code, ident, payload} from a captured ACL frame on the BR/EDR
// signaling channel.
func lastSigPDU(t *testing.T, sent *[][]byte) (code, ident uint8, payload []byte) {
	t.Helper()
	require.NotEmpty(t, *sent)
	frame := (*sent)[len(*sent)-1]
	require.Equal(t, byte(h4.TypeACL), frame[0])
	dlen := h4.O.Uint16(frame[3:])
	l2capFrame := frame[5 : 5+int(dlen)]
	cid := h4.O.Uint16(l2capFrame[2:])
	require.Equal(t, uint16(cidSigBREDR), cid)
	sig := l2capFrame[4:]
	return sig[0], sig[1], sig[4:]
}

// TestBREDRServerPSMEchoRoundTrip drives scenario S1: a peer connects to
// a registered PSM, the Host accepts and configures it, and data sent
// afterward on the resulting CID goes out as an ACL frame.
func TestBREDRServerPSMEchoRoundTrip(t *testing.T) {
	h, sent := newTestHost()
	c := newTestConn(h, 0x0011)

	var connected *L2Conn
	h.AddL2capServerCustom(0x1001, 0, 0, 0, func(conn *Conn, l *L2Conn) {
		connected = l
	}, nil)

	connReq := make([]byte, 4)
	h4.O.PutUint16(connReq[0:], 0x1001) // psm
	h4.O.PutUint16(connReq[2:], 0x0050) // peer scid
	deliverL2CAP(h, c, cidSigBREDR, sigFrame(l2capConnReq, 7, connReq))

	require.NotNil(t, connected)
	assert.Equal(t, uint16(0x0050), connected.DCID)

	code, _, payload := lastSigPDU(t, sent)
	assert.Equal(t, uint8(l2capConfigReq), code, "accepting a CONN_REQ must kick off configuration")
	assert.NotEmpty(t, payload)

	// Peer's CONFIG_REQ must draw a CONFIG_RSP(success).
	cfgReq := make([]byte, 2)
	h4.O.PutUint16(cfgReq[0:], connected.SCID)
	deliverL2CAP(h, c, cidSigBREDR, sigFrame(l2capConfigReq, 8, cfgReq))

	code, _, payload = lastSigPDU(t, sent)
	require.Equal(t, uint8(l2capConfigRsp), code)
	result := h4.O.Uint16(payload[4:])
	assert.Equal(t, uint16(0), result)

	// Now send 8 bytes over the established CID; it must reach the wire
	// as an ACL frame on the expected handle.
	before := len(*sent)
	h.SendCid(c, connected.SCID, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.Greater(t, len(*sent), before)
	out := (*sent)[len(*sent)-1]
	assert.Equal(t, byte(h4.TypeACL), out[0])
}

// TestLEServerPSMRejectsUnknownPSM covers the negative branch of the LE
// COC server path.
func TestLEServerPSMRejectsUnknownPSM(t *testing.T) {
	h, sent := newTestHost()
	c := newTestConn(h, 0x0012)

	req := make([]byte, 10)
	h4.O.PutUint16(req[0:], 0x00ff) // unregistered psm
	h4.O.PutUint16(req[2:], 0x0060)
	h4.O.PutUint16(req[8:], 1)
	deliverL2CAP(h, c, cidSigLE, sigFrame(l2capLEConnReq, 3, req))

	require.NotEmpty(t, *sent)
	frame := (*sent)[len(*sent)-1]
	dlen := h4.O.Uint16(frame[3:])
	l2capFrame := frame[5 : 5+int(dlen)]
	sig := l2capFrame[4:]
	require.Equal(t, uint8(l2capLEConnRsp), sig[0])
	result := h4.O.Uint16(sig[4+8:])
	assert.Equal(t, uint16(0x0002), result)
}

// TestCreditModeSDUReassembly exercises scenario S2 and universal
// property 5: a multi-fragment credit-based SDU reassembles to exactly
// the bytes sent, and one flow-control credit is returned per fragment.
func TestCreditModeSDUReassembly(t *testing.T) {
	h, sent := newTestHost()
	c := newTestConn(h, 0x0013)

	h.AddL2capServerCustom(0x0080, 0, 0, 0, nil, nil)
	req := make([]byte, 10)
	h4.O.PutUint16(req[0:], 0x0080)
	h4.O.PutUint16(req[2:], 0x0070) // peer scid
	h4.O.PutUint16(req[8:], 3)      // peer credits
	deliverL2CAP(h, c, cidSigLE, sigFrame(l2capLEConnReq, 9, req))

	l2 := c.findL2ConnByDCID(0x0070)
	require.NotNil(t, l2)

	var delivered []byte
	c.AddCidHook(l2.SCID, func(b []byte) { delivered = append([]byte(nil), b...) }, nil, nil)

	sdu := []byte("this message spans two credit-mode PDUs")
	sduHeader := make([]byte, 2)
	h4.O.PutUint16(sduHeader, uint16(len(sdu)))
	first := append(sduHeader, sdu[:20]...)
	second := sdu[20:]

	creditsBefore := len(*sent)
	deliverL2CAP(h, c, l2.SCID, first)
	assert.Nil(t, delivered, "must not deliver before the SDU is complete")
	assert.Greater(t, len(*sent), creditsBefore, "each fragment must draw an LE_FLOWCTL_CREDS")

	deliverL2CAP(h, c, l2.SCID, second)
	assert.Equal(t, sdu, delivered)
}
