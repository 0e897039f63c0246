package bthost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emulab/bthost/internal/h4"
	"github.com/emulab/bthost/internal/rfcommfcs"
)

// lastACLPayload returns the L2CAP payload (post basic header) of the
// most recently transmitted ACL frame.
func lastACLPayload(t *testing.T, sent *[][]byte) []byte {
	t.Helper()
	require.NotEmpty(t, *sent)
	frame := (*sent)[len(*sent)-1]
	require.Equal(t, byte(h4.TypeACL), frame[0])
	dlen := h4.O.Uint16(frame[3:])
	l2capFrame := frame[5 : 5+int(dlen)]
	return l2capFrame[4:]
}

// TestRFCOMMClientConnectHandshake drives scenario S3 end to end: L2CAP
// carrier connect/configure, SABM on DLCI 0, MCC PN exchange, SABM on
// the data DLCI, UA — culminating in the success callback.
func TestRFCOMMClientConnectHandshake(t *testing.T) {
	h, sent := newTestHost()
	c := newTestConn(h, 0x0021)

	var result *bool
	h.ConnectRFCOMM(c, 3, func(success bool) { result = &success })

	// The carrier L2Conn must exist, pre-allocated with our own SCID;
	// its DCID is unbound (zero) until the peer's CONN_RSP arrives.
	require.Len(t, c.l2conns, 1)
	carrier := c.l2conns[0]
	assert.Equal(t, uint16(psmRFCOMM), carrier.PSM)
	assert.Equal(t, uint16(0), carrier.DCID)

	// Peer accepts the L2CAP connection.
	connRsp := make([]byte, 8)
	h4.O.PutUint16(connRsp[0:], 0x0099) // peer's dcid (our view: their allocation)
	h4.O.PutUint16(connRsp[2:], carrier.SCID)
	h4.O.PutUint16(connRsp[4:], 0) // result: success
	deliverL2CAP(h, c, cidSigBREDR, sigFrame(l2capConnRsp, 1, connRsp))
	assert.Equal(t, uint16(0x0099), carrier.DCID)

	// Peer's CONFIG_RSP(success) on the carrier must trigger SABM(dlci=0).
	// The response echoes back the DCID value our own CONFIG_REQ carried
	// (carrier.DCID, bound moments ago from the CONN_RSP).
	cfgRsp := make([]byte, 6)
	h4.O.PutUint16(cfgRsp[0:], carrier.DCID)
	h4.O.PutUint16(cfgRsp[2:], 0) // flags
	h4.O.PutUint16(cfgRsp[4:], 0) // result: success
	deliverL2CAP(h, c, cidSigBREDR, sigFrame(l2capConfigRsp, 2, cfgRsp))

	payload := lastACLPayload(t, sent)
	assert.Equal(t, byte(rfcommFrameSABM), payload[1])
	assert.Equal(t, uint8(0), payload[0]>>2, "SABM must target DLCI 0 (the multiplexer)")

	// Peer's UA(dlci=0) must trigger the MCC PN request. Inbound RFCOMM
	// frames on the carrier arrive addressed to OUR local CID
	// (carrier.SCID) — the mirror image of sendRFCOMMFrame addressing
	// carrier.DCID on the way out.
	ua0 := []byte{0x03 | 1, rfcommFrameUA, 0x01, 0}
	ua0[3] = rfcommfcs.Long(ua0[0:3])
	deliverL2CAP(h, c, carrier.SCID, ua0)

	payload = lastACLPayload(t, sent)
	assert.Equal(t, byte(rfcommFrameUIH), payload[1], "PN must ride inside a UIH frame on DLCI 0")

	// Peer's PN response (cr=0) must trigger SABM on the data DLCI (channel*2=6).
	pnRspMCC := []byte{mccTypeByte(mccPN, false), encodeRFCOMMLen(8)[0], 6, 0xF0, 7, 0, 255, 0, 0, 7}
	uihFrame := []byte{0x01, rfcommFrameUIH}
	uihFrame = append(uihFrame, encodeRFCOMMLen(len(pnRspMCC))...)
	uihFrame = append(uihFrame, pnRspMCC...)
	uihFrame = append(uihFrame, rfcommfcs.Short(uihFrame[0:2]))
	deliverL2CAP(h, c, carrier.SCID, uihFrame)

	payload = lastACLPayload(t, sent)
	assert.Equal(t, byte(rfcommFrameSABM), payload[1])
	assert.Equal(t, uint8(6), payload[0]>>2, "SABM must now target the data DLCI (channel*2)")

	// Peer's UA(dlci=6) completes the handshake successfully.
	ua6Addr := uint8(6)<<2 | 1<<1 | 0x01
	ua6 := []byte{ua6Addr, rfcommFrameUA, 0x01, 0}
	ua6[3] = rfcommfcs.Long(ua6[0:3])
	deliverL2CAP(h, c, carrier.SCID, ua6)

	require.NotNil(t, result)
	assert.True(t, *result)
	require.NotNil(t, c.findRcConnByChannel(3))
}

// TestRFCOMMDMAbortsConnect covers the rejection branch: a DM response
// to the multiplexer SABM must fail the pending connect with no panic.
func TestRFCOMMDMAbortsConnect(t *testing.T) {
	h, _ := newTestHost()
	c := newTestConn(h, 0x0022)

	var result *bool
	h.ConnectRFCOMM(c, 5, func(success bool) { result = &success })
	carrier := c.l2conns[0]

	connRsp := make([]byte, 8)
	h4.O.PutUint16(connRsp[0:], 0x00aa)
	h4.O.PutUint16(connRsp[2:], carrier.SCID)
	deliverL2CAP(h, c, cidSigBREDR, sigFrame(l2capConnRsp, 1, connRsp))
	cfgRsp := make([]byte, 6)
	h4.O.PutUint16(cfgRsp[0:], carrier.DCID)
	deliverL2CAP(h, c, cidSigBREDR, sigFrame(l2capConfigRsp, 2, cfgRsp))

	dm := []byte{0x03 | 1, rfcommFrameDM, 0x01, 0}
	dm[3] = rfcommfcs.Long(dm[0:3])
	deliverL2CAP(h, c, carrier.SCID, dm)

	require.NotNil(t, result)
	assert.False(t, *result)
	assert.Nil(t, h.pendingRFCOMM)
}

// TestRFCOMMFCSWiredIntoControlFrames is universal property 6: every
// control frame (SABM/UA/DM/DISC) sent by the Host carries the FCS
// computed over the 3 bytes {address, control, length}, and the FCS is sensitive to the
// DLCI it addresses.
func TestRFCOMMFCSWiredIntoControlFrames(t *testing.T) {
	h, sent := newTestHost()
	c := newTestConn(h, 0x0023)
	carrier := &L2Conn{SCID: 0x50, DCID: 0x60, PSM: psmRFCOMM}
	c.addL2Conn(carrier)

	h.sendRFCOMMFrame(c, carrier, 0, rfcommFrameSABM, nil)
	dlci0 := lastACLPayload(t, sent)
	require.Len(t, dlci0, 4)
	assert.Equal(t, rfcommfcs.Long(dlci0[0:3]), dlci0[3])

	h.sendRFCOMMFrame(c, carrier, 6, rfcommFrameSABM, nil)
	dlci6 := lastACLPayload(t, sent)
	require.Len(t, dlci6, 4)
	assert.Equal(t, rfcommfcs.Long(dlci6[0:3]), dlci6[3])
	assert.NotEqual(t, dlci0[3], dlci6[3], "FCS must depend on the address octet (DLCI)")
}

// TestRFCOMMFCSShortFormOnUIHFrames checks UIH data frames use the FCS
// computed over the 2 bytes {address, control}, distinct from control frames.
func TestRFCOMMFCSShortFormOnUIHFrames(t *testing.T) {
	h, sent := newTestHost()
	c := newTestConn(h, 0x0024)
	carrier := &L2Conn{SCID: 0x50, DCID: 0x60, PSM: psmRFCOMM}
	c.addL2Conn(carrier)

	h.sendRFCOMMFrame(c, carrier, 6, rfcommFrameUIH, []byte("hi"))
	payload := lastACLPayload(t, sent)
	fcs := payload[len(payload)-1]
	assert.Equal(t, rfcommfcs.Short(payload[0:2]), fcs)
}
