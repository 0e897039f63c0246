package bthost

import (
	"github.com/rs/xid"

	"github.com/emulab/bthost/internal/h4"
)

// L2CAP signaling codes, shared by the BR/EDR (CID 0x0001) and LE
// (CID 0x0005) signaling channels, per the teacher's const-block +
// name-map convention (linux/event.go's eventCode/eventName).
const (
	l2capCmdReject      = 0x01
	l2capConnReq        = 0x02
	l2capConnRsp        = 0x03
	l2capConfigReq      = 0x04
	l2capConfigRsp      = 0x05
	l2capDisconnReq     = 0x06
	l2capDisconnRsp     = 0x07
	l2capEchoReq        = 0x08
	l2capEchoRsp        = 0x09
	l2capInfoReq        = 0x0A
	l2capInfoRsp        = 0x0B
	l2capConnParamReq   = 0x12
	l2capConnParamRsp   = 0x13
	l2capLEConnReq      = 0x14
	l2capLEConnRsp      = 0x15
	l2capLEFlowCtlCreds = 0x16
	l2capEcredConnReq   = 0x17
	l2capEcredConnRsp   = 0x18
	l2capEcredReconfReq = 0x19
	l2capEcredReconfRsp = 0x1A
)

// L2CAP INFO_REQ/RSP info-type values (spec §4.5).
const (
	l2capInfoConnlessMTU = 0x0001
	l2capInfoFeatMask    = 0x0002
	l2capInfoFixedChan   = 0x0003
)

const (
	l2capFixedChanBitSig = 1 << 1 // bit 1: signaling, BR/EDR
	l2capFixedChanBitSMP = 1 << 7 // bit 7: SMP, BR/EDR
	l2capFeatMaskFixed   = 0x80   // FIXED_CHAN feature bit
)

const (
	cidSigBREDR = 0x0001
	cidSMPBREDR = 0x0007
	cidSigLE    = 0x0005
	cidSMPLE    = 0x0006
	psmRFCOMM   = 0x0003
)

// l2capServer is one registered PSM, per spec §6's add_l2cap_server_custom.
type l2capServer struct {
	PSM        uint16
	MTU, MPS   uint16
	Credits    uint16
	ConnectCB  func(c *Conn, l *L2Conn)
	DisconnCB  func(c *Conn, l *L2Conn)
}

// l2capPendingRequest is one outstanding host-originated sig request
// awaited by the generic response matcher (spec §4.5's last paragraph,
// §8 property 3). TraceID is a correlation id for trace logs only —
// never a protocol field — grounded on runZeroInc-sockstats' use of
// xid for request correlation.
type l2capPendingRequest struct {
	Ident    uint8
	Conn     *Conn
	Callback func(code uint8, data []byte, user interface{})
	User     interface{}
	TraceID  string
}

// pendingRFCOMMConn tracks the single in-flight client-initiated RFCOMM
// channel open (spec §4.7's client path), keyed on the carrier Conn.
type pendingRFCOMMConn struct {
	Conn     *Conn
	Channel  uint8
	SCID     uint16
	Callback func(success bool)
	stage    rfcommConnectStage
}

type rfcommConnectStage uint8

const (
	stageAwaitCarrier rfcommConnectStage = iota
	stageAwaitMuxUA
	stageAwaitPNRsp
	stageAwaitChanUA
)

// nextIdent returns the next host-originated sig ident, a monotonic
// counter that skips zero (spec §4.5).
func (h *Host) nextIdent() uint8 {
	h.l2identSeq++
	if h.l2identSeq == 0 {
		h.l2identSeq = 1
	}
	return h.l2identSeq
}

// sendSigPDU wraps one signaling payload in the {code, ident, len,
// payload} header and transmits it on the given fixed CID.
func (h *Host) sendSigPDU(conn *Conn, cid uint16, code uint8, ident uint8, payload []byte) {
	frame := make([]byte, 4+len(payload))
	frame[0] = code
	frame[1] = ident
	h4.O.PutUint16(frame[2:], uint16(len(payload)))
	copy(frame[4:], payload)
	h.sendL2CAPFrame(conn, cid, frame)
}

// sendInfoReq emits INFO_REQ(infoType) on the BR/EDR signaling channel,
// per spec §4.3's post-connection-complete step and §4.5.
func (h *Host) sendInfoReq(conn *Conn, infoType uint16, ident uint8) {
	payload := make([]byte, 2)
	h4.O.PutUint16(payload, infoType)
	h.sendSigPDU(conn, cidSigBREDR, l2capInfoReq, ident, payload)
}

// L2capReq sends an arbitrary signaling PDU and registers a pending
// request so the generic response matcher can deliver the reply, per
// spec §6's l2cap_req and §4.5's last paragraph.
func (h *Host) L2capReq(conn *Conn, code uint8, payload []byte, cb func(code uint8, data []byte, user interface{}), user interface{}) {
	cid := uint16(cidSigBREDR)
	switch code {
	case l2capConnParamReq, l2capConnParamRsp, l2capLEConnReq, l2capLEConnRsp,
		l2capLEFlowCtlCreds, l2capEcredConnReq, l2capEcredConnRsp,
		l2capEcredReconfReq, l2capEcredReconfRsp:
		cid = cidSigLE
	}
	ident := h.nextIdent()
	req := &l2capPendingRequest{Ident: ident, Conn: conn, Callback: cb, User: user, TraceID: xid.New().String()}
	h.l2reqs = append(h.l2reqs, req)
	h.log.WithField("ident", ident).WithField("trace_id", req.TraceID).Trace("bthost: L2CAP request sent")
	h.sendSigPDU(conn, cid, code, ident, payload)
}

// AddL2capServerCustom registers a PSM, per spec §6.
func (h *Host) AddL2capServerCustom(psm, mtu, mps, credits uint16, connectCB, disconnCB func(c *Conn, l *L2Conn)) {
	h.l2servers[psm] = &l2capServer{PSM: psm, MTU: mtu, MPS: mps, Credits: credits, ConnectCB: connectCB, DisconnCB: disconnCB}
}

// matchPendingRequest finds and removes the first l2reqs entry with a
// matching ident, per spec §4.5/§8 property 3 (uniqueness implies this
// is always at most one match).
func (h *Host) matchPendingRequest(ident uint8) *l2capPendingRequest {
	for i, req := range h.l2reqs {
		if req.Ident == ident {
			h.l2reqs = append(h.l2reqs[:i], h.l2reqs[i+1:]...)
			return req
		}
	}
	return nil
}

// routeL2CAP dispatches one reassembled L2CAP payload by CID: the two
// fixed signaling channels, the two fixed SMP channels (handed to the
// external collaborator per spec §1), or a dynamic channel.
func (h *Host) routeL2CAP(conn *Conn, cid uint16, payload []byte) {
	switch cid {
	case cidSigBREDR:
		h.handleL2CAPSig(conn, cidSigBREDR, payload)
	case cidSigLE:
		h.handleL2CAPSig(conn, cidSigLE, payload)
	case cidSMPBREDR:
		if conn.smp != nil {
			conn.smp.DeliverBREDRSM(payload)
		}
	case cidSMPLE:
		if conn.smp != nil {
			conn.smp.DeliverSM(payload)
		}
	default:
		h.routeDataCID(conn, cid, payload)
	}
}

// routeDataCID handles a dynamic CID: credit-based SDU reassembly,
// RFCOMM carrier data, or a plain CID hook, per spec §4.6/§4.7/§4.8.
func (h *Host) routeDataCID(conn *Conn, cid uint16, payload []byte) {
	l2 := conn.findL2ConnBySCID(cid)
	if l2 != nil {
		switch l2.Mode {
		case ModeLECreditBased, ModeLEEnhancedCreditBased:
			h.handleCreditSDU(conn, l2, payload)
			return
		}
		if l2.PSM == psmRFCOMM {
			h.handleRFCOMMFrame(conn, l2, payload)
			return
		}
	}
	if hook, ok := conn.cidHooks[cid]; ok {
		hook.Handler(payload)
		return
	}
	h.log.WithField("cid", cid).Trace("bthost: data for unknown CID, dropped")
}

// handleL2CAPSig decodes the {code, ident, len, payload} signaling
// header and dispatches by code, per spec §4.5/§4.6. A malformed header
// or length mismatch draws CMD_REJECT with an empty reason, per spec §7.
func (h *Host) handleL2CAPSig(conn *Conn, cid uint16, b []byte) {
	if len(b) < 4 {
		h.log.Debug("bthost: malformed L2CAP sig header")
		var ident uint8
		if len(b) >= 2 {
			ident = b[1]
		}
		h.sendSigPDU(conn, cid, l2capCmdReject, ident, nil)
		return
	}
	code := b[0]
	ident := b[1]
	plen := h4.O.Uint16(b[2:])
	data := b[4:]
	if int(plen) != len(data) {
		h.sendSigPDU(conn, cid, l2capCmdReject, ident, nil)
		return
	}

	switch code {
	case l2capCmdReject, l2capConnRsp, l2capConfigRsp, l2capDisconnRsp,
		l2capEchoRsp, l2capInfoRsp, l2capConnParamRsp, l2capLEConnRsp,
		l2capEcredConnRsp, l2capEcredReconfRsp:
		if req := h.matchPendingRequest(ident); req != nil && req.Callback != nil {
			req.Callback(code, data, req.User)
		}
	}

	switch code {
	case l2capConnReq:
		h.handleConnReq(conn, ident, data)
	case l2capConnRsp:
		h.handleConnRsp(conn, ident, data)
	case l2capConfigReq:
		h.handleConfigReq(conn, ident, data)
	case l2capConfigRsp:
		h.handleConfigRsp(conn, ident, data)
	case l2capDisconnReq:
		h.handleDisconnReq(conn, ident, data)
	case l2capInfoReq:
		h.handleInfoReq(conn, cid, ident, data)
	case l2capInfoRsp:
		h.handleInfoRsp(conn, data)
	case l2capConnParamReq:
		h.handleConnParamReq(conn, ident, data)
	case l2capLEConnReq:
		h.handleLEConnReq(conn, ident, data)
	case l2capEcredConnReq:
		h.handleEcredConnReq(conn, ident, data)
	default:
		h.log.WithField("code", code).Trace("bthost: unhandled L2CAP sig code, ignored")
	}
}

// handleConnReq implements the BR/EDR server path (spec §4.5): look up
// the PSM, allocate a fresh local CID, reply, configure, and notify.
func (h *Host) handleConnReq(conn *Conn, ident uint8, data []byte) {
	if len(data) < 4 {
		return
	}
	psm := h4.O.Uint16(data[0:])
	peerSCID := h4.O.Uint16(data[2:])

	server, ok := h.l2servers[psm]
	if !ok {
		rsp := make([]byte, 8)
		h4.O.PutUint16(rsp[0:], 0)        // dcid: none allocated
		h4.O.PutUint16(rsp[2:], peerSCID) // scid echoed
		h4.O.PutUint16(rsp[4:], 0x0002)   // PSM not supported
		h.sendSigPDU(conn, cidSigBREDR, l2capConnRsp, ident, rsp)
		return
	}

	ourCID := conn.allocCID()
	l2 := &L2Conn{SCID: ourCID, DCID: peerSCID, PSM: psm, Mode: ModeOther}
	conn.addL2Conn(l2)

	rsp := make([]byte, 8)
	h4.O.PutUint16(rsp[0:], ourCID)
	h4.O.PutUint16(rsp[2:], peerSCID)
	h4.O.PutUint16(rsp[4:], 0) // result: success
	h.sendSigPDU(conn, cidSigBREDR, l2capConnRsp, ident, rsp)

	h.sendConfigReq(conn, l2)

	if server.ConnectCB != nil {
		server.ConnectCB(conn, l2)
	}
}

// handleConnRsp implements the BR/EDR client path (spec §4.5): find the
// L2Conn by our own pre-allocated SCID, bind the peer's DCID, and
// configure on success.
func (h *Host) handleConnRsp(conn *Conn, ident uint8, data []byte) {
	if len(data) < 8 {
		return
	}
	peerDCID := h4.O.Uint16(data[0:])
	ourSCID := h4.O.Uint16(data[2:])
	result := h4.O.Uint16(data[4:])

	l2 := conn.findL2ConnBySCID(ourSCID)
	if l2 == nil || result != 0 {
		if p := h.pendingRFCOMM; p != nil && p.Conn == conn && p.SCID == ourSCID {
			h.pendingRFCOMM = nil
			if p.Callback != nil {
				p.Callback(false)
			}
		}
		return
	}
	l2.DCID = peerDCID
	h.sendConfigReq(conn, l2)
}

func (h *Host) sendConfigReq(conn *Conn, l2 *L2Conn) {
	payload := make([]byte, 4)
	h4.O.PutUint16(payload[0:], l2.DCID)
	h4.O.PutUint16(payload[2:], 0) // flags
	h.sendSigPDU(conn, cidSigBREDR, l2capConfigReq, h.nextIdent(), payload)
}

func (h *Host) handleConfigReq(conn *Conn, ident uint8, data []byte) {
	if len(data) < 2 {
		return
	}
	dcid := h4.O.Uint16(data[0:])
	rsp := make([]byte, 6)
	h4.O.PutUint16(rsp[0:], dcid)
	h4.O.PutUint16(rsp[2:], 0) // flags
	h4.O.PutUint16(rsp[4:], 0) // result: success
	h.sendSigPDU(conn, cidSigBREDR, l2capConfigRsp, ident, rsp)
}

// handleConfigRsp, on success, advances the RFCOMM client-open sequence
// when the configured channel is the PSM 0x0003 carrier (spec §4.7).
func (h *Host) handleConfigRsp(conn *Conn, ident uint8, data []byte) {
	if len(data) < 6 {
		return
	}
	dcid := h4.O.Uint16(data[0:])
	result := h4.O.Uint16(data[4:]) // data[2:4] is the flags field
	if result != 0 {
		return
	}
	l2 := conn.findL2ConnByDCID(dcid)
	if l2 == nil {
		return
	}
	if l2.PSM != psmRFCOMM {
		return
	}
	if p := h.pendingRFCOMM; p != nil && p.Conn == conn && p.stage == stageAwaitCarrier {
		p.stage = stageAwaitMuxUA
		h.sendRFCOMMFrame(conn, l2, 0, rfcommFrameSABM, nil)
	}
}

func (h *Host) handleDisconnReq(conn *Conn, ident uint8, data []byte) {
	if len(data) < 4 {
		return
	}
	dcid := h4.O.Uint16(data[0:])
	scid := h4.O.Uint16(data[2:])
	l2 := conn.findL2ConnBySCID(dcid)
	rsp := make([]byte, 4)
	h4.O.PutUint16(rsp[0:], dcid)
	h4.O.PutUint16(rsp[2:], scid)
	h.sendSigPDU(conn, cidSigBREDR, l2capDisconnRsp, ident, rsp)
	if l2 != nil {
		if server, ok := h.l2servers[l2.PSM]; ok && server.DisconnCB != nil {
			server.DisconnCB(conn, l2)
		}
	}
}

// handleInfoReq answers FEAT_MASK/FIXED_CHAN queries, per spec §4.5.
func (h *Host) handleInfoReq(conn *Conn, cid uint16, ident uint8, data []byte) {
	if len(data) < 2 {
		return
	}
	infoType := h4.O.Uint16(data[0:])
	switch infoType {
	case l2capInfoFeatMask:
		rsp := make([]byte, 8)
		h4.O.PutUint16(rsp[0:], infoType)
		h4.O.PutUint16(rsp[2:], 0) // result: success
		h4.O.PutUint32(rsp[4:], l2capFeatMaskFixed)
		h.sendSigPDU(conn, cid, l2capInfoRsp, ident, rsp)
	case l2capInfoFixedChan:
		mask := uint64(l2capFixedChanBitSig)
		if h.sc && h.le {
			mask |= l2capFixedChanBitSMP
		}
		rsp := make([]byte, 12)
		h4.O.PutUint16(rsp[0:], infoType)
		h4.O.PutUint16(rsp[2:], 0)
		h4.O.PutUint64(rsp[4:], mask)
		h.sendSigPDU(conn, cid, l2capInfoRsp, ident, rsp)
	default:
		rsp := make([]byte, 4)
		h4.O.PutUint16(rsp[0:], infoType)
		h4.O.PutUint16(rsp[2:], 1) // result: not supported
		h.sendSigPDU(conn, cid, l2capInfoRsp, ident, rsp)
	}
}

// handleInfoRsp updates the Conn's fixed-channel mask, notifying SMP if
// encryption is already active so it can use the newly-confirmed SMP
// fixed channel, per spec §4.5.
func (h *Host) handleInfoRsp(conn *Conn, data []byte) {
	if len(data) < 4 {
		return
	}
	infoType := h4.O.Uint16(data[0:])
	result := h4.O.Uint16(data[2:])
	if infoType != l2capInfoFixedChan || result != 0 || len(data) < 12 {
		return
	}
	conn.FixedChan = h4.O.Uint64(data[4:])
	if conn.EncMode != 0 && conn.smp != nil {
		conn.smp.Encrypted(conn.EncMode)
	}
}
