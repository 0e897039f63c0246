package bthost

import (
	"github.com/emulab/bthost/internal/h4"
	"github.com/emulab/bthost/internal/rfcommfcs"
)

// RFCOMM frame-type control-field values (P/F bit folded in),
// the standard GSM 07.10 / RFCOMM constants, grounded on
// original_source/emulator/bthost.c's frame handling and spec §4.7.
const (
	rfcommFrameSABM = 0x2F | 0x10
	rfcommFrameUA   = 0x63 | 0x10
	rfcommFrameDM   = 0x0F | 0x10
	rfcommFrameDISC = 0x43 | 0x10
	rfcommFrameUIH  = 0xEF
)

// Multiplexer Control Channel command types, raw 6-bit identifiers
// shifted into the MCC type byte alongside the CR and EA bits.
const (
	mccPN  = 0x20
	mccMSC = 0x38
)

// rfcommServer is one registered data-channel server, per spec §6's
// add_rfcomm_server.
type rfcommServer struct {
	Channel   uint8
	ConnectCB func(conn *Conn, channel uint8)
}

// AddRfcommServer registers a data channel to accept inbound SABMs on,
// per spec §4.7's server path.
func (h *Host) AddRfcommServer(channel uint8, connectCB func(conn *Conn, channel uint8)) {
	h.rfcommServers[channel] = &rfcommServer{Channel: channel, ConnectCB: connectCB}
}

func encodeRFCOMMLen(n int) []byte {
	if n <= 127 {
		return []byte{byte(n<<1) | 1}
	}
	return []byte{byte((n & 0x7f) << 1), byte(n >> 7)}
}

func decodeRFCOMMLen(b []byte) (length, consumed int) {
	if len(b) == 0 {
		return 0, 0
	}
	if b[0]&0x01 == 1 {
		return int(b[0] >> 1), 1
	}
	if len(b) < 2 {
		return 0, 0
	}
	return int(b[0]>>1) | int(b[1])<<7, 2
}

// crBit reports the C/R bit for a frame sent on this multiplexer: a
// command keeps the session initiator's own polarity, a response
// inverts it (ETSI TS 07.10 §5.2.1.2; spec §4.7).
func crBit(conn *Conn, frameType uint8) bool {
	cr := conn.rfcommInitiator
	if frameType == rfcommFrameUA || frameType == rfcommFrameDM {
		cr = !cr
	}
	return cr
}

// sendRFCOMMFrame builds and transmits one RFCOMM frame {address,
// control, length[,length_ext], payload, fcs} on the multiplexer's
// carrier L2CAP channel, per spec §4.7.
func (h *Host) sendRFCOMMFrame(conn *Conn, carrier *L2Conn, dlci uint8, frameType uint8, payload []byte) {
	addr := dlci<<2 | b2u8(crBit(conn, frameType))<<1 | 0x01

	switch frameType {
	case rfcommFrameSABM, rfcommFrameUA, rfcommFrameDM, rfcommFrameDISC:
		frame := []byte{addr, frameType, 0x01, 0}
		frame[3] = rfcommfcs.Long(frame[0:3])
		h.sendL2CAPFrame(conn, carrier.DCID, frame)

	default: // UIH
		lenBytes := encodeRFCOMMLen(len(payload))
		frame := make([]byte, 2+len(lenBytes)+len(payload)+1)
		frame[0] = addr
		frame[1] = frameType
		copy(frame[2:], lenBytes)
		copy(frame[2+len(lenBytes):], payload)
		frame[len(frame)-1] = rfcommfcs.Short(frame[0:2])
		h.sendL2CAPFrame(conn, carrier.DCID, frame)
	}
}

func b2u8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func mccTypeByte(mccType uint8, cr bool) uint8 {
	b := mccType<<2 | 0x01
	if cr {
		b |= 0x02
	}
	return b
}

// ConnectRFCOMM implements the client path of spec §4.7. It opens the
// PSM 0x0003 carrier by sending CONN_REQ with a pre-allocated SCID; the
// rest of the sequence (SABM(dlci=0) once the carrier is configured,
// MCC PN, SABM on the data DLCI) is driven from the sig and RFCOMM
// response handlers.
func (h *Host) ConnectRFCOMM(conn *Conn, channel uint8, cb func(success bool)) {
	conn.rfcommInitiator = true
	scid := conn.allocCID()
	h.pendingRFCOMM = &pendingRFCOMMConn{Conn: conn, Channel: channel, SCID: scid, Callback: cb, stage: stageAwaitCarrier}

	l2 := &L2Conn{SCID: scid, PSM: psmRFCOMM, Mode: ModeOther}
	conn.addL2Conn(l2)

	payload := make([]byte, 4)
	h4.O.PutUint16(payload[0:], psmRFCOMM)
	h4.O.PutUint16(payload[2:], scid)
	h.sendSigPDU(conn, cidSigBREDR, l2capConnReq, h.nextIdent(), payload)
}

// SendRfcommData writes user data on an open RFCOMM channel, per spec §6.
func (h *Host) SendRfcommData(conn *Conn, channel uint8, data []byte) {
	carrier := conn.findRFCOMMCarrier()
	if carrier == nil {
		return
	}
	rc := conn.findRcConnByChannel(channel)
	if rc == nil {
		return
	}
	if rc.remoteFlowOff {
		rc.pendingOut = append(rc.pendingOut, append([]byte(nil), data...))
		return
	}
	h.sendRFCOMMFrame(conn, carrier, channel*2, rfcommFrameUIH, data)
}

// handleRFCOMMFrame decodes one RFCOMM frame arriving on the PSM 0x0003
// carrier and dispatches by DLCI and frame type, per spec §4.7.
func (h *Host) handleRFCOMMFrame(conn *Conn, carrier *L2Conn, b []byte) {
	if len(b) < 3 {
		return
	}
	addr := b[0]
	control := b[1]
	dlci := addr >> 2

	switch control {
	case rfcommFrameSABM:
		h.metrics.IncRFCOMM("SABM")
		h.handleRFCOMMSABM(conn, carrier, dlci)
	case rfcommFrameUA:
		h.metrics.IncRFCOMM("UA")
		h.handleRFCOMMUA(conn, carrier, dlci)
	case rfcommFrameDM:
		h.metrics.IncRFCOMM("DM")
		h.handleRFCOMMDM(conn, dlci)
	case rfcommFrameDISC:
		h.metrics.IncRFCOMM("DISC")
		h.handleRFCOMMDISC(conn, carrier, dlci)
	default: // UIH
		h.metrics.IncRFCOMM("UIH")
		length, consumed := decodeRFCOMMLen(b[2:])
		if consumed == 0 || len(b) < 2+consumed+length+1 {
			return
		}
		payload := b[2+consumed : 2+consumed+length]
		if dlci == 0 {
			h.handleRFCOMMMCC(conn, carrier, payload)
			return
		}
		if hook, ok := conn.rfcommHooks[dlci/2]; ok {
			hook.Handler(payload)
		}
	}
}

func (h *Host) handleRFCOMMSABM(conn *Conn, carrier *L2Conn, dlci uint8) {
	if dlci == 0 {
		conn.rfcommMuxOpen = true
		h.sendRFCOMMFrame(conn, carrier, 0, rfcommFrameUA, nil)
		return
	}
	channel := dlci / 2
	server, ok := h.rfcommServers[channel]
	if !ok {
		h.sendRFCOMMFrame(conn, carrier, dlci, rfcommFrameDM, nil)
		return
	}
	rc := &RcConn{Channel: channel, SCID: carrier.SCID}
	conn.addRcConn(rc)
	h.sendRFCOMMFrame(conn, carrier, dlci, rfcommFrameUA, nil)
	if server.ConnectCB != nil {
		server.ConnectCB(conn, channel)
	}
}

func (h *Host) handleRFCOMMUA(conn *Conn, carrier *L2Conn, dlci uint8) {
	p := h.pendingRFCOMM
	if p == nil || p.Conn != conn {
		return
	}
	switch {
	case dlci == 0 && p.stage == stageAwaitMuxUA:
		p.stage = stageAwaitPNRsp
		pn := []byte{p.Channel * 2, 0xF0, 7, 0, byte(667), byte(667 >> 8), 0, 7}
		h.sendRFCOMMFrame(conn, carrier, 0, rfcommFrameUIH, mccFrame(mccPN, true, pn))
	case dlci == p.Channel*2 && p.stage == stageAwaitChanUA:
		h.pendingRFCOMM = nil
		rc := &RcConn{Channel: p.Channel, SCID: carrier.SCID}
		conn.addRcConn(rc)
		if p.Callback != nil {
			p.Callback(true)
		}
	}
}

func (h *Host) handleRFCOMMDM(conn *Conn, dlci uint8) {
	if p := h.pendingRFCOMM; p != nil && p.Conn == conn {
		h.pendingRFCOMM = nil
		if p.Callback != nil {
			p.Callback(false)
		}
	}
}

func (h *Host) handleRFCOMMDISC(conn *Conn, carrier *L2Conn, dlci uint8) {
	h.sendRFCOMMFrame(conn, carrier, dlci, rfcommFrameUA, nil)
}

// handleRFCOMMMCC decodes one Multiplexer Control Channel frame on
// DLCI 0, per spec §4.7: PN and MSC are handled, other types ignored.
func (h *Host) handleRFCOMMMCC(conn *Conn, carrier *L2Conn, b []byte) {
	if len(b) < 2 {
		return
	}
	typeByte := b[0]
	mccType := typeByte >> 2
	cr := typeByte&0x02 != 0
	length, consumed := decodeRFCOMMLen(b[1:])
	if consumed == 0 || len(b) < 1+consumed+length {
		return
	}
	data := b[1+consumed : 1+consumed+length]

	switch mccType {
	case mccPN:
		if cr {
			echo := append([]byte(nil), data...)
			if len(echo) >= 8 {
				echo[7] = 255 // credits
			}
			h.sendRFCOMMFrame(conn, carrier, 0, rfcommFrameUIH, mccFrame(mccPN, false, echo))
			return
		}
		p := h.pendingRFCOMM
		if p != nil && p.Conn == conn && p.stage == stageAwaitPNRsp {
			p.stage = stageAwaitChanUA
			h.sendRFCOMMFrame(conn, carrier, p.Channel*2, rfcommFrameSABM, nil)
		}
	case mccMSC:
		if len(data) < 2 {
			return
		}
		dlci := data[0] >> 2
		signal := data[1]
		if cr {
			if rc := conn.findRcConnByChannel(dlci / 2); rc != nil {
				rc.remoteFlowOff = signal&0x02 == 0 // FC bit clear: peer asserting flow off
				if !rc.remoteFlowOff {
					h.flushPendingRFCOMM(conn, carrier, rc)
				}
			}
			h.sendRFCOMMFrame(conn, carrier, 0, rfcommFrameUIH, mccFrame(mccMSC, false, data))
		}
	}
}

// flushPendingRFCOMM drains data queued while the peer's flow signal
// was off, per SPEC_FULL.md §4.10.
func (h *Host) flushPendingRFCOMM(conn *Conn, carrier *L2Conn, rc *RcConn) {
	pending := rc.pendingOut
	rc.pendingOut = nil
	for _, data := range pending {
		h.sendRFCOMMFrame(conn, carrier, rc.Channel*2, rfcommFrameUIH, data)
	}
}

func mccFrame(mccType uint8, cr bool, data []byte) []byte {
	lenBytes := encodeRFCOMMLen(len(data))
	out := make([]byte, 1+len(lenBytes)+len(data))
	out[0] = mccTypeByte(mccType, cr)
	copy(out[1:], lenBytes)
	copy(out[1+len(lenBytes):], data)
	return out
}
