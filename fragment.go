package bthost

import "github.com/emulab/bthost/internal/h4"

// acl_handle_pack(h,f) from BlueZ's bthost.c: a handle and a 4-bit flags
// nibble (PB in the low two bits, BC in the high two, BC always 0 here
// since this Host is a single peer on a point-to-point link).
func packHandle(handle uint16, flags uint8) uint16 {
	return (handle & 0x0fff) | (uint16(flags) << 12)
}

// sendL2CAPFrame wraps an L2CAP signaling or data PDU in the basic
// L2CAP header {length, cid} (length first, then CID — the Bluetooth
// Core Spec's byte order; spec.md's prose lists the fields as "CID,
// length" but original_source's bt_l2cap_hdr and the teacher's
// linux/l2cap.go conn.write both put length first, which this module
// follows per spec §9's guidance to resolve ambiguity against the
// original implementation) and fragments it over ACL.
func (h *Host) sendL2CAPFrame(conn *Conn, cid uint16, payload []byte) {
	frame := make([]byte, 4+len(payload))
	h4.O.PutUint16(frame[0:], uint16(len(payload)))
	h4.O.PutUint16(frame[2:], cid)
	copy(frame[4:], payload)
	h.sendACL(conn, frame)
}

// sendACL fragments one L2CAP frame into HCI ACL Data packets, per spec
// §4.4. Fragment size is min(remaining, acl_mtu-1-4); the first
// fragment carries PB=0x00 (non-flushable start), later fragments
// PB=0x01 (continuation).
func (h *Host) sendACL(conn *Conn, l2capFrame []byte) {
	fragMax := int(h.aclMTU) - 1 - 4
	if fragMax < 1 {
		fragMax = 1
	}
	pb := uint8(0x00)
	remaining := l2capFrame
	for len(remaining) > 0 {
		n := len(remaining)
		if n > fragMax {
			n = fragMax
		}
		chunk := remaining[:n]
		remaining = remaining[n:]

		frame := make([]byte, 1+4+len(chunk))
		frame[0] = byte(h4.TypeACL)
		h4.O.PutUint16(frame[1:], packHandle(conn.Handle, pb))
		h4.O.PutUint16(frame[3:], uint16(len(chunk)))
		copy(frame[5:], chunk)
		h.transmit(frame)
		h.metrics.IncACLOut()
		pb = 0x01
	}
}

// receiveACL reassembles inbound ACL fragments by PB flag, per spec
// §4.4, then routes the completed L2CAP frame by fixed or dynamic CID.
func (h *Host) receiveACL(b []byte) {
	if len(b) < 4 {
		h.log.Debug("bthost: malformed ACL header")
		return
	}
	hf := h4.O.Uint16(b[0:])
	handle := hf & 0x0fff
	pb := uint8((hf >> 12) & 0x3)
	dlen := h4.O.Uint16(b[2:])
	if len(b) != 4+int(dlen) {
		h.log.Debug("bthost: malformed ACL length")
		return
	}
	data := b[4:]
	h.metrics.IncACLIn()

	conn, ok := h.conns[handle]
	if !ok {
		h.log.WithField("handle", handle).Trace("bthost: ACL for unknown handle, dropped")
		return
	}

	switch pb {
	case 0x00, 0x02: // start
		if conn.recvData != nil {
			h.log.WithField("handle", handle).Debug("bthost: ACL reassembly in progress, dropping prior fragment")
			conn.recvData, conn.recvLen, conn.dataLen = nil, 0, 0
		}
		if len(data) < 2 {
			return
		}
		l2len := h4.O.Uint16(data[0:])
		total := 4 + int(l2len)
		if len(data) >= total {
			h.processL2CAPFrame(conn, data[:total])
			return
		}
		conn.recvData = make([]byte, total)
		copy(conn.recvData, data)
		conn.recvLen = len(data)
		conn.dataLen = total

	case 0x01: // continuation
		if conn.recvData == nil {
			h.log.WithField("handle", handle).Debug("bthost: ACL continuation with no reassembly in progress, dropped")
			return
		}
		n := copy(conn.recvData[conn.recvLen:], data)
		conn.recvLen += n
		if conn.recvLen >= conn.dataLen {
			frame := conn.recvData
			conn.recvData, conn.recvLen, conn.dataLen = nil, 0, 0
			h.processL2CAPFrame(conn, frame)
		}

	case 0x03: // automatically flushable complete PDU
		h.processL2CAPFrame(conn, data)
	}
}

// processL2CAPFrame strips the L2CAP basic header and routes by CID.
func (h *Host) processL2CAPFrame(conn *Conn, frame []byte) {
	if len(frame) < 4 {
		h.log.Debug("bthost: malformed L2CAP frame")
		return
	}
	length := h4.O.Uint16(frame[0:])
	cid := h4.O.Uint16(frame[2:])
	payload := frame[4:]
	if int(length) != len(payload) {
		h.log.Debug("bthost: malformed L2CAP length")
		return
	}
	h.routeL2CAP(conn, cid, payload)
}

// --- SCO: no reassembly (spec §4.4) ---

func (h *Host) receiveSCO(b []byte) {
	if len(b) < 3 {
		return
	}
	hf := h4.O.Uint16(b[0:])
	handle := hf & 0x0fff
	status := uint8((hf >> 12) & 0x03)
	dlen := b[2]
	if len(b) != 3+int(dlen) {
		return
	}
	data := b[3:]
	conn, ok := h.conns[handle]
	if !ok || conn.scoHook == nil {
		return
	}
	conn.scoHook.Handler(status, data)
}

// SendSco writes one SCO payload verbatim to the handle's connection,
// per spec §6 (send_sco).
func (h *Host) SendSco(handle uint16, data []byte) {
	frame := make([]byte, 1+3+len(data))
	frame[0] = byte(h4.TypeSCO)
	h4.O.PutUint16(frame[1:], handle&0x0fff)
	frame[3] = byte(len(data))
	copy(frame[4:], data)
	h.transmit(frame)
}

// --- ISO: four-state PB reassembly (spec §4.4) ---

const (
	isoPBFirst        = 0x00
	isoPBContinuation = 0x01
	isoPBComplete     = 0x02
	isoPBLast         = 0x03
)

var isoSeq uint16

// SendIso fragments sdu into HCI ISO Data packets, per spec §4.4. The
// ISO data-start header {sn, slen} appears only on the first fragment;
// the timestamp (always zero: this Host owns no clock, per spec §5) is
// likewise carried only there.
func (h *Host) SendIso(handle uint16, sdu []byte) {
	fragMax := int(h.isoMTU) - 1 - 4 - 4 - 4
	if fragMax < 1 {
		fragMax = 1
	}
	sn := isoSeq
	isoSeq++

	first := true
	remaining := sdu
	for len(remaining) > 0 || first {
		n := len(remaining)
		headerExtra := 0
		if first {
			headerExtra = 8 // timestamp(4) + sn/slen(4)
		}
		max := fragMax
		if n > max {
			n = max
		}
		chunk := remaining[:n]
		remaining = remaining[n:]

		var pb uint8
		switch {
		case first && len(remaining) == 0:
			pb = isoPBComplete
		case first:
			pb = isoPBFirst
		case len(remaining) == 0:
			pb = isoPBLast
		default:
			pb = isoPBContinuation
		}

		ts := uint8(0)
		if first {
			ts = 1
		}
		loadLen := headerExtra + len(chunk)
		frame := make([]byte, 1+4+loadLen)
		frame[0] = byte(h4.TypeISO)
		flags := uint16(pb) | (uint16(ts) << 2)
		h4.O.PutUint16(frame[1:], (handle&0x0fff)|(flags<<12))
		h4.O.PutUint16(frame[3:], uint16(loadLen))
		off := 5
		if first {
			h4.O.PutUint32(frame[off:], 0) // timestamp
			off += 4
			h4.O.PutUint16(frame[off:], sn)
			off += 2
			h4.O.PutUint16(frame[off:], uint16(len(sdu))&0x3fff)
			off += 2
		}
		copy(frame[off:], chunk)
		h.transmit(frame)
		first = false
	}
}

func (h *Host) receiveISO(b []byte) {
	if len(b) < 4 {
		return
	}
	hf := h4.O.Uint16(b[0:])
	handle := hf & 0x0fff
	pb := uint8((hf >> 12) & 0x03)
	ts := uint8((hf >> 14) & 0x01)
	dlen := h4.O.Uint16(b[2:])
	if len(b) != 4+int(dlen) {
		return
	}
	data := b[4:]

	conn, ok := h.conns[handle]
	if !ok {
		return
	}

	switch pb {
	case isoPBFirst, isoPBComplete:
		if conn.recvData != nil {
			h.log.WithField("handle", handle).Debug("bthost: ISO reassembly in progress, dropping prior fragment")
			conn.recvData, conn.recvLen, conn.dataLen = nil, 0, 0
		}
		off := 0
		if ts == 1 {
			off += 4
		}
		if len(data) < off+4 {
			return
		}
		slenRaw := h4.O.Uint16(data[off+2:])
		slen := int(slenRaw & 0x3fff)
		off += 4
		chunk := data[off:]

		if pb == isoPBComplete {
			h.deliverISO(conn, chunk)
			return
		}
		conn.recvData = make([]byte, slen)
		conn.recvLen = copy(conn.recvData, chunk)
		conn.dataLen = slen

	case isoPBContinuation, isoPBLast:
		if conn.recvData == nil {
			return
		}
		conn.recvLen += copy(conn.recvData[conn.recvLen:], data)
		if pb == isoPBLast || conn.recvLen >= conn.dataLen {
			buf := conn.recvData
			conn.recvData, conn.recvLen, conn.dataLen = nil, 0, 0
			h.deliverISO(conn, buf)
		}
	}
}

func (h *Host) deliverISO(conn *Conn, sdu []byte) {
	if conn.isoHook != nil {
		conn.isoHook.Handler(sdu)
	}
}
