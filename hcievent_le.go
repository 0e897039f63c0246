package bthost

import (
	"github.com/emulab/bthost/internal/h4"
	"github.com/emulab/bthost/internal/hciopcode"
)

// handleLEMeta dispatches an LE Meta Event's inner sub-event, per spec
// §4.3's LE Meta bullet, mirroring linux/l2cap.go's handleLEMeta.
func (h *Host) handleLEMeta(b []byte) {
	if len(b) < 1 {
		return
	}
	sub := hciopcode.LESubEventCode(b[0])
	data := b[1:]

	switch sub {
	case hciopcode.LEConnectionComplete, hciopcode.LEEnhancedConnectionComplete:
		h.handleLEConnectionComplete(data)
	case hciopcode.LELTKRequest:
		h.handleLELTKRequest(data)
	case hciopcode.LECISEstablished:
		h.handleLECISEstablished(data)
	case hciopcode.LECreateBIGComplete:
		h.handleLECreateBIGComplete(data)
	case hciopcode.LEBIGSyncEstablished:
		h.handleLEBIGSyncEstablished(data)
	case hciopcode.LECISRequest:
		h.handleLECISRequest(data)
	case hciopcode.LEExtendedAdvertisingReport:
		h.handleLEExtAdvReport(data)
	default:
		h.log.WithField("subevent", sub).Trace("bthost: unhandled LE meta sub-event, ignored")
	}
}

// handleLEConnectionComplete allocates an LE Conn with the address type
// inferred from the peer address type byte (0=public, else random).
func (h *Host) handleLEConnectionComplete(b []byte) {
	if len(b) < 11 {
		return
	}
	status := b[0]
	if status != 0 {
		return
	}
	handle := h4.O.Uint16(b[1:]) & 0x0fff
	role := b[3]
	peerAddrType := b[4]
	addr := h4.O.MAC(b[5:11])

	at := AddrLERandom
	if peerAddrType == 0 {
		at = AddrLEPublic
	}

	c := newConn(handle, kindACL, addr, at)
	c.smp = h.smp.Attach(handle, role == 0)
	h.conns[handle] = c

	if h.newConnCB != nil {
		h.newConnCB(c)
	}
}

// handleLELTKRequest asks SMP for the LTK and replies positively or
// negatively, per spec §4.3 and §8 scenario S5.
func (h *Host) handleLELTKRequest(b []byte) {
	if len(b) < 12 {
		return
	}
	handle := h4.O.Uint16(b[0:]) & 0x0fff
	rand := h4.O.Uint64(b[2:])
	ediv := h4.O.Uint16(b[10:])

	c, ok := h.conns[handle]
	if !ok || c.smp == nil {
		h.sendLTKNegReply(handle)
		return
	}
	ltk, found := c.smp.GetLTK(rand, ediv)
	if !found {
		h.sendLTKNegReply(handle)
		return
	}
	payload := make([]byte, 18)
	h4.O.PutUint16(payload[0:], handle)
	copy(payload[2:], ltk[:])
	h.sendCommand(hciopcode.LELTKReqReply, payload)
}

func (h *Host) sendLTKNegReply(handle uint16) {
	payload := make([]byte, 2)
	h4.O.PutUint16(payload, handle)
	h.sendCommand(hciopcode.LELTKReqNegReply, payload)
}

// handleLECISEstablished allocates an ISO Conn for the established CIS
// handle, per spec §4.3.
func (h *Host) handleLECISEstablished(b []byte) {
	if len(b) < 3 {
		return
	}
	status := b[0]
	if status != 0 {
		return
	}
	handle := h4.O.Uint16(b[1:]) & 0x0fff
	h.conns[handle] = newConn(handle, kindISO, [6]byte{}, AddrLEPublic)
}

// handleLECreateBIGComplete allocates one ISO Conn per BIS handle in
// the variable-length trailing array, per spec §4.3/§9 design notes.
func (h *Host) handleLECreateBIGComplete(b []byte) {
	if len(b) < 18 {
		return
	}
	status := b[0]
	if status != 0 {
		return
	}
	numBIS := int(b[17])
	handles := b[18:]
	for i := 0; i < numBIS && (i+1)*2 <= len(handles); i++ {
		handle := h4.O.Uint16(handles[i*2:]) & 0x0fff
		h.conns[handle] = newConn(handle, kindISO, [6]byte{}, AddrLEPublic)
	}
}

// handleLEBIGSyncEstablished allocates an ISO Conn per synced BIS
// handle. Payload layout: Status(1), BIG_Handle(1), Transport_Latency
// (3), NSE(1), BN(1), PTO(1), IRC(1), Max_PDU(2), ISO_Interval(2),
// Num_BIS(1), Connection_Handle[i](2*Num_BIS).
func (h *Host) handleLEBIGSyncEstablished(b []byte) {
	if len(b) < 14 {
		return
	}
	status := b[0]
	if status != 0 {
		return
	}
	numBIS := int(b[13])
	handles := b[14:]
	for i := 0; i < numBIS && (i+1)*2 <= len(handles); i++ {
		handle := h4.O.Uint16(handles[i*2:]) & 0x0fff
		h.conns[handle] = newConn(handle, kindISO, [6]byte{}, AddrLEPublic)
	}
}

// handleLECISRequest consults the accept filter (if any) and replies
// ACCEPT_CIS or REJECT_CIS, per spec §4.3.
func (h *Host) handleLECISRequest(b []byte) {
	if len(b) < 6 {
		return
	}
	cisHandle := h4.O.Uint16(b[4:]) & 0x0fff

	var reason uint8
	if h.cisAcceptCB != nil {
		reason = h.cisAcceptCB(cisHandle)
	}
	if reason == 0 {
		payload := make([]byte, 2)
		h4.O.PutUint16(payload, cisHandle)
		h.sendCommand(hciopcode.LEAcceptCISReq, payload)
		return
	}
	payload := make([]byte, 3)
	h4.O.PutUint16(payload[0:], cisHandle)
	payload[2] = reason
	h.sendCommand(hciopcode.LERejectCISReq, payload)
}

// handleLEExtAdvReport appends one report entry per sub-report, per
// spec §4.3 and §4.11's de-duplication policy.
func (h *Host) handleLEExtAdvReport(b []byte) {
	if len(b) < 1 {
		return
	}
	numReports := int(b[0])
	off := 1
	for i := 0; i < numReports && off+24 <= len(b); i++ {
		addrType := b[off+2]
		addr := h4.O.MAC(b[off+3 : off+9])
		directAddr := h4.O.MAC(b[off+17 : off+23])
		h.appendAdvReport(AdvReport{AddrType: addrType, Addr: addr, DirectAddr: directAddr})

		dataLen := int(b[off+23])
		off += 24 + dataLen
	}
}
