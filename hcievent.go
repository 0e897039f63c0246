package bthost

import (
	"github.com/emulab/bthost/internal/h4"
	"github.com/emulab/bthost/internal/hciopcode"
)

// dispatchEvent decodes the event header and routes to a handler by
// code, mirroring linux/event.go's event.dispatch. Unknown events are
// logged and ignored, never fatal (spec §4.3, §7).
func (h *Host) dispatchEvent(b []byte) {
	if len(b) < 2 {
		h.log.Debug("bthost: malformed event header")
		return
	}
	code := hciopcode.EventCode(b[0])
	plen := b[1]
	b = b[2:]
	if int(plen) != len(b) {
		h.log.WithField("event", code).Debug("bthost: event length mismatch")
		return
	}

	switch code {
	case hciopcode.CommandComplete:
		h.handleCommandComplete(b)
	case hciopcode.CommandStatus:
		h.handleCommandStatus(b)
	case hciopcode.ConnectionRequest:
		h.handleConnectionRequest(b)
	case hciopcode.ConnectionComplete:
		h.handleConnectionComplete(b)
	case hciopcode.DisconnectionComplete:
		h.handleDisconnectionComplete(b)
	case hciopcode.AuthenticationComplete:
		h.handleAuthenticationComplete(b)
	case hciopcode.PINCodeRequest:
		h.handlePINCodeRequest(b)
	case hciopcode.LinkKeyRequest:
		h.handleLinkKeyRequest(b)
	case hciopcode.EncryptionChange:
		h.handleEncryptionChange(b)
	case hciopcode.IOCapabilityRequest:
		h.handleIOCapabilityRequest(b)
	case hciopcode.UserConfirmationReq:
		h.handleUserConfirmationRequest(b)
	case hciopcode.SyncConnComplete:
		h.handleSyncConnComplete(b)
	case hciopcode.LEMeta:
		h.handleLEMeta(b)
	default:
		h.log.WithField("event", code).Trace("bthost: unhandled event, ignored")
	}
}

func (h *Host) handleCommandComplete(b []byte) {
	if len(b) < 3 {
		h.log.Debug("bthost: malformed Command Complete")
		return
	}
	ncmd := h4.O.Uint8(b[0:])
	opcode := h4.O.Uint16(b[1:])
	params := b[3:]
	h.refreshCredit(ncmd)
	if opcode == uint16(hciopcode.ReadBDAddr) && len(params) >= 7 && params[0] == 0 {
		copy(h.addr[:], h4.O.MAC(params[1:7])[:])
		h.ready = true
		if cb := h.readyCB; cb != nil {
			h.readyCB = nil
			cb()
		}
	}
	if h.cmdCompleteCB != nil {
		h.cmdCompleteCB(opcode, params)
	}
}

func (h *Host) handleCommandStatus(b []byte) {
	if len(b) < 4 {
		h.log.Debug("bthost: malformed Command Status")
		return
	}
	ncmd := h4.O.Uint8(b[1:])
	opcode := h4.O.Uint16(b[2:])
	h.refreshCredit(ncmd)
	if h.cmdCompleteCB != nil {
		h.cmdCompleteCB(opcode, b[0:1])
	}
}

// handleConnectionRequest always accepts the incoming BR/EDR connection
// and always requests to become master (Role=0x00), matching
// bthost.c's evt_conn_request, which zeroes the Accept Connection
// Request command and never sets a role (spec §4.3).
func (h *Host) handleConnectionRequest(b []byte) {
	if len(b) < 10 {
		return
	}
	addr := h4.O.MAC(b[0:6])
	payload := make([]byte, 7)
	h4.O.PutMAC(payload[0:], addr)
	payload[6] = 0x00 // role: become master
	h.sendCommand(hciopcode.AcceptConnReq, payload)
}

func (h *Host) handleConnectionComplete(b []byte) {
	if len(b) < 11 {
		return
	}
	status := b[0]
	// The initiator role is a Host-level fact ("did this Host issue
	// CREATE_CONN"), never a byte of the event payload (spec §4.3) —
	// consume and clear it regardless of status, since the pending
	// outbound connect is resolved either way.
	initiator := h.pendingConnect
	h.pendingConnect = false
	if status != 0 {
		return
	}
	handle := h4.O.Uint16(b[1:]) & 0x0fff
	addr := h4.O.MAC(b[3:9])
	linkType := b[9]

	if linkType == 0 {
		h.conns[handle] = newConn(handle, kindSCO, addr, AddrBREDR)
		return
	}

	c := newConn(handle, kindACL, addr, AddrBREDR)
	c.smp = h.smp.Attach(handle, initiator)
	h.conns[handle] = c

	// Emit an L2CAP INFO_REQ(FIXED_CHAN) with ident 1, per spec §4.3.
	h.sendInfoReq(c, l2capInfoFixedChan, 1)

	if h.newConnCB != nil {
		h.newConnCB(c)
	}
}

func (h *Host) handleDisconnectionComplete(b []byte) {
	if len(b) < 3 {
		return
	}
	handle := h4.O.Uint16(b[1:]) & 0x0fff
	c, ok := h.conns[handle]
	if !ok {
		h.log.WithField("handle", handle).Trace("bthost: disconnect of unknown handle")
		return
	}
	delete(h.conns, handle)
	c.teardown()
}

func (h *Host) handleAuthenticationComplete(b []byte) {
	if len(b) < 3 {
		return
	}
	status := b[0]
	handle := h4.O.Uint16(b[1:])
	if status != 0 {
		return
	}
	payload := []byte{byte(handle), byte(handle >> 8), 0x01}
	h.sendCommand(hciopcode.SetConnEncrypt, payload)
}

func (h *Host) handlePINCodeRequest(b []byte) {
	if len(b) < 6 {
		return
	}
	addr := h4.O.MAC(b[0:6])
	if h.pin == nil {
		payload := make([]byte, 6)
		h4.O.PutMAC(payload, addr)
		h.sendCommand(hciopcode.PinCodeNegReply, payload)
		return
	}
	pin := *h.pin
	payload := make([]byte, 6+1+16)
	h4.O.PutMAC(payload, addr)
	payload[6] = byte(len(pin))
	copy(payload[7:], pin)
	h.sendCommand(hciopcode.PinCodeReply, payload)
}

// handleLinkKeyRequest always replies negatively: this is a stateless
// test peer (spec §4.3).
func (h *Host) handleLinkKeyRequest(b []byte) {
	if len(b) < 6 {
		return
	}
	payload := make([]byte, 6)
	copy(payload, b[0:6])
	h.sendCommand(hciopcode.LinkKeyNegReply, payload)
}

func (h *Host) handleEncryptionChange(b []byte) {
	if len(b) < 4 {
		return
	}
	status := b[0]
	handle := h4.O.Uint16(b[1:]) & 0x0fff
	mode := b[3]
	c, ok := h.conns[handle]
	if !ok || status != 0 {
		return
	}
	c.EncMode = mode
	if c.smp != nil {
		c.smp.Encrypted(mode)
	}
}

func (h *Host) handleIOCapabilityRequest(b []byte) {
	if len(b) < 6 {
		return
	}
	addr := h4.O.MAC(b[0:6])
	payload := make([]byte, 9)
	h4.O.PutMAC(payload, addr)
	payload[6] = h.ioCapability
	payload[7] = 0 // no OOB
	payload[8] = h.authReq
	h.sendCommand(hciopcode.IOCapReply, payload)
}

func (h *Host) handleUserConfirmationRequest(b []byte) {
	if len(b) < 6 {
		return
	}
	addr := h4.O.MAC(b[0:6])
	payload := make([]byte, 6)
	h4.O.PutMAC(payload, addr)
	if h.rejectUserConfirm {
		h.sendCommand(hciopcode.UserConfirmNeg, payload)
		return
	}
	h.sendCommand(hciopcode.UserConfirmReply, payload)
}

func (h *Host) handleSyncConnComplete(b []byte) {
	if len(b) < 10 {
		return
	}
	status := b[0]
	if status != 0 {
		return
	}
	handle := h4.O.Uint16(b[1:]) & 0x0fff
	addr := h4.O.MAC(b[3:9])
	h.conns[handle] = newConn(handle, kindSCO, addr, AddrBREDR)
}
