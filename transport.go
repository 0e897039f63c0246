package bthost

import (
	"github.com/emulab/bthost/internal/h4"
)

// ReceiveH4 ingests one complete H4 frame, as delivered by the pluggable
// transport (spec §6: "receive(bytes, len) delivers one H4 frame...
// frames are never split across calls at the transport boundary").
// Dispatch is entirely synchronous and reentrancy-safe per spec §5: the
// whole call runs to completion before returning, and it may itself
// invoke further Host API calls.
func (h *Host) ReceiveH4(frame []byte) {
	if len(frame) == 0 {
		h.log.Debug("bthost: empty H4 frame")
		return
	}
	if h.log != nil {
		h.log.WithField("dump", h4.Dump('>', frame)).Trace("bthost: rx")
	}

	typ := h4.PacketType(frame[0])
	body := frame[1:]
	switch typ {
	case h4.TypeEvent:
		h.dispatchEvent(body)
	case h4.TypeACL:
		h.receiveACL(body)
	case h4.TypeSCO:
		h.receiveSCO(body)
	case h4.TypeISO:
		h.receiveISO(body)
	default:
		h.log.WithField("type", typ).Debug("bthost: unknown H4 packet type, dropped")
	}
}
