package bthost

import (
	"github.com/sirupsen/logrus"

	"github.com/emulab/bthost/internal/h4"
	"github.com/emulab/bthost/internal/hciopcode"
)

// sendCommand serializes an HCI command frame {type, opcode, plen,
// payload} and either transmits it immediately (ncmd>0) or appends it to
// the FIFO, per spec §4.2. Order of emission is strictly FIFO.
func (h *Host) sendCommand(op hciopcode.Opcode, payload []byte) {
	frame := make([]byte, 4+len(payload))
	frame[0] = byte(h4.TypeCommand)
	h4.O.PutUint16(frame[1:], uint16(op))
	frame[3] = byte(len(payload))
	copy(frame[4:], payload)

	if h.ncmd > 0 {
		h.ncmd--
		h.metrics.IncCommandsSent()
		h.transmit(frame)
		return
	}
	h.cmdQueue = append(h.cmdQueue, frame)
	h.metrics.IncCommandsQueued()
}

// transmit writes a fully framed packet to the transport through the
// hex-dump tap, mirroring the teacher's debug-dump-on-every-send
// discipline (linux/l2cap.go's conn.write logging).
func (h *Host) transmit(frame []byte) {
	if h.log != nil && h.log.IsLevelEnabled(logrus.TraceLevel) {
		marker := byte('<')
		if len(frame) >= 3 && (frame[0] == byte(h4.TypeACL) || frame[0] == byte(h4.TypeISO)) {
			pb := (h4.O.Uint16(frame[1:]) >> 12) & 0x3
			if pb == 0x01 || (frame[0] == byte(h4.TypeISO) && pb == 0x03) {
				marker = ' ' // continuation fragment
			}
		}
		h.log.Tracef("%s", h4.Dump(marker, frame))
	}
	if h.send == nil {
		return
	}
	if err := h.send(frame); err != nil {
		h.log.WithError(err).Debug("bthost: send failed")
	}
}

// pump dequeues and sends exactly one queued command per available
// credit, preserving FIFO order, per spec §4.2.
func (h *Host) pump() {
	for h.ncmd > 0 && len(h.cmdQueue) > 0 {
		frame := h.cmdQueue[0]
		h.cmdQueue = h.cmdQueue[1:]
		h.ncmd--
		h.metrics.IncCommandsSent()
		h.transmit(frame)
	}
}

// refreshCredit applies the ncmd value carried by a Command Complete or
// Command Status event, then pumps the queue, per spec §4.2/§4.3.
func (h *Host) refreshCredit(ncmd uint8) {
	h.ncmd = ncmd
	h.pump()
}

// Start kicks off the reset sequence: RESET, READ_LOCAL_FEATURES,
// READ_BD_ADDR, transmitted in that order with the initial credit of 1
// (spec §4.2). Since ncmd starts at 1, RESET transmits immediately and
// the other two queue until Command Complete/Status events return credits.
func (h *Host) Start() {
	h.sendCommand(hciopcode.Reset, nil)
	h.sendCommand(hciopcode.ReadLocalFeatures, nil)
	h.sendCommand(hciopcode.ReadBDAddr, nil)
}
