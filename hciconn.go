package bthost

import (
	"github.com/emulab/bthost/internal/h4"
	"github.com/emulab/bthost/internal/hciopcode"
)

// HciConnect issues CREATE_CONN for a BR/EDR peer, per spec §6. Page
// scan repetition mode, clock offset, and allow-role-switch are fixed
// to the values BlueZ's bthost.c uses for a harness peer: PSRM R1,
// reserved=0, clock offset unknown, role switch allowed.
func (h *Host) HciConnect(addr [6]byte) {
	h.pendingConnect = true
	payload := make([]byte, 13)
	h4.O.PutMAC(payload[0:], addr)
	h4.O.PutUint16(payload[6:], 0x0008) // packet type: DM1
	payload[8] = 0x01                   // page scan repetition mode R1
	payload[9] = 0x00                   // reserved
	h4.O.PutUint16(payload[10:], 0x0000)
	payload[12] = 0x01 // allow role switch
	h.sendCommand(hciopcode.CreateConn, payload)
}

// HciExtConnect issues LE_EXT_CREATE_CONN against a single PHY (1M),
// per spec §6. Scan/connection interval, window, latency, and
// supervision timeout are the BlueZ test-harness defaults.
func (h *Host) HciExtConnect(addr [6]byte, addrType AddrType) {
	ownAddrType := uint8(0)
	peerAddrType := uint8(0)
	if addrType == AddrLERandom {
		peerAddrType = 1
	}

	payload := make([]byte, 10)
	payload[0] = ownAddrType
	payload[1] = 0 // initiator filter policy: no whitelist
	payload[2] = peerAddrType
	h4.O.PutMAC(payload[3:], addr)
	payload[9] = 0x01 // initiating PHYs: 1M only
	phyParams := make([]byte, 16)
	h4.O.PutUint16(phyParams[0:], 0x0060)  // scan interval
	h4.O.PutUint16(phyParams[2:], 0x0060)  // scan window
	h4.O.PutUint16(phyParams[4:], 0x0018)  // conn interval min
	h4.O.PutUint16(phyParams[6:], 0x0028)  // conn interval max
	h4.O.PutUint16(phyParams[8:], 0x0000)  // latency
	h4.O.PutUint16(phyParams[10:], 0x01f4) // supervision timeout
	h4.O.PutUint16(phyParams[12:], 0x0000) // min CE length
	h4.O.PutUint16(phyParams[14:], 0x0000) // max CE length

	h.sendCommand(hciopcode.LEExtCreateConn, append(payload, phyParams...))
}

// HciDisconnect issues DISCONNECT for handle with the given reason
// (default 0x13, "Remote User Terminated"), per spec §6.
func (h *Host) HciDisconnect(handle uint16, reason uint8) {
	if reason == 0 {
		reason = 0x13
	}
	payload := make([]byte, 3)
	h4.O.PutUint16(payload[0:], handle&0x0fff)
	payload[2] = reason
	h.sendCommand(hciopcode.Disconnect, payload)
}

// HciSetupSyncConn issues Setup Synchronous Connection to force an eSCO
// link rather than waiting for the peer-initiated accept path (§4.3).
// packetType follows the same DV1/EV3/2-EV3/... bitmask as the
// Synchronous Connection Complete event's negotiated link type.
func (h *Host) HciSetupSyncConn(handle uint16, txBandwidth, rxBandwidth uint32, maxLatency uint16, voiceSetting uint16, retransEffort uint8, packetType uint16) {
	payload := make([]byte, 17)
	h4.O.PutUint16(payload[0:], handle&0x0fff)
	h4.O.PutUint32(payload[2:], txBandwidth)
	h4.O.PutUint32(payload[6:], rxBandwidth)
	h4.O.PutUint16(payload[10:], maxLatency)
	h4.O.PutUint16(payload[12:], voiceSetting)
	payload[14] = retransEffort
	h4.O.PutUint16(payload[15:], packetType)
	h.sendCommand(hciopcode.SetupSyncConn, payload)
}
