package bthost

import (
	"github.com/emulab/bthost/internal/h4"
	"github.com/emulab/bthost/internal/hciopcode"
)

// LE connection-parameter defaults for the unconditional
// CONN_PARAM_REQ → LE_CONN_UPDATE bounce (spec §4.6).
const leConnParamTimeout = 0x0001

// handleConnParamReq immediately issues LE_CONN_UPDATE with the
// requested interval/latency/timeout and min_length=max_length=1, then
// replies CONN_PARAM_RSP(result=0), per spec §4.6.
func (h *Host) handleConnParamReq(conn *Conn, ident uint8, data []byte) {
	if len(data) < 8 {
		return
	}
	intervalMin := h4.O.Uint16(data[0:])
	intervalMax := h4.O.Uint16(data[2:])
	latency := h4.O.Uint16(data[4:])
	timeout := h4.O.Uint16(data[6:])

	payload := make([]byte, 14)
	h4.O.PutUint16(payload[0:], conn.Handle)
	h4.O.PutUint16(payload[2:], intervalMin)
	h4.O.PutUint16(payload[4:], intervalMax)
	h4.O.PutUint16(payload[6:], latency)
	h4.O.PutUint16(payload[8:], timeout)
	h4.O.PutUint16(payload[10:], leConnParamTimeout)
	h4.O.PutUint16(payload[12:], leConnParamTimeout)
	h.sendCommand(hciopcode.LEConnUpdate, payload)

	rsp := make([]byte, 2)
	h4.O.PutUint16(rsp[0:], 0) // result: accepted
	h.sendSigPDU(conn, cidSigLE, l2capConnParamRsp, ident, rsp)
}

// handleLEConnReq implements the LE COC server path, per spec §4.6:
// defaulting MTU/MPS/credits to 23/23/1 when the PSM's registration
// left them unset.
func (h *Host) handleLEConnReq(conn *Conn, ident uint8, data []byte) {
	if len(data) < 10 {
		return
	}
	psm := h4.O.Uint16(data[0:])
	peerSCID := h4.O.Uint16(data[2:])
	peerCredits := h4.O.Uint16(data[8:])

	server, ok := h.l2servers[psm]
	if !ok {
		rsp := make([]byte, 10)
		h4.O.PutUint16(rsp[8:], 0x0002) // PSM not supported
		h.sendSigPDU(conn, cidSigLE, l2capLEConnRsp, ident, rsp)
		return
	}

	mtu, mps, credits := server.MTU, server.MPS, server.Credits
	if mtu == 0 {
		mtu = 23
	}
	if mps == 0 {
		mps = 23
	}
	if credits == 0 {
		credits = 1
	}

	ourCID := conn.allocCID()
	l2 := &L2Conn{SCID: ourCID, DCID: peerSCID, PSM: psm, Mode: ModeLECreditBased, MTU: mtu, MPS: mps, Credits: peerCredits}
	conn.addL2Conn(l2)

	rsp := make([]byte, 10)
	h4.O.PutUint16(rsp[0:], ourCID)
	h4.O.PutUint16(rsp[2:], mtu)
	h4.O.PutUint16(rsp[4:], mps)
	h4.O.PutUint16(rsp[6:], credits)
	h4.O.PutUint16(rsp[8:], 0) // result: success
	h.sendSigPDU(conn, cidSigLE, l2capLEConnRsp, ident, rsp)

	if server.ConnectCB != nil {
		server.ConnectCB(conn, l2)
	}
}

// handleEcredConnReq implements the Enhanced Credit Based server path,
// per spec §4.6: up to five fresh dcids, each MTU=MPS=64, credits=1.
// Per spec §9 open question (c), the response's per-channel CID list
// ("rsp->scid[i]" in the original) is read as the newly-allocated
// local CIDs the peer should address as its destination — consistent
// with how the BR/EDR and LE COC responses name their own local
// allocation "dcid" from the requester's point of view.
func (h *Host) handleEcredConnReq(conn *Conn, ident uint8, data []byte) {
	if len(data) < 8 {
		return
	}
	psm := h4.O.Uint16(data[0:])
	credits := h4.O.Uint16(data[6:])
	peerSCIDs := data[8:]
	n := len(peerSCIDs) / 2
	if n > 5 {
		n = 5
	}

	server, ok := h.l2servers[psm]

	rsp := make([]byte, 6+2*n+2) // mtu, mps, credits, cid[n], result
	if !ok {
		h4.O.PutUint16(rsp[6+2*n:], 0x0002) // PSM not supported
		h.sendSigPDU(conn, cidSigLE, l2capEcredConnRsp, ident, rsp)
		return
	}

	h4.O.PutUint16(rsp[0:], 64) // MTU
	h4.O.PutUint16(rsp[2:], 64) // MPS
	h4.O.PutUint16(rsp[4:], 1)  // initial credits

	newCIDs := make([]uint16, n)
	for i := 0; i < n; i++ {
		peerSCID := h4.O.Uint16(peerSCIDs[i*2:])
		ourCID := conn.allocCID()
		l2 := &L2Conn{SCID: ourCID, DCID: peerSCID, PSM: psm, Mode: ModeLEEnhancedCreditBased, MTU: 64, MPS: 64, Credits: credits}
		conn.addL2Conn(l2)
		newCIDs[i] = ourCID
		h4.O.PutUint16(rsp[6+i*2:], ourCID)
	}
	h4.O.PutUint16(rsp[6+2*n:], 0) // result: success

	h.sendSigPDU(conn, cidSigLE, l2capEcredConnRsp, ident, rsp)

	if server.ConnectCB != nil {
		for _, cid := range newCIDs {
			if l2 := conn.findL2ConnBySCID(cid); l2 != nil {
				server.ConnectCB(conn, l2)
			}
		}
	}
}

// handleCreditSDU implements credit-based SDU reassembly, per spec §4.6:
// one LE_FLOWCTL_CREDS(credits=1) is emitted per inbound payload; a
// 2-byte length prefix starts a new SDU, subsequent payloads append.
func (h *Host) handleCreditSDU(conn *Conn, l2 *L2Conn, payload []byte) {
	creditPayload := make([]byte, 4)
	h4.O.PutUint16(creditPayload[0:], l2.SCID)
	h4.O.PutUint16(creditPayload[2:], 1)
	h.sendSigPDU(conn, cidSigLE, l2capLEFlowCtlCreds, h.nextIdent(), creditPayload)

	if l2.recvData == nil {
		if len(payload) < 2 {
			h.log.Debug("bthost: credit-mode SDU start too short, dropped")
			return
		}
		sduLen := int(h4.O.Uint16(payload[0:]))
		data := payload[2:]
		if len(data) > sduLen {
			h.log.Debug("bthost: credit-mode SDU start oversized, dropped")
			return
		}
		l2.recvData = make([]byte, sduLen)
		l2.recvLen = copy(l2.recvData, data)
		l2.dataLen = sduLen
	} else {
		if l2.recvLen+len(payload) > l2.dataLen {
			h.log.Debug("bthost: credit-mode SDU continuation oversized, dropping in-progress SDU")
			l2.recvData, l2.recvLen, l2.dataLen = nil, 0, 0
			return
		}
		l2.recvLen += copy(l2.recvData[l2.recvLen:], payload)
	}

	if l2.recvLen == l2.dataLen {
		sdu := l2.recvData
		l2.recvData, l2.recvLen, l2.dataLen = nil, 0, 0
		h.metrics.IncSDU()
		if hook, ok := conn.cidHooks[l2.SCID]; ok {
			hook.Handler(sdu)
		}
	}
}
