package bthost

import (
	"github.com/emulab/bthost/internal/h4"
	"github.com/emulab/bthost/internal/hciopcode"
)

// SetAdvData issues LE_SET_ADV_DATA, per spec §6. data is padded/
// truncated to the fixed 31-byte AD field the legacy command expects.
func (h *Host) SetAdvData(data []byte) {
	payload := make([]byte, 32)
	n := len(data)
	if n > 31 {
		n = 31
	}
	payload[0] = byte(n)
	copy(payload[1:], data[:n])
	h.sendCommand(hciopcode.LESetAdvData, payload)
}

// SetAdvEnable issues LE_SET_ADV_ENABLE, per spec §6.
func (h *Host) SetAdvEnable(enable bool) {
	h.sendCommand(hciopcode.LESetAdvEnable, []byte{b2u8(enable)})
}

// SetScanParams issues LE_SET_SCAN_PARAMETERS with passive scanning
// and no whitelist filtering, per spec §6.
func (h *Host) SetScanParams(interval, window uint16) {
	payload := make([]byte, 7)
	payload[0] = 0x00 // passive
	h4.O.PutUint16(payload[1:], interval)
	h4.O.PutUint16(payload[3:], window)
	payload[5] = 0x00 // own address type: public
	payload[6] = 0x00 // filter policy: accept all
	h.sendCommand(hciopcode.LESetScanParams, payload)
}

// SetScanEnable issues LE_SET_SCAN_ENABLE, per spec §6.
func (h *Host) SetScanEnable(enable, filterDuplicates bool) {
	h.sendCommand(hciopcode.LESetScanEnable, []byte{b2u8(enable), b2u8(filterDuplicates)})
}

// SetExtAdvParams issues LE_SET_EXT_ADV_PARAMETERS for advertising set
// advHandle with a single 1M-PHY legacy-compatible config, per spec §6.
func (h *Host) SetExtAdvParams(advHandle uint8, intervalMin, intervalMax uint32) {
	payload := make([]byte, 25)
	payload[0] = advHandle
	h4.O.PutUint16(payload[1:], 0x0013) // event properties: legacy ADV_IND
	payload[3] = byte(intervalMin)
	payload[4] = byte(intervalMin >> 8)
	payload[5] = byte(intervalMin >> 16)
	payload[6] = byte(intervalMax)
	payload[7] = byte(intervalMax >> 8)
	payload[8] = byte(intervalMax >> 16)
	payload[9] = 0x07 // channel map: 37,38,39
	payload[10] = 0   // own address type: public
	payload[11] = 0   // peer address type
	// payload[12:18]: peer address, left zero (undirected)
	payload[18] = 0 // filter policy
	payload[19] = 0 // TX power: 0 dBm (0x7f would be "host has no preference")
	payload[20] = 1 // primary PHY: 1M
	payload[21] = 0 // secondary max skip
	payload[22] = 1 // secondary PHY: 1M
	payload[23] = 0 // SID
	payload[24] = 0 // scan request notify disabled
	h.sendCommand(hciopcode.LESetExtAdvParams, payload)
}

// SetExtAdvData issues LE_SET_EXT_ADV_DATA for advertising set
// advHandle as one complete, unfragmented operation, per spec §6.
func (h *Host) SetExtAdvData(advHandle uint8, data []byte) {
	payload := make([]byte, 4+len(data))
	payload[0] = advHandle
	payload[1] = 0x03 // operation: complete data, unfragmented
	payload[2] = 0x01 // fragment preference: controller should not fragment
	payload[3] = byte(len(data))
	copy(payload[4:], data)
	h.sendCommand(hciopcode.LESetExtAdvData, payload)
}

// SetExtAdvEnable issues LE_SET_EXT_ADV_ENABLE for a single advertising
// set, per spec §6.
func (h *Host) SetExtAdvEnable(enable bool, advHandle uint8, duration uint16, maxEvents uint8) {
	payload := make([]byte, 2+4)
	payload[0] = b2u8(enable)
	payload[1] = 1 // one set
	payload[2] = advHandle
	h4.O.PutUint16(payload[3:], duration)
	payload[5] = maxEvents
	h.sendCommand(hciopcode.LESetExtAdvEnable, payload)
}

// SetPAParams issues LE_SET_PERIODIC_ADV_PARAMETERS, per spec §6.
func (h *Host) SetPAParams(advHandle uint8, intervalMin, intervalMax uint16) {
	payload := make([]byte, 7)
	payload[0] = advHandle
	h4.O.PutUint16(payload[1:], intervalMin)
	h4.O.PutUint16(payload[3:], intervalMax)
	h4.O.PutUint16(payload[5:], 0x0000) // properties: no tx power in headers
	h.sendCommand(hciopcode.LESetPeriodicAdvParams, payload)
}

// SetPAData issues LE_SET_PERIODIC_ADV_DATA, per spec §6.
func (h *Host) SetPAData(advHandle uint8, data []byte) {
	payload := make([]byte, 3+len(data))
	payload[0] = advHandle
	payload[1] = 0x03 // operation: complete data
	payload[2] = byte(len(data))
	copy(payload[3:], data)
	h.sendCommand(hciopcode.LESetPeriodicAdvData, payload)
}

// SetPAEnable issues LE_SET_PERIODIC_ADV_ENABLE, per spec §6.
func (h *Host) SetPAEnable(enable bool, advHandle uint8) {
	h.sendCommand(hciopcode.LESetPeriodicAdvEnable, []byte{b2u8(enable), advHandle})
}

// SetCIGParams issues LE_SET_CIG_PARAMS for a single bidirectional CIS,
// per spec §6, using the BlueZ test-harness defaults for PHY and RTN.
func (h *Host) SetCIGParams(cigID uint8, sduIntervalM2S, sduIntervalS2M uint32, cisID uint8) {
	const headerLen = 15
	payload := make([]byte, headerLen+9) // fixed header + one CIS entry
	payload[0] = cigID
	payload[1] = byte(sduIntervalM2S)
	payload[2] = byte(sduIntervalM2S >> 8)
	payload[3] = byte(sduIntervalM2S >> 16)
	payload[4] = byte(sduIntervalS2M)
	payload[5] = byte(sduIntervalS2M >> 8)
	payload[6] = byte(sduIntervalS2M >> 16)
	payload[7] = 0x00 // worst-case SCA
	payload[8] = 0x00 // packing: sequential
	payload[9] = 0x00 // framing: unframed
	h4.O.PutUint16(payload[10:], 0x0028) // max transport latency M2S
	h4.O.PutUint16(payload[12:], 0x0028) // max transport latency S2M
	payload[14] = 1                      // one CIS in this CIG

	off := headerLen
	payload[off] = cisID
	h4.O.PutUint16(payload[off+1:], 40) // max SDU M2S
	h4.O.PutUint16(payload[off+3:], 40) // max SDU S2M
	payload[off+5] = 1 // PHY M2S: 1M
	payload[off+6] = 1 // PHY S2M: 1M
	payload[off+7] = 0 // RTN M2S
	payload[off+8] = 0 // RTN S2M
	h.sendCommand(hciopcode.LESetCIGParams, payload)
}

// CreateCIS issues LE_CREATE_CIS for a single CIS/ACL handle pair, per
// spec §6.
func (h *Host) CreateCIS(cisHandle, aclHandle uint16) {
	payload := make([]byte, 5)
	payload[0] = 1 // one CIS
	h4.O.PutUint16(payload[1:], cisHandle)
	h4.O.PutUint16(payload[3:], aclHandle)
	h.sendCommand(hciopcode.LECreateCIS, payload)
}

// CreateBIG issues LE_CREATE_BIG for a single-BIS broadcast, per spec
// §6, using the BlueZ test-harness defaults.
func (h *Host) CreateBIG(bigHandle, advHandle uint8, sduInterval uint32, maxSDU uint16) {
	payload := make([]byte, 31) // ...+16-byte broadcast code, zero when unencrypted
	payload[0] = bigHandle
	payload[1] = advHandle
	payload[2] = 1 // one BIS
	payload[3] = byte(sduInterval)
	payload[4] = byte(sduInterval >> 8)
	payload[5] = byte(sduInterval >> 16)
	h4.O.PutUint16(payload[6:], maxSDU)
	h4.O.PutUint16(payload[8:], 0x0064) // max transport latency
	payload[10] = 0x04                  // RTN
	payload[11] = 0x01                  // PHY: 1M
	payload[12] = 0x00                  // packing: sequential
	payload[13] = 0x00                  // framing: unframed
	payload[14] = 0x00                  // encryption off
	h.sendCommand(hciopcode.LECreateBIG, payload)
}
