// Package hciopcode carries the HCI command opcode and event code tables
// this module needs, grounded on paypal-gatt's linux/cmd.go and
// linux/event.go OGF/OCF const blocks and opName/eventName lookup maps.
// Only the opcodes and events spec.md §6 and §4.3 name are included; the
// teacher's much larger tables (AMP, sniff/park power modes, inquiry)
// are trimmed since this host never issues or expects them.
package hciopcode

// OGF groups, as in linux/cmd.go.
const (
	ogfLinkCtl  = 0x01
	ogfHostCtl  = 0x03
	ogfInfoParm = 0x04
	ogfStatus   = 0x05
	ogfLECtl    = 0x08
)

// Opcode is a full 10-bit-OCF/6-bit-OGF HCI command opcode.
type Opcode uint16

func (op Opcode) OGF() uint8  { return uint8(op >> 10) }
func (op Opcode) OCF() uint16 { return uint16(op) & 0x03ff }
func (op Opcode) String() string {
	if n, ok := Name[op]; ok {
		return n
	}
	return "unknown"
}

// Link Control.
const (
	CreateConn       = Opcode(ogfLinkCtl<<10 | 0x0005)
	Disconnect       = Opcode(ogfLinkCtl<<10 | 0x0006)
	AcceptConnReq    = Opcode(ogfLinkCtl<<10 | 0x0009)
	PinCodeReply     = Opcode(ogfLinkCtl<<10 | 0x000d)
	PinCodeNegReply  = Opcode(ogfLinkCtl<<10 | 0x000e)
	AuthRequested    = Opcode(ogfLinkCtl<<10 | 0x0011)
	SetConnEncrypt   = Opcode(ogfLinkCtl<<10 | 0x0013)
	SetupSyncConn    = Opcode(ogfLinkCtl<<10 | 0x0028)
	IOCapReply       = Opcode(ogfLinkCtl<<10 | 0x002b)
	UserConfirmReply = Opcode(ogfLinkCtl<<10 | 0x002c)
	UserConfirmNeg   = Opcode(ogfLinkCtl<<10 | 0x002d)
	LinkKeyNegReply  = Opcode(ogfLinkCtl<<10 | 0x000c)
	IOCapNegReply    = Opcode(ogfLinkCtl<<10 | 0x0034)
)

// Host Controller & Baseband.
const (
	Reset                  = Opcode(ogfHostCtl<<10 | 0x0003)
	WriteScanEnable        = Opcode(ogfHostCtl<<10 | 0x001a)
	WriteSimplePairingMode = Opcode(ogfHostCtl<<10 | 0x0056)
	WriteLEHostSupported   = Opcode(ogfHostCtl<<10 | 0x006d)
)

// Informational Parameters.
const (
	ReadLocalFeatures = Opcode(ogfInfoParm<<10 | 0x0003)
	ReadBDAddr        = Opcode(ogfInfoParm<<10 | 0x0009)
)

// Host Controller & Baseband (Secure Connections).
const (
	WriteSecureConnSupport = Opcode(ogfHostCtl<<10 | 0x007a)
)

// LE Controller.
const (
	LESetAdvParams          = Opcode(ogfLECtl<<10 | 0x0006)
	LESetAdvData            = Opcode(ogfLECtl<<10 | 0x0008)
	LESetScanRspData        = Opcode(ogfLECtl<<10 | 0x0009)
	LESetAdvEnable          = Opcode(ogfLECtl<<10 | 0x000a)
	LESetScanParams         = Opcode(ogfLECtl<<10 | 0x000b)
	LESetScanEnable         = Opcode(ogfLECtl<<10 | 0x000c)
	LECreateConn            = Opcode(ogfLECtl<<10 | 0x000d)
	LEConnUpdate            = Opcode(ogfLECtl<<10 | 0x0013)
	LEStartEncryption       = Opcode(ogfLECtl<<10 | 0x0019)
	LELTKReqReply           = Opcode(ogfLECtl<<10 | 0x001a)
	LELTKReqNegReply        = Opcode(ogfLECtl<<10 | 0x001b)
	LESetCIGParams          = Opcode(ogfLECtl<<10 | 0x0062)
	LECreateCIS             = Opcode(ogfLECtl<<10 | 0x0064)
	LEAcceptCISReq          = Opcode(ogfLECtl<<10 | 0x0066)
	LERejectCISReq          = Opcode(ogfLECtl<<10 | 0x0067)
	LECreateBIG             = Opcode(ogfLECtl<<10 | 0x0068)
	LESetExtAdvParams       = Opcode(ogfLECtl<<10 | 0x0036)
	LESetExtAdvData         = Opcode(ogfLECtl<<10 | 0x0037)
	LESetExtScanRspData     = Opcode(ogfLECtl<<10 | 0x0038)
	LESetExtAdvEnable       = Opcode(ogfLECtl<<10 | 0x0039)
	LESetPeriodicAdvParams  = Opcode(ogfLECtl<<10 | 0x003e)
	LESetPeriodicAdvData    = Opcode(ogfLECtl<<10 | 0x003f)
	LESetPeriodicAdvEnable  = Opcode(ogfLECtl<<10 | 0x0040)
	LEExtCreateConn         = Opcode(ogfLECtl<<10 | 0x0043)
)

// Name gives the human-readable opcode label used in trace logs, the way
// linux/cmd.go's opName map does.
var Name = map[Opcode]string{
	CreateConn:             "Create Connection",
	Disconnect:             "Disconnect",
	AcceptConnReq:          "Accept Connection Request",
	PinCodeReply:           "PIN Code Request Reply",
	PinCodeNegReply:        "PIN Code Request Negative Reply",
	AuthRequested:          "Authentication Requested",
	SetConnEncrypt:         "Set Connection Encryption",
	SetupSyncConn:          "Setup Synchronous Connection",
	IOCapReply:             "IO Capability Request Reply",
	UserConfirmReply:       "User Confirmation Request Reply",
	UserConfirmNeg:         "User Confirmation Request Negative Reply",
	LinkKeyNegReply:        "Link Key Request Negative Reply",
	IOCapNegReply:          "IO Capability Request Negative Reply",
	Reset:                  "Reset",
	WriteScanEnable:        "Write Scan Enable",
	WriteSimplePairingMode: "Write Simple Pairing Mode",
	WriteLEHostSupported:   "Write LE Host Supported",
	ReadLocalFeatures:      "Read Local Supported Features",
	ReadBDAddr:             "Read BD ADDR",
	WriteSecureConnSupport: "Write Secure Connections Host Support",
	LESetAdvParams:         "LE Set Advertising Parameters",
	LESetAdvData:           "LE Set Advertising Data",
	LESetScanRspData:       "LE Set Scan Response Data",
	LESetAdvEnable:         "LE Set Advertise Enable",
	LESetScanParams:        "LE Set Scan Parameters",
	LESetScanEnable:        "LE Set Scan Enable",
	LECreateConn:           "LE Create Connection",
	LEConnUpdate:           "LE Connection Update",
	LEStartEncryption:      "LE Start Encryption",
	LELTKReqReply:          "LE Long Term Key Request Reply",
	LELTKReqNegReply:       "LE Long Term Key Request Negative Reply",
	LESetCIGParams:         "LE Set CIG Parameters",
	LECreateCIS:            "LE Create CIS",
	LEAcceptCISReq:         "LE Accept CIS Request",
	LERejectCISReq:         "LE Reject CIS Request",
	LECreateBIG:            "LE Create BIG",
	LESetExtAdvParams:      "LE Set Extended Advertising Parameters",
	LESetExtAdvData:        "LE Set Extended Advertising Data",
	LESetExtScanRspData:    "LE Set Extended Scan Response Data",
	LESetExtAdvEnable:      "LE Set Extended Advertising Enable",
	LESetPeriodicAdvParams: "LE Set Periodic Advertising Parameters",
	LESetPeriodicAdvData:   "LE Set Periodic Advertising Data",
	LESetPeriodicAdvEnable: "LE Set Periodic Advertising Enable",
	LEExtCreateConn:        "LE Extended Create Connection",
}
