package hciopcode

// EventCode is the HCI event packet's code byte, grounded on
// linux/event.go's eventCode const block.
type EventCode uint8

const (
	InquiryComplete        EventCode = 0x01
	ConnectionComplete     EventCode = 0x03
	ConnectionRequest      EventCode = 0x04
	DisconnectionComplete  EventCode = 0x05
	AuthenticationComplete EventCode = 0x06
	EncryptionChange       EventCode = 0x08
	CommandComplete        EventCode = 0x0e
	CommandStatus          EventCode = 0x0f
	NumberOfCompletedPkts  EventCode = 0x13
	PINCodeRequest         EventCode = 0x16
	LinkKeyRequest         EventCode = 0x17
	IOCapabilityRequest    EventCode = 0x31
	IOCapabilityResponse   EventCode = 0x32
	UserConfirmationReq    EventCode = 0x33
	SyncConnComplete       EventCode = 0x2c
	LEMeta                 EventCode = 0x3e
)

var EventName = map[EventCode]string{
	InquiryComplete:        "Inquiry Complete",
	ConnectionComplete:     "Connection Complete",
	ConnectionRequest:      "Connection Request",
	DisconnectionComplete:  "Disconnection Complete",
	AuthenticationComplete: "Authentication Complete",
	EncryptionChange:       "Encryption Change",
	CommandComplete:        "Command Complete",
	CommandStatus:          "Command Status",
	NumberOfCompletedPkts:  "Number Of Completed Packets",
	PINCodeRequest:         "PIN Code Request",
	LinkKeyRequest:         "Link Key Request",
	IOCapabilityRequest:    "IO Capability Request",
	IOCapabilityResponse:   "IO Capability Response",
	UserConfirmationReq:    "User Confirmation Request",
	SyncConnComplete:       "Synchronous Connection Complete",
	LEMeta:                 "LE Meta Event",
}

func (c EventCode) String() string {
	if n, ok := EventName[c]; ok {
		return n
	}
	return "unknown event"
}

// LESubEventCode is the first octet of an LE Meta event's payload.
type LESubEventCode uint8

const (
	LEConnectionComplete         LESubEventCode = 0x01
	LEAdvertisingReport          LESubEventCode = 0x02
	LEConnectionUpdateComplete   LESubEventCode = 0x03
	LELTKRequest                 LESubEventCode = 0x05
	LEEnhancedConnectionComplete LESubEventCode = 0x0a
	LEExtendedAdvertisingReport  LESubEventCode = 0x0d
	LECISEstablished             LESubEventCode = 0x19
	LECISRequest                 LESubEventCode = 0x1a
	LECreateBIGComplete          LESubEventCode = 0x1b
	LEBIGSyncEstablished         LESubEventCode = 0x1d
)

var LESubEventName = map[LESubEventCode]string{
	LEConnectionComplete:         "LE Connection Complete",
	LEAdvertisingReport:          "LE Advertising Report",
	LEConnectionUpdateComplete:   "LE Connection Update Complete",
	LELTKRequest:                 "LE Long Term Key Request",
	LEEnhancedConnectionComplete: "LE Enhanced Connection Complete",
	LEExtendedAdvertisingReport:  "LE Extended Advertising Report",
	LECISEstablished:             "LE CIS Established",
	LECISRequest:                 "LE CIS Request",
	LECreateBIGComplete:          "LE Create BIG Complete",
	LEBIGSyncEstablished:         "LE BIG Sync Established",
}

func (c LESubEventCode) String() string {
	if n, ok := LESubEventName[c]; ok {
		return n
	}
	return "unknown LE sub-event"
}
