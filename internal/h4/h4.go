// Package h4 implements the HCI UART transport (H4) framing used between
// an emulated Bluetooth host and its counterpart: a one-byte packet type
// followed by the packet body, plus the little-endian load/store helpers
// the rest of the module marshals wire structures with.
package h4

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// PacketType is the leading H4 octet identifying the kind of packet that
// follows.
type PacketType uint8

// H4 packet types, per the Bluetooth Core Spec UART transport section.
const (
	TypeCommand PacketType = 0x01
	TypeACL     PacketType = 0x02
	TypeSCO     PacketType = 0x03
	TypeEvent   PacketType = 0x04
	TypeISO     PacketType = 0x05
)

func (t PacketType) String() string {
	switch t {
	case TypeCommand:
		return "CMD"
	case TypeACL:
		return "ACL"
	case TypeSCO:
		return "SCO"
	case TypeEvent:
		return "EVT"
	case TypeISO:
		return "ISO"
	default:
		return fmt.Sprintf("0x%02X", uint8(t))
	}
}

// order is binary.ByteOrder plus the odd helpers (MAC, signed bytes) the
// wire structures in this module need, following the teacher's embedding
// idiom (linux/internal/cmd/cmd.go's order/o).
type order struct{ binary.ByteOrder }

// O is the module-wide little-endian accessor.
var O = order{binary.LittleEndian}

func (order) Uint8(b []byte) uint8 { return b[0] }
func (order) Int8(b []byte) int8   { return int8(b[0]) }
func (order) PutUint8(b []byte, v uint8) { b[0] = v }

// MAC reads a 6-byte Bluetooth device address, which is transmitted
// little-endian (least significant octet first) but conventionally
// displayed and stored most-significant-octet first.
func (order) MAC(b []byte) [6]byte {
	return [6]byte{b[5], b[4], b[3], b[2], b[1], b[0]}
}

func (order) PutMAC(b []byte, m [6]byte) {
	b[0], b[1], b[2], b[3], b[4], b[5] = m[5], m[4], m[3], m[2], m[1], m[0]
}

// Dump renders a hex dump tap line in the teacher's `< [ % X ]` style
// (see paypal-gatt linux/l2cap.go's write/Read logging), with a
// direction marker: '<' first fragment of a send, ' ' a continuation,
// '>' a receive.
func Dump(marker byte, b []byte) string {
	var sb strings.Builder
	sb.WriteByte(marker)
	sb.WriteString(" [ ")
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	sb.WriteString(" ]")
	return sb.String()
}
