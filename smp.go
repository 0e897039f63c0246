package bthost

// SMP is the narrow contract the Security Manager Protocol collaborator
// must satisfy. Pairing, key derivation, and the SMP state machine
// itself are out of scope for this module (spec §1) — Host only needs
// to attach one SMPConn per Conn and forward bytes and encryption-state
// notifications through it.
type SMP interface {
	// Attach creates the per-connection SMP state. initiator is true
	// when this Host initiated the link (master/central role).
	Attach(handle uint16, initiator bool) SMPConn
}

// SMPConn is the per-Conn handle into the external SMP collaborator.
type SMPConn interface {
	// DeliverSM forwards an inbound LE SMP PDU (fixed CID 0x0006).
	DeliverSM(b []byte)
	// DeliverBREDRSM forwards an inbound BR/EDR SMP PDU (fixed CID 0x0007).
	DeliverBREDRSM(b []byte)
	// GetLTK resolves the long-term key for an LE LTK Request by
	// (rand, ediv). ok is false on a lookup miss.
	GetLTK(rand uint64, ediv uint16) (ltk [16]byte, ok bool)
	// Encrypted notifies SMP that the link's encryption state changed;
	// mode is 0 (off) or 1 (on).
	Encrypted(mode uint8)
}

// nopSMPConn is attached to every ACL Conn when no SMP collaborator is
// configured, so lookups on such a Conn simply miss. SCO and ISO Conns
// carry no SMPConn at all (Conn.smp is nil for them).
type nopSMPConn struct{}

func (nopSMPConn) DeliverSM(b []byte)         {}
func (nopSMPConn) DeliverBREDRSM(b []byte)    {}
func (nopSMPConn) Encrypted(mode uint8)       {}
func (nopSMPConn) GetLTK(rand uint64, ediv uint16) ([16]byte, bool) {
	return [16]byte{}, false
}

type nopSMP struct{}

func (nopSMP) Attach(handle uint16, initiator bool) SMPConn { return nopSMPConn{} }
