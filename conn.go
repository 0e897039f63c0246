package bthost

// AddrType classifies a Conn's peer address, per spec §3.
type AddrType uint8

const (
	AddrBREDR AddrType = iota
	AddrLEPublic
	AddrLERandom
)

// L2CAPMode distinguishes the flow-control discipline a given L2Conn
// uses, per spec §3.
type L2CAPMode uint8

const (
	ModeOther L2CAPMode = iota
	ModeLECreditBased
	ModeLEEnhancedCreditBased
)

// L2Conn is one connected L2CAP channel on an ACL, per spec §3.
type L2Conn struct {
	SCID uint16 // ours
	DCID uint16 // peer's
	PSM  uint16
	Mode L2CAPMode

	MTU, MPS uint16
	Credits  uint16 // initial credits the peer granted us in its connection request

	// SDU reassembly buffer for credit-mode channels (§4.6). recvLen
	// counts bytes of dataLen collected so far, len(recvData)==dataLen
	// once allocated.
	recvData []byte
	recvLen  int
	dataLen  int
}

// RcConn is one open RFCOMM channel carried over an L2Conn, per spec §3.
type RcConn struct {
	Channel uint8
	SCID    uint16 // the carrier L2Conn's SCID

	// remoteFlowOff and pendingOut implement the MSC-gated send queue
	// from SPEC_FULL.md §4.10 (additive over spec.md's "echo the
	// signal byte back").
	remoteFlowOff bool
	pendingOut    [][]byte
}

// Conn is one ACL, SCO, or ISO link, per spec §3. Per design note §9(a)
// Conn does not carry a back-pointer to its owning Host; methods that
// need Host state (the send handler, PSM registries, idents) take *Host
// explicitly, avoiding the teacher's reverse-pointer style
// (linux le_ext_adv->bthost).
type Conn struct {
	Handle   uint16
	PeerAddr [6]byte
	AddrType AddrType
	EncMode  uint8

	nextCID   uint16 // dynamic CID allocator, starts at 0x0040
	FixedChan uint64 // discovered fixed-channel mask (BR/EDR INFO_RSP)

	l2conns []*L2Conn
	rcconns []*RcConn

	cidHooks    map[uint16]*CidHook
	rfcommHooks map[uint8]*RfcommChanHook
	scoHook     *ScoHook
	isoHook     *IsoHook

	smp SMPConn

	// recvData/recvLen/dataLen is the partial-ACL-PDU reassembly buffer
	// for non-credit-mode L2CAP traffic (§4.4).
	recvData []byte
	recvLen  int
	dataLen  int

	// kind distinguishes ACL/SCO/ISO Conns sharing the same handle
	// namespace, since spec §3 says "one per ACL, SCO, or ISO handle".
	kind connKind

	// rfcommInitiator records which side started the RFCOMM multiplexer
	// session (sent the first SABM on DLCI 0); it sets the C/R bit
	// convention for every frame on this ACL's multiplexer (spec §4.7).
	rfcommInitiator bool
	rfcommMuxOpen   bool

	// torn marks a Conn as disconnected. Held references to it must
	// become silent no-ops (spec §8 S6), even though Go callers may
	// still hold the pointer after the Host has forgotten the handle.
	torn bool
}

// findRFCOMMCarrier returns the L2Conn carrying the RFCOMM multiplexer
// (PSM 0x0003), if one is open on this Conn.
func (c *Conn) findRFCOMMCarrier() *L2Conn {
	for _, l := range c.l2conns {
		if l.PSM == psmRFCOMM {
			return l
		}
	}
	return nil
}

type connKind uint8

const (
	kindACL connKind = iota
	kindSCO
	kindISO
)

func newConn(handle uint16, kind connKind, addr [6]byte, at AddrType) *Conn {
	return &Conn{
		Handle:   handle,
		PeerAddr: addr,
		AddrType: at,
		nextCID:  0x0040,
		kind:     kind,
	}
}

// allocCID returns the next free dynamic source CID for this Conn.
func (c *Conn) allocCID() uint16 {
	cid := c.nextCID
	c.nextCID++
	return cid
}

// findL2ConnBySCID looks up an L2Conn owned by this Conn by local CID.
func (c *Conn) findL2ConnBySCID(scid uint16) *L2Conn {
	for _, l := range c.l2conns {
		if l.SCID == scid {
			return l
		}
	}
	return nil
}

// findL2ConnByDCID looks up an L2Conn owned by this Conn by peer CID.
func (c *Conn) findL2ConnByDCID(dcid uint16) *L2Conn {
	for _, l := range c.l2conns {
		if l.DCID == dcid {
			return l
		}
	}
	return nil
}

func (c *Conn) addL2Conn(l *L2Conn) { c.l2conns = append(c.l2conns, l) }

func (c *Conn) findRcConnByChannel(ch uint8) *RcConn {
	for _, r := range c.rcconns {
		if r.Channel == ch {
			return r
		}
	}
	return nil
}

func (c *Conn) addRcConn(r *RcConn) { c.rcconns = append(c.rcconns, r) }

// teardown releases every sub-structure owned by this Conn exactly
// once, per spec §3's removal invariant and §5's destroy-callback
// contract.
func (c *Conn) teardown() {
	c.teardownHooks()
	c.l2conns = nil
	c.rcconns = nil
	c.smp = nil
	c.torn = true
}
