// Package bthost implements an emulated Bluetooth host: a test-harness
// peer that speaks HCI over an H4 byte stream, multiplexes ACL/SCO/ISO
// transports, and runs the L2CAP and RFCOMM upper-stack state machines.
//
// The design follows paypal-gatt's linux package (opcode tables, event
// dispatch, wire marshaling idiom) with one deliberate departure: Host
// is single-task cooperative (spec §5), so the teacher's goroutine-per-
// packet mainLoop and channel-based command completion are replaced by
// direct synchronous calls from ReceiveH4.
package bthost

import (
	"github.com/sirupsen/logrus"

	"github.com/emulab/bthost/internal/metrics"
)

// SendFunc writes one H4 frame (with its packet-type byte already
// prepended) to the transport. It corresponds to spec §6's
// send_handler(iovec[], user) — the iovec is collapsed to a single
// byte slice since Go callers rarely need scatter-gather writes here.
type SendFunc func(frame []byte) error

// Host is the singleton emulated-peer state described in spec §3.
type Host struct {
	// --- identity & capabilities ---
	addr     [6]byte
	features [8]byte
	aclMTU   uint16
	isoMTU   uint16

	// --- HCI command pipeline (§4.2) ---
	ncmd     uint8
	cmdQueue [][]byte

	// --- connections ---
	conns map[uint16]*Conn

	// pendingConnect records that this Host itself issued CREATE_CONN and
	// is awaiting the matching Connection Complete, per spec §4.3's
	// "initiator/responder derived from conn_init" (bthost.c's
	// init_conn). Consumed and cleared in handleConnectionComplete.
	pendingConnect bool

	// --- L2CAP ---
	l2reqs      []*l2capPendingRequest
	l2identSeq  uint8
	l2servers   map[uint16]*l2capServer // keyed by PSM

	// --- RFCOMM ---
	rfcommServers map[uint8]*rfcommServer // keyed by channel
	pendingRFCOMM *pendingRFCOMMConn

	// --- security / pairing knobs (consumed by the HCI event decoder,
	// SMP itself is external per spec §1) ---
	sc                bool
	le                bool
	pin               *string
	ioCapability      uint8
	authReq           uint8
	rejectUserConfirm bool
	smp               SMP

	// --- advertising reports (§3, §4.11) ---
	advReports []AdvReport

	// --- external glue ---
	send        SendFunc
	ready       bool
	readyCB     func()
	newConnCB   func(c *Conn)
	cmdCompleteCB func(opcode uint16, params []byte)
	cisAcceptCB func(handle uint16) (reason uint8)

	log     *logrus.Logger
	metrics *metrics.Collector
}

// AdvReport is one cached LE Extended Advertising Report entry (§3).
type AdvReport struct {
	AddrType   uint8
	Addr       [6]byte
	DirectAddr [6]byte
}

// New creates a Host with its command-credit counter at its required
// initial value of 1 (spec §3).
func New() *Host {
	return &Host{
		ncmd:          1,
		aclMTU:        672,
		isoMTU:        251,
		conns:         make(map[uint16]*Conn),
		l2servers:     make(map[uint16]*l2capServer),
		rfcommServers: make(map[uint8]*rfcommServer),
		smp:           nopSMP{},
		log:           logrus.StandardLogger(),
		metrics:       metrics.New(nil),
	}
}

// Destroy tears down every Conn and cancels every pending L2CAP request
// with the "cancelled" signature (code=0, data=nil), per spec §5/§7.
func (h *Host) Destroy() {
	for _, req := range h.l2reqs {
		if req.Callback != nil {
			req.Callback(0, nil, req.User)
		}
	}
	h.l2reqs = nil
	for handle, c := range h.conns {
		c.teardown()
		delete(h.conns, handle)
	}
}

// SetSendHandler installs the transport writer.
func (h *Host) SetSendHandler(f SendFunc) { h.send = f }

// SetLogger overrides the ambient logger (default logrus.StandardLogger()).
func (h *Host) SetLogger(l *logrus.Logger) { h.log = l }

// SetMetrics overrides the ambient metrics collector (default a
// no-registry, nil-safe Collector).
func (h *Host) SetMetrics(m *metrics.Collector) { h.metrics = m }

// SetSMP installs the external SMP collaborator (spec §1).
func (h *Host) SetSMP(s SMP) {
	if s == nil {
		s = nopSMP{}
	}
	h.smp = s
}

// SetACLMTU sets the fragmentation policy for outbound ACL payloads (§4.4).
func (h *Host) SetACLMTU(mtu uint16) { h.aclMTU = mtu }

// SetISOMTU sets the fragmentation policy for outbound ISO payloads (§4.4).
func (h *Host) SetISOMTU(mtu uint16) { h.isoMTU = mtu }

// SetPINCode configures the PIN code used to answer PIN Code Request
// events; nil means always reply negatively (§4.3).
func (h *Host) SetPINCode(pin *string) { h.pin = pin }

// SetIOCapability configures the IO capability replied in IO Capability
// Request Reply (§4.3).
func (h *Host) SetIOCapability(cap uint8) { h.ioCapability = cap }

// SetAuthReq configures the authentication-requirements byte replied in
// IO Capability Request Reply (§4.3).
func (h *Host) SetAuthReq(req uint8) { h.authReq = req }

// SetSCSupport configures whether this Host advertises Secure
// Connections support, which gates the SMP fixed-channel bit of the
// BR/EDR INFO_RSP (§4.5).
func (h *Host) SetSCSupport(sc bool) { h.sc = sc }

// SetLESupport configures whether LE is enabled, which also gates the
// SMP fixed-channel bit of the BR/EDR INFO_RSP (§4.5).
func (h *Host) SetLESupport(le bool) { h.le = le }

// SetRejectUserConfirm configures whether User Confirm Requests are
// rejected instead of accepted (§4.3).
func (h *Host) SetRejectUserConfirm(reject bool) { h.rejectUserConfirm = reject }

// SetNewConnCallback registers a callback fired once per newly allocated
// ACL Conn, BR/EDR or LE (§4.3's "Fire new_conn_cb if registered"). SCO
// and ISO Conns do not fire it.
func (h *Host) SetNewConnCallback(cb func(c *Conn)) { h.newConnCB = cb }

// SetCISAcceptFilter registers the accept-filter callback used to answer
// LE CIS Request events (§4.3). Without one, CIS requests are accepted.
func (h *Host) SetCISAcceptFilter(cb func(handle uint16) (reason uint8)) {
	h.cisAcceptCB = cb
}

// OnReady registers a callback fired exactly once, the first time
// READ_BD_ADDR completes successfully (§3, §4.2).
func (h *Host) OnReady(cb func()) {
	if h.ready {
		cb()
		return
	}
	h.readyCB = cb
}

// BDAddr returns the local address, valid once the Host is Ready.
func (h *Host) BDAddr() [6]byte { return h.addr }

// Ready reports whether READ_BD_ADDR has completed successfully.
func (h *Host) Ready() bool { return h.ready }

// Conn looks up a connection by handle.
func (h *Host) Conn(handle uint16) (*Conn, bool) {
	c, ok := h.conns[handle]
	return c, ok
}

// SearchExtAdvAddr polls the cached extended-advertising report queue
// for an entry matching addr, per spec §6.
func (h *Host) SearchExtAdvAddr(addr [6]byte) (AdvReport, bool) {
	for _, r := range h.advReports {
		if r.Addr == addr {
			return r, true
		}
	}
	return AdvReport{}, false
}

// appendAdvReport de-duplicates by (addrType, addr), keeping the most
// recent report per peer — SPEC_FULL.md §4.11.
func (h *Host) appendAdvReport(r AdvReport) {
	for i, existing := range h.advReports {
		if existing.AddrType == r.AddrType && existing.Addr == r.Addr {
			h.advReports[i] = r
			return
		}
	}
	h.advReports = append(h.advReports, r)
}
