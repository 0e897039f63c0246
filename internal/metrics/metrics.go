// Package metrics exposes the Prometheus counters bthostd registers for
// command/ACL/L2CAP/RFCOMM traffic, following the counter-vector style
// marmos91-dittofs registers its server metrics with
// (github.com/prometheus/client_golang/prometheus).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector groups the counters a Host reports through. The zero value
// is safe to use (all counters are nil and the Inc methods become no-ops), so a
// Host built without metrics wiring pays no cost.
type Collector struct {
	CommandsQueued  prometheus.Counter
	CommandsSent    prometheus.Counter
	ACLFragmentsIn  prometheus.Counter
	ACLFragmentsOut prometheus.Counter
	SDUsReassembled prometheus.Counter
	RFCOMMFrames    *prometheus.CounterVec
}

// New registers a fresh Collector against reg and returns it.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		CommandsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bthost", Name: "commands_queued_total",
			Help: "HCI commands appended to the FIFO pending a credit.",
		}),
		CommandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bthost", Name: "commands_sent_total",
			Help: "HCI commands written to the transport.",
		}),
		ACLFragmentsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bthost", Name: "acl_fragments_in_total",
			Help: "Inbound ACL fragments processed.",
		}),
		ACLFragmentsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bthost", Name: "acl_fragments_out_total",
			Help: "Outbound ACL fragments written.",
		}),
		SDUsReassembled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bthost", Name: "l2cap_sdus_reassembled_total",
			Help: "Credit-mode L2CAP SDUs fully reassembled.",
		}),
		RFCOMMFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bthost", Name: "rfcomm_frames_total",
			Help: "RFCOMM frames processed, by frame type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(c.CommandsQueued, c.CommandsSent, c.ACLFragmentsIn,
			c.ACLFragmentsOut, c.SDUsReassembled, c.RFCOMMFrames)
	}
	return c
}

func (c *Collector) incCommandsQueued() {
	if c != nil && c.CommandsQueued != nil {
		c.CommandsQueued.Inc()
	}
}

func (c *Collector) incCommandsSent() {
	if c != nil && c.CommandsSent != nil {
		c.CommandsSent.Inc()
	}
}

func (c *Collector) incACLIn() {
	if c != nil && c.ACLFragmentsIn != nil {
		c.ACLFragmentsIn.Inc()
	}
}

func (c *Collector) incACLOut() {
	if c != nil && c.ACLFragmentsOut != nil {
		c.ACLFragmentsOut.Inc()
	}
}

func (c *Collector) incSDU() {
	if c != nil && c.SDUsReassembled != nil {
		c.SDUsReassembled.Inc()
	}
}

func (c *Collector) incRFCOMM(typ string) {
	if c != nil && c.RFCOMMFrames != nil {
		c.RFCOMMFrames.WithLabelValues(typ).Inc()
	}
}

// IncCommandsQueued reports a command appended to the FIFO. Safe on a nil Collector.
func (c *Collector) IncCommandsQueued() { c.incCommandsQueued() }

// IncCommandsSent reports a command written to the transport. Safe on a nil Collector.
func (c *Collector) IncCommandsSent() { c.incCommandsSent() }

// IncACLIn reports an inbound ACL fragment. Safe on a nil Collector.
func (c *Collector) IncACLIn() { c.incACLIn() }

// IncACLOut reports an outbound ACL fragment. Safe on a nil Collector.
func (c *Collector) IncACLOut() { c.incACLOut() }

// IncSDU reports a fully reassembled credit-mode SDU. Safe on a nil Collector.
func (c *Collector) IncSDU() { c.incSDU() }

// IncRFCOMM reports a processed RFCOMM frame of the given type. Safe on a nil Collector.
func (c *Collector) IncRFCOMM(typ string) { c.incRFCOMM(typ) }
