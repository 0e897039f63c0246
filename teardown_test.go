package bthost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emulab/bthost/internal/h4"
	"github.com/emulab/bthost/internal/hciopcode"
)

// fakeSMP is a minimal SMP collaborator for exercising the LTK request
// path and encryption notification, grounded on the SMP/SMPConn
// contract smp.go documents.
type fakeSMP struct {
	ltk        [16]byte
	haveLTK    bool
	encryptedN int
}

func (s *fakeSMP) Attach(handle uint16, initiator bool) SMPConn { return s }
func (s *fakeSMP) DeliverSM(b []byte)                           {}
func (s *fakeSMP) DeliverBREDRSM(b []byte)                      {}
func (s *fakeSMP) Encrypted(mode uint8)                         { s.encryptedN++ }
func (s *fakeSMP) GetLTK(rand uint64, ediv uint16) ([16]byte, bool) {
	return s.ltk, s.haveLTK
}

// TestLELTKRequestRepliesPositivelyWhenSMPHasKey drives scenario S5.
func TestLELTKRequestRepliesPositivelyWhenSMPHasKey(t *testing.T) {
	h, sent := newTestHost()
	smp := &fakeSMP{ltk: [16]byte{0xaa, 0xbb}, haveLTK: true}
	h.SetSMP(smp)

	c := newConn(0x0030, kindACL, [6]byte{}, AddrLEPublic)
	c.smp = smp
	h.conns[0x0030] = c

	body := make([]byte, 12)
	h4.O.PutUint16(body[0:], 0x0030)
	h4.O.PutUint64(body[2:], 0x1122334455667788)
	h4.O.PutUint16(body[10:], 0x9900)
	evt := append([]byte{0x04, 0x3e, byte(1 + len(body)), 0x05}, body...)
	h.ReceiveH4(evt)

	require.NotEmpty(t, *sent)
	frame := (*sent)[len(*sent)-1]
	opcode := uint16(frame[1]) | uint16(frame[2])<<8
	assert.Equal(t, uint16(hciopcode.LELTKReqReply), opcode)
	assert.Equal(t, smp.ltk[:], frame[6:22])
}

// TestLELTKRequestRepliesNegativelyOnMiss covers the lookup-miss branch.
func TestLELTKRequestRepliesNegativelyOnMiss(t *testing.T) {
	h, sent := newTestHost()
	smp := &fakeSMP{haveLTK: false}
	c := newConn(0x0031, kindACL, [6]byte{}, AddrLEPublic)
	c.smp = smp
	h.conns[0x0031] = c

	body := make([]byte, 12)
	h4.O.PutUint16(body[0:], 0x0031)
	evt := append([]byte{0x04, 0x3e, byte(1 + len(body)), 0x05}, body...)
	h.ReceiveH4(evt)

	require.NotEmpty(t, *sent)
	frame := (*sent)[len(*sent)-1]
	opcode := uint16(frame[1]) | uint16(frame[2])<<8
	assert.Equal(t, uint16(hciopcode.LELTKReqNegReply), opcode)
}

// TestDisconnectionTeardownFiresHookDestroyCallbacks covers scenario S6:
// every hook's destroy callback runs exactly once on disconnection, and
// subsequent sends against the torn-down Conn are silent no-ops.
func TestDisconnectionTeardownFiresHookDestroyCallbacks(t *testing.T) {
	h, sent := newTestHost()
	c := newTestConn(h, 0x0040)

	var cidDestroyed, rfcommDestroyed, scoDestroyed, isoDestroyed int
	c.AddCidHook(0x0050, func(b []byte) {}, nil, func(interface{}) { cidDestroyed++ })
	c.AddRfcommChanHook(3, func(b []byte) {}, nil, func(interface{}) { rfcommDestroyed++ })
	c.AddScoHook(func(status uint8, b []byte) {}, nil, func(interface{}) { scoDestroyed++ })
	c.AddIsoHook(func(b []byte) {}, nil, func(interface{}) { isoDestroyed++ })

	evt := []byte{0x04, 0x05, 0x03, 0x00, byte(0x0040), byte(0x0040 >> 8)}
	h.ReceiveH4(evt)

	assert.Equal(t, 1, cidDestroyed)
	assert.Equal(t, 1, rfcommDestroyed)
	assert.Equal(t, 1, scoDestroyed)
	assert.Equal(t, 1, isoDestroyed)
	_, ok := h.Conn(0x0040)
	assert.False(t, ok, "the handle must be forgotten by the Host after teardown")

	// The realistic case: a caller still holds the pre-disconnect *Conn
	// pointer (not a fresh nil from a registry lookup). teardown() must
	// have marked it so SendCid is a silent no-op against it too (spec
	// §8 S6 is keyed on the handle, not on pointer nilness).
	before := len(*sent)
	h.SendCid(c, 0x0050, []byte("late"))
	assert.Equal(t, before, len(*sent), "sending against a torn-down Conn pointer must be a silent no-op")
}

// TestDoubleRegistrationDoesNotDoubleFireDestroy guards the hook
// uniqueness invariant for the single-slot SCO/ISO hooks.
func TestDoubleRegistrationDoesNotDoubleFireDestroy(t *testing.T) {
	h, _ := newTestHost()
	c := newTestConn(h, 0x0041)

	var firstDestroyed, secondDestroyed bool
	c.AddScoHook(func(status uint8, b []byte) {}, nil, func(interface{}) { firstDestroyed = true })
	c.AddScoHook(func(status uint8, b []byte) {}, nil, func(interface{}) { secondDestroyed = true })

	c.teardown()

	assert.True(t, firstDestroyed, "the first registration must be the one kept and torn down")
	assert.False(t, secondDestroyed, "a second AddScoHook call must be a no-op per spec §4.8")
	_ = h
}
