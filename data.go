package bthost

// SendCid writes data as one L2CAP SDU/PDU on cid, per spec §6
// (send_cid). A disconnected or unknown Conn is a silent no-op, per
// spec §8 scenario S6 — checked against conn.torn rather than nilness,
// since a caller may still hold a pre-disconnect *Conn pointer after
// the handle has been torn down and forgotten by the Host.
func (h *Host) SendCid(conn *Conn, cid uint16, data []byte) {
	if conn == nil || conn.torn {
		return
	}
	h.sendL2CAPFrame(conn, cid, data)
}

// SendCidV is the vectored form of SendCid: the buffers are
// concatenated into one L2CAP payload before fragmentation, per spec
// §6 (send_cid_v). Kept distinct from SendCid so callers building a
// PDU from several non-contiguous pieces (header + body, say) don't
// need to copy them together first.
func (h *Host) SendCidV(conn *Conn, cid uint16, iov [][]byte) {
	if conn == nil || conn.torn {
		return
	}
	total := 0
	for _, v := range iov {
		total += len(v)
	}
	payload := make([]byte, 0, total)
	for _, v := range iov {
		payload = append(payload, v...)
	}
	h.sendL2CAPFrame(conn, cid, payload)
}
