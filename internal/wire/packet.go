package wire

// Packet is a fully decoded DNS message (RFC 1035 Section 4): a header and
// four ordered record sections.
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// Marshal serializes the packet to wire format without name compression; the
// forwarder round-trips answers by copying RDATA verbatim, so recompression
// is never required on the hot path.
func (p Packet) Marshal() ([]byte, error) {
	h := Header{
		ID:      p.Header.ID,
		Flags:   p.Header.Flags,
		QDCount: uint16(len(p.Questions)),
		ANCount: uint16(len(p.Answers)),
		NSCount: uint16(len(p.Authorities)),
		ARCount: uint16(len(p.Additionals)),
	}

	estimatedSize := HeaderSize + len(p.Questions)*50 + (len(p.Answers)+len(p.Authorities)+len(p.Additionals))*100
	out := make([]byte, 0, estimatedSize)
	out = append(out, h.Marshal()...)
	for _, q := range p.Questions {
		qb, err := q.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, qb...)
	}
	for _, rr := range p.Answers {
		b, err := rr.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	for _, rr := range p.Authorities {
		b, err := rr.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	for _, rr := range p.Additionals {
		b, err := rr.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// ParsePacket decodes a complete DNS message. Decoding is non-destructive:
// record types this package does not interpret keep their raw RDATA bytes
// (see Record/ParseRecord), so the forwarder can always re-emit them intact.
func ParsePacket(msg []byte) (Packet, error) {
	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return Packet{}, err
	}

	p := Packet{Header: h}

	limitCount := func(count uint16, limit int) int {
		if int(count) > limit {
			return limit
		}
		return int(count)
	}

	p.Questions = make([]Question, 0, limitCount(h.QDCount, MaxQuestions))
	for i := uint16(0); i < h.QDCount; i++ {
		q, err := ParseQuestion(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Questions = append(p.Questions, q)
	}
	p.Answers, err = parseRecords(msg, &off, h.ANCount)
	if err != nil {
		return Packet{}, err
	}
	p.Authorities, err = parseRecords(msg, &off, h.NSCount)
	if err != nil {
		return Packet{}, err
	}
	p.Additionals, err = parseRecords(msg, &off, h.ARCount)
	if err != nil {
		return Packet{}, err
	}
	return p, nil
}

func parseRecords(msg []byte, off *int, count uint16) ([]Record, error) {
	limit := MaxRRPerSection
	if int(count) > limit {
		count = uint16(limit)
	}
	out := make([]Record, 0, count)
	for i := uint16(0); i < count; i++ {
		rr, err := ParseRecord(msg, off)
		if err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, nil
}

// TruncateForUDP enforces the "fits in one UDP datagram" rule from the wire
// codec's encode contract: if the full, correctly-encoded message exceeds
// maxSize, the question section is kept, every record section is dropped,
// and the TC flag is set. The caller is responsible for delivering the
// untruncated message whole over TCP/TLS/HTTPS instead.
func TruncateForUDP(full []byte, questionOnly []byte, maxSize int) []byte {
	if len(full) <= maxSize {
		return full
	}
	if len(questionOnly) < 4 {
		return full
	}
	out := make([]byte, len(questionOnly))
	copy(out, questionOnly)
	flags := uint16(out[2])<<8 | uint16(out[3])
	flags |= TCFlag
	out[2] = byte(flags >> 8)
	out[3] = byte(flags)
	return out
}
