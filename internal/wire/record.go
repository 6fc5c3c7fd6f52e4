package wire

import (
	"encoding/binary"
	"fmt"
)

// Record is a resource record from the answer, authority, or additional
// section (RFC 1035 Section 4.1.3). Data holds a type-specific decoded value
// for the types this package interprets (MX as MXData; CNAME, NS and PTR as
// a name string); every other type, including A, AAAA, TXT, SOA and OPT, is
// kept as opaque []byte RDATA so the forwarder can re-emit it unchanged.
type Record struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  any
}

// MXData is the decoded RDATA of an MX record.
type MXData struct {
	Preference uint16
	Exchange   string
}

// ParseRecord parses one resource record at *off, advancing it past the
// record (name, fixed fields, and RDATA).
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return Record{}, err
	}
	if *off+10 > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF reading record", ErrMalformed)
	}
	rrType := binary.BigEndian.Uint16(msg[*off : *off+2])
	rrClass := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := binary.BigEndian.Uint16(msg[*off+8 : *off+10])
	*off += 10
	start := *off
	if start+int(rdlen) > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF reading rdata", ErrMalformed)
	}

	var data any
	switch RecordType(rrType) {
	case TypeCNAME, TypeNS, TypePTR:
		n, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off-start != int(rdlen) {
			return Record{}, fmt.Errorf("%w: invalid rdata length for name-based type", ErrMalformed)
		}
		data = n
	case TypeMX:
		if *off+2 > len(msg) {
			return Record{}, fmt.Errorf("%w: unexpected EOF reading MX preference", ErrMalformed)
		}
		pref := binary.BigEndian.Uint16(msg[*off : *off+2])
		*off += 2
		ex, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off-start != int(rdlen) {
			return Record{}, fmt.Errorf("%w: invalid rdata length for MX", ErrMalformed)
		}
		data = MXData{Preference: pref, Exchange: ex}
	default:
		// Opaque RDATA: preserves unknown/unsupported types byte-for-byte,
		// including OPT, A, AAAA, TXT, SOA (needed by wire.ExtractOPT et al.).
		b := make([]byte, rdlen)
		copy(b, msg[*off:*off+int(rdlen)])
		*off += int(rdlen)
		data = b
	}

	return Record{Name: name, Type: rrType, Class: rrClass, TTL: ttl, Data: data}, nil
}

// Marshal serializes the record to wire format.
func (rr Record) Marshal() ([]byte, error) {
	nameWire := []byte{0}
	if rr.Type != uint16(TypeOPT) {
		b, err := EncodeName(rr.Name)
		if err != nil {
			return nil, err
		}
		nameWire = b
	}

	rdata, err := rr.marshalRData()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nameWire)+10+len(rdata))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], rr.Type)
	binary.BigEndian.PutUint16(fixed[2:4], rr.Class)
	binary.BigEndian.PutUint32(fixed[4:8], rr.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	return append(out, rdata...), nil
}

func (rr Record) marshalRData() ([]byte, error) {
	switch RecordType(rr.Type) {
	case TypeMX:
		mx, ok := rr.Data.(MXData)
		if !ok {
			return nil, fmt.Errorf("%w: MX data must be MXData", ErrMalformed)
		}
		ex, err := EncodeName(mx.Exchange)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 2+len(ex))
		binary.BigEndian.PutUint16(out[0:2], mx.Preference)
		copy(out[2:], ex)
		return out, nil
	case TypeCNAME, TypeNS, TypePTR:
		s, ok := rr.Data.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%w: name-based record data must be a non-empty string", ErrMalformed)
		}
		return EncodeName(s)
	default:
		if b, ok := rr.Data.([]byte); ok {
			return b, nil
		}
		if rr.Data == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: unsupported record type for serialization: %d", ErrMalformed, rr.Type)
	}
}

// Bytes returns rr.Data as opaque RDATA bytes, false if Data isn't []byte.
func (rr Record) Bytes() ([]byte, bool) {
	b, ok := rr.Data.([]byte)
	return b, ok
}
