package wire

import (
	"encoding/binary"

	"github.com/routewarden/routewarden/internal/helpers"
)

// EDNS (RFC 6891) UDP payload size constants.
const (
	DefaultUDPPayloadSize     = 512  // traditional DNS UDP limit (RFC 1035)
	EDNSDefaultUDPPayloadSize = 1232 // safe EDNS size avoiding fragmentation
	EDNSMaxUDPPayloadSize     = 4096 // maximum practical EDNS UDP size
	EDNSMinUDPPayloadSize     = 512  // minimum EDNS UDP payload size
)

// OPTRecord is the decoded form of an EDNS OPT pseudo-record (RFC 6891).
//
// The OPT record repurposes the ordinary RR fixed fields: CLASS carries the
// sender's UDP payload size, and TTL packs the extended RCODE, version, and
// flags (including DO):
//
//	+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+
//	|         EXTENDED-RCODE        |            VERSION            |
//	+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+
//	| DO|                    Z (reserved)                           |
//	+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+
type OPTRecord struct {
	UDPPayloadSize uint16
	ExtendedRCode  uint8
	Version        uint8
	DNSSECOk       bool
	Options        []EDNSOption
}

// EDNSOption is one option in the OPT record's RDATA.
type EDNSOption struct {
	Code uint16
	Data []byte
}

const ednsOptionHeaderLen = 4

func isAllowedEDNSOption(code uint16) bool {
	switch code {
	case 10, 12: // COOKIE, PADDING
		return true
	default:
		return false
	}
}

// Marshal serializes an EDNS option to wire format.
func (o EDNSOption) Marshal() []byte {
	b := make([]byte, 4+len(o.Data))
	binary.BigEndian.PutUint16(b[0:2], o.Code)
	binary.BigEndian.PutUint16(b[2:4], helpers.ClampIntToUint16(len(o.Data)))
	copy(b[4:], o.Data)
	return b
}

// ParseEDNSOptions extracts allowed EDNS options from raw RDATA, skipping
// unknown or oversized options. A truncated option ends parsing early.
func ParseEDNSOptions(rdata []byte) []EDNSOption {
	opts := make([]EDNSOption, 0, 2)
	for i := 0; i < len(rdata); {
		if len(rdata)-i < ednsOptionHeaderLen {
			break
		}
		code := binary.BigEndian.Uint16(rdata[i : i+2])
		ln := int(binary.BigEndian.Uint16(rdata[i+2 : i+4]))
		i += ednsOptionHeaderLen

		if ln > EDNSMaxUDPPayloadSize {
			i += ln
			if i > len(rdata) {
				break
			}
			continue
		}
		if i+ln > len(rdata) {
			break
		}
		if !isAllowedEDNSOption(code) {
			i += ln
			continue
		}
		data := make([]byte, ln)
		copy(data, rdata[i:i+ln])
		opts = append(opts, EDNSOption{Code: code, Data: data})
		i += ln
	}
	return opts
}

// MarshalEDNSOptions serializes EDNS options to RDATA, skipping oversized ones.
func MarshalEDNSOptions(opts []EDNSOption) []byte {
	if len(opts) == 0 {
		return nil
	}
	size := 0
	for _, o := range opts {
		if len(o.Data) > EDNSMaxUDPPayloadSize {
			continue
		}
		size += ednsOptionHeaderLen + len(o.Data)
	}
	if size == 0 {
		return nil
	}
	out := make([]byte, 0, size)
	for _, o := range opts {
		if len(o.Data) > EDNSMaxUDPPayloadSize {
			continue
		}
		out = append(out, o.Marshal()...)
	}
	return out
}

// CreateOPT creates an OPT record advertising the given UDP payload size.
func CreateOPT(udpPayloadSize int) OPTRecord {
	sz := helpers.ClampInt(udpPayloadSize, EDNSMinUDPPayloadSize, 65535)
	return OPTRecord{UDPPayloadSize: helpers.ClampIntToUint16(sz)}
}

// Marshal serializes the OPT record as an additional-section Record.
func (o OPTRecord) Marshal() Record {
	ttl := packOPTTTL(o.ExtendedRCode, o.Version, o.DNSSECOk)
	rdata := MarshalEDNSOptions(o.Options)
	return Record{
		Name:  "",
		Type:  uint16(TypeOPT),
		Class: o.UDPPayloadSize,
		TTL:   ttl,
		Data:  rdata,
	}
}

func packOPTTTL(extRCode, version uint8, dnssecOk bool) uint32 {
	ttl := uint32(extRCode)<<24 | uint32(version)<<16
	if dnssecOk {
		ttl |= 1 << 15
	}
	return ttl
}

// ExtractOPT finds and decodes the OPT pseudo-record from the additional
// section, returning nil if absent. Every Record is opaque-RDATA by
// construction for type OPT (see ParseRecord's default case), so this reads
// straight from the struct fields rather than through any record interface.
func ExtractOPT(additionals []Record) *OPTRecord {
	for _, r := range additionals {
		if RecordType(r.Type) != TypeOPT {
			continue
		}
		raw, ok := r.Bytes()
		if !ok {
			continue
		}
		o := OPTRecord{
			UDPPayloadSize: r.Class,
			ExtendedRCode:  helpers.ClampUint32ToUint8((r.TTL >> 24) & 0xFF),
			Version:        helpers.ClampUint32ToUint8((r.TTL >> 16) & 0xFF),
			DNSSECOk:       (r.TTL>>15)&0x1 == 1,
			Options:        ParseEDNSOptions(raw),
		}
		return &o
	}
	return nil
}

// ClientMaxUDPSize returns the advertised EDNS UDP payload size for a
// request, or DefaultUDPPayloadSize if no OPT record is present.
func ClientMaxUDPSize(req Packet) int {
	opt := ExtractOPT(req.Additionals)
	if opt == nil {
		return DefaultUDPPayloadSize
	}
	if opt.UDPPayloadSize < DefaultUDPPayloadSize {
		return DefaultUDPPayloadSize
	}
	return int(opt.UDPPayloadSize)
}

// IsTruncated reports whether a wire-format message has the TC flag set.
func IsTruncated(msg []byte) bool {
	if len(msg) < 4 {
		return false
	}
	flags := binary.BigEndian.Uint16(msg[2:4])
	return flags&TCFlag != 0
}
