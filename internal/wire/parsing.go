package wire

import (
	"errors"
	"fmt"

	"github.com/routewarden/routewarden/internal/helpers"
)

// Bounds on incoming messages, to prevent resource-exhaustion attacks from
// malformed or adversarial input.
const (
	MaxIncomingDNSMessageSize = 4096
	MaxQuestions              = 4
	MaxRRPerSection           = 100
	MaxTotalRR                = 200
)

// ParseRequestBounded parses a request with bounds checking: rejects
// oversized messages, responses masquerading as queries, non-standard
// opcodes, and section counts outside the limits above.
func ParseRequestBounded(msg []byte) (Packet, error) {
	if len(msg) > MaxIncomingDNSMessageSize {
		return Packet{}, errors.New("dns message too large")
	}
	p, err := ParsePacket(msg)
	if err != nil {
		return Packet{}, err
	}

	if IsResponse(p.Header.Flags) {
		return Packet{}, errors.New("invalid packet: QR flag set (response, not query)")
	}
	if opcode := Opcode(p.Header.Flags); opcode != 0 {
		return Packet{}, fmt.Errorf("unsupported opcode: %d", opcode)
	}
	if err := validateSectionCounts(p.Header); err != nil {
		return Packet{}, err
	}
	return p, nil
}

func validateSectionCounts(h Header) error {
	qd, an, ns, ar := int(h.QDCount), int(h.ANCount), int(h.NSCount), int(h.ARCount)
	if qd > MaxQuestions {
		return errors.New("too many questions")
	}
	if qd != 1 {
		return errors.New("unsupported question count")
	}
	if an > MaxRRPerSection || ns > MaxRRPerSection || ar > MaxRRPerSection {
		return errors.New("too many resource records")
	}
	if an+ns+ar > MaxTotalRR {
		return errors.New("too many total resource records")
	}
	return nil
}

// BuildErrorResponse constructs a synthetic response carrying the given
// RCODE: it mirrors the request's ID, opcode, and question section, and
// sets the response invariants from spec §4.5 (RD/CD mirrored, RA set, AA
// cleared — callers that need AA set because an upstream asserted it should
// set p.Header.Flags accordingly after calling this).
func BuildErrorResponse(req Packet, rcode RCode) Packet {
	h := Header{
		ID:      req.Header.ID,
		Flags:   buildResponseFlags(req.Header.Flags, rcode),
		QDCount: helpers.ClampIntToUint16(len(req.Questions)),
	}
	return Packet{Header: h, Questions: req.Questions}
}

func buildResponseFlags(reqFlags uint16, rcode RCode) uint16 {
	flags := QRFlag
	flags |= reqFlags & OpcodeMask
	flags |= reqFlags & RDFlag
	flags |= reqFlags & CDFlag
	flags |= RAFlag
	flags = (flags &^ RCodeMask) | (uint16(rcode) & RCodeMask)
	return flags
}
