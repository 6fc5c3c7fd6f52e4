package upstream

import (
	"strings"

	"github.com/routewarden/routewarden/internal/wire"
)

// surfaceableRCodes are the RCODEs the forwarder is willing to pass through
// to the client unchanged; anything else (notably FormErr) is remapped to
// ServFail by the caller.
var surfaceableRCodes = map[wire.RCode]bool{
	wire.RCodeNoError:  true,
	wire.RCodeNXDomain: true,
	wire.RCodeServFail: true,
	wire.RCodeRefused:  true,
}

// validateResponse checks that resp is a legitimate answer to req: matching
// transaction ID, a byte-equal (case-insensitive on names) question section,
// and a surfaceable RCODE. A response failing this check is discarded and
// the caller retries, per the upstream response-validation contract.
func validateResponse(req, resp wire.Packet) error {
	if resp.Header.ID != req.Header.ID {
		return ErrResponseInvalid
	}
	if len(resp.Questions) != len(req.Questions) {
		return ErrResponseInvalid
	}
	for i := range req.Questions {
		rq, sq := req.Questions[i], resp.Questions[i]
		if rq.Type != sq.Type || rq.Class != sq.Class {
			return ErrResponseInvalid
		}
		if !strings.EqualFold(wire.NormalizeName(rq.Name), wire.NormalizeName(sq.Name)) {
			return ErrResponseInvalid
		}
	}
	if !surfaceableRCodes[wire.RCodeFromFlags(resp.Header.Flags)] {
		return ErrResponseInvalid
	}
	return nil
}
