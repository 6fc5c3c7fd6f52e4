// Package wire implements DNS message encoding and decoding (RFC 1035, RFC 6891).
//
// Standards Compliance:
//
//   - RFC 1035: Domain Names - Implementation and Specification (core DNS protocol)
//   - RFC 1034: Domain Names - Concepts and Facilities (DNS concepts)
//   - RFC 3596: DNS Extensions to Support IPv6 (AAAA records)
//   - RFC 6891: Extension Mechanisms for DNS (EDNS, OPT records)
//
// Unknown record types round-trip as opaque RDATA: Record.Data holds the raw
// bytes for any type this package does not interpret, so a message can always
// be re-emitted unchanged.
package wire

import "errors"

// ErrMalformed is the sentinel wrapped by every wire-format decode failure
// (header, question, record and name decoding). ParseRequestBounded's size,
// QR, opcode and section-count rejections are plain errors that do not wrap it.
var ErrMalformed = errors.New("dns wire error")
