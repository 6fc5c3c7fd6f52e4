package geosite

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from the v2ray geosite.dat wire format (spec.md §6).
const (
	fieldGeoSiteList  protowire.Number = 1 // outer: repeated GeoSite
	fieldCountryCode  protowire.Number = 1 // GeoSite.country_code (string)
	fieldDomain       protowire.Number = 2 // GeoSite.domain (repeated Domain)
	fieldDomainType   protowire.Number = 1 // Domain.type (varint)
	fieldDomainValue  protowire.Number = 2 // Domain.value (string)
	fieldDomainAttr   protowire.Number = 3 // Domain.attribute (repeated Attribute), unused here
)

// decodeGeoSiteList parses the top-level repeated GeoSite message list from a
// raw geosite.dat blob, returning a category code -> patterns map. Codes are
// kept exactly as written in the blob; Load lowercases them.
func decodeGeoSiteList(data []byte) (map[string][]Pattern, error) {
	out := make(map[string][]Pattern)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("geosite: invalid tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		if num != fieldGeoSiteList || typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, fmt.Errorf("geosite: invalid field: %w", protowire.ParseError(m))
			}
			data = data[m:]
			continue
		}

		entry, m := protowire.ConsumeBytes(data)
		if m < 0 {
			return nil, fmt.Errorf("geosite: truncated GeoSite entry: %w", protowire.ParseError(m))
		}
		data = data[m:]

		code, patterns, err := decodeGeoSite(entry)
		if err != nil {
			return nil, err
		}
		out[code] = append(out[code], patterns...)
	}
	return out, nil
}

func decodeGeoSite(data []byte) (string, []Pattern, error) {
	var code string
	var patterns []Pattern

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", nil, fmt.Errorf("geosite: invalid GeoSite tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldCountryCode && typ == protowire.BytesType:
			b, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return "", nil, fmt.Errorf("geosite: truncated country_code: %w", protowire.ParseError(m))
			}
			data = data[m:]
			code = string(b)
		case num == fieldDomain && typ == protowire.BytesType:
			b, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return "", nil, fmt.Errorf("geosite: truncated Domain: %w", protowire.ParseError(m))
			}
			data = data[m:]
			p, err := decodeDomain(b)
			if err != nil {
				return "", nil, err
			}
			patterns = append(patterns, p)
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return "", nil, fmt.Errorf("geosite: invalid GeoSite field: %w", protowire.ParseError(m))
			}
			data = data[m:]
		}
	}
	return code, patterns, nil
}

func decodeDomain(data []byte) (Pattern, error) {
	var p Pattern

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Pattern{}, fmt.Errorf("geosite: invalid Domain tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldDomainType && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return Pattern{}, fmt.Errorf("geosite: truncated Domain.type: %w", protowire.ParseError(m))
			}
			data = data[m:]
			p.Type = PatternType(v)
		case num == fieldDomainValue && typ == protowire.BytesType:
			b, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return Pattern{}, fmt.Errorf("geosite: truncated Domain.value: %w", protowire.ParseError(m))
			}
			data = data[m:]
			p.Value = string(b)
		case num == fieldDomainAttr:
			// Attributes are not needed by rule evaluation; skip by wire type.
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return Pattern{}, fmt.Errorf("geosite: invalid Domain.attribute: %w", protowire.ParseError(m))
			}
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return Pattern{}, fmt.Errorf("geosite: invalid Domain field: %w", protowire.ParseError(m))
			}
			data = data[m:]
		}
	}
	return p, nil
}
