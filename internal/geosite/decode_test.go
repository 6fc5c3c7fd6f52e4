package geosite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// encodeDomain builds the wire bytes for one Domain message.
func encodeDomain(t *testing.T, typ PatternType, value string) []byte {
	t.Helper()
	var b []byte
	b = protowire.AppendTag(b, fieldDomainType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(typ))
	b = protowire.AppendTag(b, fieldDomainValue, protowire.BytesType)
	b = protowire.AppendString(b, value)
	return b
}

// encodeGeoSite builds the wire bytes for one GeoSite message with the
// given country code and domains.
func encodeGeoSite(t *testing.T, code string, domains [][]byte) []byte {
	t.Helper()
	var b []byte
	b = protowire.AppendTag(b, fieldCountryCode, protowire.BytesType)
	b = protowire.AppendString(b, code)
	for _, d := range domains {
		b = protowire.AppendTag(b, fieldDomain, protowire.BytesType)
		b = protowire.AppendBytes(b, d)
	}
	return b
}

// encodeGeoSiteList builds a full geosite.dat-shaped blob from GeoSite entries.
func encodeGeoSiteList(entries [][]byte) []byte {
	var b []byte
	for _, e := range entries {
		b = protowire.AppendTag(b, fieldGeoSiteList, protowire.BytesType)
		b = protowire.AppendBytes(b, e)
	}
	return b
}

func TestDecodeGeoSiteList(t *testing.T) {
	cn := encodeGeoSite(t, "CN", [][]byte{
		encodeDomain(t, RootDomain, "cn"),
		encodeDomain(t, Full, "example.org"),
	})
	google := encodeGeoSite(t, "google", [][]byte{
		encodeDomain(t, RootDomain, "google.com"),
		encodeDomain(t, Plain, "googleapis"),
	})

	blob := encodeGeoSiteList([][]byte{cn, google})

	got, err := decodeGeoSiteList(blob)
	require.NoError(t, err)

	require.Contains(t, got, "CN")
	require.Len(t, got["CN"], 2)
	assert.Equal(t, RootDomain, got["CN"][0].Type)
	assert.Equal(t, "cn", got["CN"][0].Value)

	require.Contains(t, got, "google")
	require.Len(t, got["google"], 2)
}

func TestDecodeGeoSiteList_SkipsUnknownFields(t *testing.T) {
	var entry []byte
	entry = protowire.AppendTag(entry, fieldCountryCode, protowire.BytesType)
	entry = protowire.AppendString(entry, "misc")
	// Unknown field number 99, length-delimited, should be skipped without error.
	entry = protowire.AppendTag(entry, 99, protowire.BytesType)
	entry = protowire.AppendBytes(entry, []byte("ignored"))

	blob := encodeGeoSiteList([][]byte{entry})
	got, err := decodeGeoSiteList(blob)
	require.NoError(t, err)
	assert.Contains(t, got, "misc")
}
