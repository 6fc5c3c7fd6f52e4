package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOPTRecord_MarshalExtract(t *testing.T) {
	opt := CreateOPT(4096)
	opt.DNSSECOk = true
	opt.ExtendedRCode = 0x01

	rec := opt.Marshal()
	got := ExtractOPT([]Record{rec})
	require.NotNil(t, got)
	assert.Equal(t, opt.UDPPayloadSize, got.UDPPayloadSize)
	assert.True(t, got.DNSSECOk)
	assert.Equal(t, uint8(0x01), got.ExtendedRCode)
}

func TestExtractOPT_AbsentReturnsNil(t *testing.T) {
	assert.Nil(t, ExtractOPT(nil))
	assert.Nil(t, ExtractOPT([]Record{{Type: uint16(TypeA), Data: []byte{1, 2, 3, 4}}}))
}

func TestClientMaxUDPSize_DefaultsWithoutEDNS(t *testing.T) {
	req := Packet{}
	assert.Equal(t, DefaultUDPPayloadSize, ClientMaxUDPSize(req))
}

func TestClientMaxUDPSize_UsesOPT(t *testing.T) {
	opt := CreateOPT(4096)
	req := Packet{Additionals: []Record{opt.Marshal()}}
	assert.Equal(t, 4096, ClientMaxUDPSize(req))
}

func TestIsTruncated(t *testing.T) {
	h := Header{Flags: TCFlag}
	assert.True(t, IsTruncated(h.Marshal()))
	h2 := Header{Flags: 0}
	assert.False(t, IsTruncated(h2.Marshal()))
}
