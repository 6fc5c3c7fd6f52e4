package upstream

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrapSocks5UDP_IPv4(t *testing.T) {
	dst := &net.UDPAddr{IP: net.ParseIP("93.184.216.34"), Port: 53}
	payload := []byte("hello-dns-payload")

	wrapped := wrapSocks5UDP(dst, payload)
	got, err := unwrapSocks5UDP(wrapped)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWrapUnwrapSocks5UDP_IPv6(t *testing.T) {
	dst := &net.UDPAddr{IP: net.ParseIP("2001:4860:4860::8888"), Port: 853}
	payload := []byte("abc")

	wrapped := wrapSocks5UDP(dst, payload)
	got, err := unwrapSocks5UDP(wrapped)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestUnwrapSocks5UDP_Truncated(t *testing.T) {
	_, err := unwrapSocks5UDP([]byte{0, 0, 0})
	assert.Error(t, err)
}
