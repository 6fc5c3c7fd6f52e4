package listener

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routewarden/routewarden/internal/wire"
)

// echoForwarder answers every request with a NoError response mirroring
// ID and question, for listener-level tests that don't need a real
// forwarder/rule-engine/upstream stack.
type echoForwarder struct {
	fail bool
}

func (e *echoForwarder) Forward(_ context.Context, reqBytes []byte) []byte {
	if e.fail {
		return nil
	}
	req, err := wire.ParsePacket(reqBytes)
	if err != nil {
		return nil
	}
	resp := wire.Packet{
		Header:    wire.Header{ID: req.Header.ID, Flags: wire.QRFlag | wire.RAFlag, QDCount: uint16(len(req.Questions))},
		Questions: req.Questions,
	}
	b, err := resp.Marshal()
	if err != nil {
		return nil
	}
	return b
}

func sampleQuery(t *testing.T) []byte {
	t.Helper()
	req := wire.Packet{
		Header:    wire.Header{ID: 55, Flags: wire.RDFlag, QDCount: 1},
		Questions: []wire.Question{{Name: "example.com.", Type: uint16(wire.TypeA), Class: uint16(wire.ClassIN)}},
	}
	b, err := req.Marshal()
	require.NoError(t, err)
	return b
}

func TestDoH_GET_Success(t *testing.T) {
	l := NewDoHListener(nil, &echoForwarder{}, ":0")
	query := sampleQuery(t)
	encoded := base64.RawURLEncoding.EncodeToString(query)

	req := httptest.NewRequest(http.MethodGet, "/dns-query?dns="+encoded, nil)
	w := httptest.NewRecorder()
	l.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dnsMessageContentType, w.Header().Get("Content-Type"))

	resp, err := wire.ParsePacket(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint16(55), resp.Header.ID)
}

func TestDoH_GET_WrongAcceptHeaderReturns400(t *testing.T) {
	l := NewDoHListener(nil, &echoForwarder{}, ":0")
	query := sampleQuery(t)
	encoded := base64.RawURLEncoding.EncodeToString(query)

	req := httptest.NewRequest(http.MethodGet, "/dns-query?dns="+encoded, nil)
	req.Header.Set("Accept", "text/plain")
	w := httptest.NewRecorder()
	l.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDoH_GET_AcceptHeaderWithMultipleMediaRangesIsAccepted(t *testing.T) {
	l := NewDoHListener(nil, &echoForwarder{}, ":0")
	query := sampleQuery(t)
	encoded := base64.RawURLEncoding.EncodeToString(query)

	req := httptest.NewRequest(http.MethodGet, "/dns-query?dns="+encoded, nil)
	req.Header.Set("Accept", "application/dns-message, */*;q=0.1")
	w := httptest.NewRecorder()
	l.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDoH_GET_MissingDnsParamReturns400(t *testing.T) {
	l := NewDoHListener(nil, &echoForwarder{}, ":0")

	req := httptest.NewRequest(http.MethodGet, "/dns-query", nil)
	w := httptest.NewRecorder()
	l.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDoH_POST_Success(t *testing.T) {
	l := NewDoHListener(nil, &echoForwarder{}, ":0")
	query := sampleQuery(t)

	req := httptest.NewRequest(http.MethodPost, "/dns-query", bytes.NewReader(query))
	req.Header.Set("Content-Type", dnsMessageContentType)
	w := httptest.NewRecorder()
	l.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dnsMessageContentType, w.Header().Get("Content-Type"))
}

func TestDoH_POST_WrongContentTypeReturns415(t *testing.T) {
	l := NewDoHListener(nil, &echoForwarder{}, ":0")
	query := sampleQuery(t)

	req := httptest.NewRequest(http.MethodPost, "/dns-query", bytes.NewReader(query))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	l.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestDoH_POST_ForwarderFailureReturns400(t *testing.T) {
	l := NewDoHListener(nil, &echoForwarder{fail: true}, ":0")
	query := sampleQuery(t)

	req := httptest.NewRequest(http.MethodPost, "/dns-query", bytes.NewReader(query))
	req.Header.Set("Content-Type", dnsMessageContentType)
	w := httptest.NewRecorder()
	l.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
