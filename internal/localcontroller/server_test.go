package localcontroller

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_MissingChargePointIDReturnsBadRequest(t *testing.T) {
	logger := zerolog.Nop()
	cs := newFakeCentralSystem(t, logger)
	defer cs.Close()

	lc := NewServer(DefaultServerConfig(wsURL(cs.URL)), logger)
	lcHTTP := httptest.NewServer(http.HandlerFunc(lc.handleUpgrade))
	defer lcHTTP.Close()

	resp, err := http.Get(lcHTTP.URL + "/ocpp/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_UnreachableUpstreamClosesCPLegWithoutRegisteringPair(t *testing.T) {
	logger := zerolog.Nop()
	cfg := DefaultServerConfig("ws://127.0.0.1:1/unreachable")
	cfg.PairConfig.CSDialTimeout = 200 * time.Millisecond
	lc := NewServer(cfg, logger)
	lcHTTP := httptest.NewServer(http.HandlerFunc(lc.handleUpgrade))
	defer lcHTTP.Close()

	dialer := &websocket.Dialer{Subprotocols: []string{"ocpp1.6"}}
	cpWS, _, err := dialer.Dial(wsURL(lcHTTP.URL)+"/ocpp/CPX", nil)
	require.NoError(t, err)
	defer cpWS.Close()

	assert.Equal(t, 0, lc.ConnectionCount())
	_, ok := lc.Pair("CPX")
	assert.False(t, ok)
}

func TestServer_ReconnectSupersedesPreviousPair(t *testing.T) {
	logger := zerolog.Nop()
	cs := newFakeCentralSystem(t, logger)
	defer cs.Close()

	lc := NewServer(DefaultServerConfig(wsURL(cs.URL)), logger)
	lcHTTP := httptest.NewServer(http.HandlerFunc(lc.handleUpgrade))
	defer lcHTTP.Close()

	dialer := &websocket.Dialer{Subprotocols: []string{"ocpp1.6"}}

	firstWS, _, err := dialer.Dial(wsURL(lcHTTP.URL)+"/ocpp/CP9", nil)
	require.NoError(t, err)
	defer firstWS.Close()

	require.Eventually(t, func() bool { return lc.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
	firstPair, ok := lc.Pair("CP9")
	require.True(t, ok)

	secondWS, _, err := dialer.Dial(wsURL(lcHTTP.URL)+"/ocpp/CP9", nil)
	require.NoError(t, err)
	defer secondWS.Close()

	require.Eventually(t, func() bool {
		pair, ok := lc.Pair("CP9")
		return ok && pair != firstPair
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, lc.ConnectionCount())
}
