package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidoenr/presetdeck/internal/audio"
	"github.com/guidoenr/presetdeck/internal/playback"
)

func TestStatusReturnsSnapshot(t *testing.T) {
	s := NewServer(nil)
	s.Publish(Status{Preset: "/p/a.milk", Audio: "Audio: Dummy (running)", Playback: playback.State{Mode: "beats"}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "/p/a.milk", got.Preset)
	assert.Equal(t, "beats", got.Playback.Mode)
}

func TestDevicesListsPublished(t *testing.T) {
	s := NewServer(nil)
	s.PublishDevices([]audio.DeviceInfo{{ID: "dummy", Name: "Synthetic Signal"}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/devices", nil))

	var got []audio.DeviceInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Synthetic Signal", got[0].Name)
}

func TestCommandsAreQueued(t *testing.T) {
	s := NewServer(nil)
	h := s.Handler()

	for _, path := range []string{"/api/next", "/api/prev", "/api/toggle"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusAccepted, rec.Code, path)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/device", strings.NewReader(`{"id":"42","label":"Mic"}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	want := []Command{
		{Kind: CommandNext},
		{Kind: CommandPrev},
		{Kind: CommandToggle},
		{Kind: CommandDevice, DeviceID: "42", Label: "Mic"},
	}
	for _, w := range want {
		select {
		case got := <-s.Commands():
			assert.Equal(t, w, got)
		default:
			t.Fatalf("missing command %v", w)
		}
	}
}

func TestRejectsWrongMethodAndBody(t *testing.T) {
	s := NewServer(nil)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/next", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/device", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueueFullReturnsUnavailable(t *testing.T) {
	s := NewServer(nil)
	h := s.Handler()
	for i := 0; i < cap(s.commands); i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/next", nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/next", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebSocketBroadcastsStatus(t *testing.T) {
	s := NewServer(nil)
	s.SetInterval(10 * time.Millisecond)
	s.Publish(Status{Preset: "/p/live.milk", FPS: 59.5})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.broadcastLoop(ctx)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Status
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "/p/live.milk", got.Preset)
	assert.InDelta(t, 59.5, got.FPS, 1e-9)
}
