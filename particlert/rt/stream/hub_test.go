package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/collide/particlert/rt/core"
)

type quiet struct{}

func (quiet) Infof(string, ...any) {}
func (quiet) Warnf(string, ...any) {}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(quiet{})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	particles := []core.Particle{
		{ID: 1, Position: mgl32.Vec3{1, 2, 3}, Radius: 0.5},
		{ID: 2, Position: mgl32.Vec3{-1, 0, 0}, Radius: 0.25},
	}
	hub.Broadcast(NewFrame("run-1", 7, 10, particles, []uint32{1, 0}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var got Frame
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "frame", got.Type)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 7, got.Frame)
	assert.Equal(t, [][3]float32{{1, 2, 3}, {-1, 0, 0}}, got.Positions)
	assert.Equal(t, []float32{0.5, 0.25}, got.Radii)
	assert.Equal(t, []uint32{1, 0}, got.Contacts)
}

func TestHubSendsLatestFrameOnConnect(t *testing.T) {
	hub := NewHub(quiet{})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	hub.Broadcast(NewFrame("run-2", 3, 10, []core.Particle{{ID: 1}}, nil))

	conn := dial(t, srv)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var got Frame
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 3, got.Frame)
	assert.Equal(t, []uint32{0}, got.Contacts)
}

func TestHubForgetsClosedViewers(t *testing.T) {
	hub := NewHub(quiet{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
