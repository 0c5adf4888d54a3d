package collide

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gekko3d/collide/particlert/rt/stream"
)

// RunID tags one simulation run in logs and streamed frames.
type RunID struct {
	ID string
}

// Stream serves the websocket viewer endpoint at /ws.
type Stream struct {
	Hub   *stream.Hub
	Addr  string
	Every int

	server   *http.Server
	boundary float32
	sent     int
}

func (s *Stream) Release() {
	s.Hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}

// StreamModule listens on Listen and pushes every Every-th completed frame to the
// connected viewers. Listen ":0" picks a free port; Stream.Addr has the real one.
type StreamModule struct {
	Listen   string
	Every    int
	Boundary float32
}

func (mod StreamModule) Install(app *App, cmd *Commands) {
	if mod.Listen == "" {
		return
	}
	every := mod.Every
	if every <= 0 {
		every = 1
	}
	log := app.Logger()
	hub := stream.NewHub(log)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	ln, err := net.Listen("tcp", mod.Listen)
	if err != nil {
		panic("stream module: " + err.Error())
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("stream server: %v", err)
		}
	}()
	log.Infof("streaming frames on ws://%s/ws", ln.Addr())

	cmd.AddResources(&Stream{
		Hub:      hub,
		Addr:     ln.Addr().String(),
		Every:    every,
		server:   server,
		boundary: mod.Boundary,
	})
	app.UseSystem(System(streamSystem).InStage(Finale))
}

func streamSystem(s *Stream, c *Collision, run *RunID) {
	if c.Frames == 0 || c.Frames == s.sent || c.Frames%s.Every != 0 {
		return
	}
	s.sent = c.Frames
	s.Hub.Broadcast(stream.NewFrame(run.ID, c.Frames, s.boundary, c.Particles(), c.Contacts()))
}
