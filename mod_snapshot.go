package collide

import (
	"github.com/gekko3d/collide/particlert/rt/snapshot"
)

// SnapshotModule writes a PNG of the particle cloud every Every completed frames.
type SnapshotModule struct {
	Dir      string
	Every    int
	Size     int
	Boundary float32
}

func (mod SnapshotModule) Install(app *App, cmd *Commands) {
	if mod.Dir == "" || mod.Every <= 0 {
		return
	}
	cmd.AddResources(&snapshot.Writer{
		Dir:      mod.Dir,
		Every:    mod.Every,
		Size:     mod.Size,
		Boundary: mod.Boundary,
	})
	app.UseSystem(System(snapshotSystem).InStage(PostUpdate))
}

func snapshotSystem(w *snapshot.Writer, c *Collision, p *Profiler, log Logger) error {
	// frame 0 would be the seeded state before any update
	if c.Frames == 0 {
		return nil
	}
	p.BeginScope("snapshot")
	written, err := w.WriteFrame(c.Frames, c.Particles(), c.Contacts())
	p.EndScope("snapshot")
	if err != nil {
		return err
	}
	if written {
		log.Debugf("snapshot %s", w.Path(c.Frames))
	}
	return nil
}
