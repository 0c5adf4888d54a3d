// Package snapshot rasterises particle positions into PNG images, looking down the
// z axis of the simulation box.
package snapshot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/image/vector"

	"github.com/gekko3d/collide/particlert/rt/core"
)

var (
	Background = color.RGBA{R: 16, G: 18, B: 24, A: 255}
	Free       = color.RGBA{R: 110, G: 170, B: 255, A: 255}
	Touching   = color.RGBA{R: 255, G: 90, B: 60, A: 255}
)

// kappa places cubic control points so four segments approximate a circle.
const kappa = 0.5522847498

// Render draws every particle as a disc on a size x size image covering
// [-boundary, boundary] in x and y. Particles with a nonzero contact count use the
// Touching colour. Far particles (low z) are drawn first.
func Render(particles []core.Particle, contacts []uint32, boundary float32, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)
	if boundary <= 0 || size <= 0 {
		return img
	}

	order := make([]int, len(particles))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return particles[order[a]].Position.Z() < particles[order[b]].Position.Z()
	})

	scale := float32(size) / (2 * boundary)
	free := image.NewUniform(Free)
	touching := image.NewUniform(Touching)
	r := vector.NewRasterizer(size, size)
	for _, i := range order {
		p := particles[i]
		cx := (p.Position.X() + boundary) * scale
		cy := (boundary - p.Position.Y()) * scale
		rad := p.Radius * scale
		if rad < 0.75 {
			rad = 0.75
		}
		src := free
		if i < len(contacts) && contacts[i] > 0 {
			src = touching
		}
		r.Reset(size, size)
		disc(r, cx, cy, rad)
		r.Draw(img, img.Bounds(), src, image.Point{})
	}
	return img
}

func disc(r *vector.Rasterizer, cx, cy, rad float32) {
	k := rad * kappa
	r.MoveTo(cx+rad, cy)
	r.CubeTo(cx+rad, cy+k, cx+k, cy+rad, cx, cy+rad)
	r.CubeTo(cx-k, cy+rad, cx-rad, cy+k, cx-rad, cy)
	r.CubeTo(cx-rad, cy-k, cx-k, cy-rad, cx, cy-rad)
	r.CubeTo(cx+k, cy-rad, cx+rad, cy-k, cx+rad, cy)
	r.ClosePath()
}

func Encode(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// Writer saves a snapshot every Every frames into Dir.
type Writer struct {
	Dir      string
	Every    int
	Size     int
	Boundary float32
}

// Path returns the file a frame is written to.
func (w *Writer) Path(frame int) string {
	return filepath.Join(w.Dir, fmt.Sprintf("frame_%06d.png", frame))
}

// WriteFrame renders and saves frame if it is due. It reports whether a file was written.
func (w *Writer) WriteFrame(frame int, particles []core.Particle, contacts []uint32) (bool, error) {
	if w.Every <= 0 || frame%w.Every != 0 {
		return false, nil
	}
	size := w.Size
	if size <= 0 {
		size = 512
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return false, fmt.Errorf("snapshot: %w", err)
	}
	f, err := os.Create(w.Path(frame))
	if err != nil {
		return false, fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()

	if err := Encode(f, Render(particles, contacts, w.Boundary, size)); err != nil {
		return false, fmt.Errorf("snapshot: encode frame %d: %w", frame, err)
	}
	return true, f.Close()
}
