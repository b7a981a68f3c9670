package scene

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/image/vector"

	"github.com/danmuck/surfacectl/internal/surface"
)

// Palette maps style tokens to fill colours.
type Palette map[surface.StyleToken]color.NRGBA

func DefaultPalette() Palette {
	return Palette{
		surface.StyleCeiling: {R: 0xd0, G: 0x20, B: 0x20, A: 0x60},
		surface.StyleFloor:   {R: 0xe8, G: 0xd0, B: 0x20, A: 0xc0},
		surface.StyleTable:   {R: 0x20, G: 0x50, B: 0xd0, A: 0xd0},
		surface.StyleWall:    {R: 0x20, G: 0xa0, B: 0x40, A: 0xd0},
		surface.StyleDefault: {R: 0x80, G: 0x80, B: 0x80, A: 0xc0},
	}
}

// Color falls back to the default style for unknown tokens.
func (p Palette) Color(token surface.StyleToken) color.NRGBA {
	if c, ok := p[token]; ok {
		return c
	}
	return p[surface.StyleDefault]
}

// RenderOptions configures the top-down snapshot.
type RenderOptions struct {
	// Size is the square image edge in pixels.
	Size int
	// Scale is pixels per meter; the world origin sits at the image centre.
	Scale      float32
	Background color.NRGBA
	Palette    Palette
}

func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Size:       512,
		Scale:      48,
		Background: color.NRGBA{R: 0x10, G: 0x10, B: 0x14, A: 0xff},
		Palette:    DefaultPalette(),
	}
}

// Render draws representations looking down the world Y axis, lowest surfaces
// first. Vertical surfaces project to slivers.
func Render(reps []surface.Representation, opts RenderOptions) *image.RGBA {
	def := DefaultRenderOptions()
	if opts.Size <= 0 {
		opts.Size = def.Size
	}
	if opts.Scale <= 0 {
		opts.Scale = def.Scale
	}
	if opts.Palette == nil {
		opts.Palette = def.Palette
	}

	dst := image.NewRGBA(image.Rect(0, 0, opts.Size, opts.Size))
	fill(dst, opts.Background)

	ordered := make([]surface.Representation, len(reps))
	copy(ordered, reps)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Pose.Position().Y < ordered[j].Pose.Position().Y
	})

	half := float32(opts.Size) / 2
	z := vector.NewRasterizer(opts.Size, opts.Size)
	for i := range ordered {
		rep := &ordered[i]
		world := rep.WorldVertices()
		idx := rep.Mesh.Indices
		if len(idx) < 3 {
			continue
		}
		z.Reset(opts.Size, opts.Size)
		for t := 0; t+2 < len(idx); t += 3 {
			a, b, c := world[idx[t]], world[idx[t+1]], world[idx[t+2]]
			z.MoveTo(half+a.X*opts.Scale, half+a.Z*opts.Scale)
			z.LineTo(half+b.X*opts.Scale, half+b.Z*opts.Scale)
			z.LineTo(half+c.X*opts.Scale, half+c.Z*opts.Scale)
			z.ClosePath()
		}
		z.Draw(dst, dst.Bounds(), image.NewUniform(opts.Palette.Color(rep.Style)), image.Point{})
	}
	return dst
}

// WritePNG writes img to path through a temp file and rename.
func WritePNG(path string, img image.Image) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("scene: create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.png")
	if err != nil {
		return fmt.Errorf("scene: create snapshot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("scene: encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("scene: close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("scene: publish snapshot: %w", err)
	}
	return nil
}

func fill(dst *image.RGBA, c color.NRGBA) {
	r, g, b, a := c.RGBA()
	px := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
	for y := dst.Rect.Min.Y; y < dst.Rect.Max.Y; y++ {
		for x := dst.Rect.Min.X; x < dst.Rect.Max.X; x++ {
			dst.SetRGBA(x, y, px)
		}
	}
}
