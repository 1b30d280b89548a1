package display

import (
	"image"
	"strings"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Pose is the animation phase of one frame.
type Pose struct {
	// Blink closes both eyes.
	Blink bool
	// Alt selects the alternate drawing of animated expressions: the
	// squashed eye while speaking, the side glance while thinking.
	Alt bool
}

// Frame is one rendered face.
type Frame struct {
	Seq   uint64
	Scene Scene
	Pose  Pose
	Left  image.Image
	Right image.Image
}

// Renderer draws eyes onto monochrome panels of a fixed size.
type Renderer struct {
	w, h int
}

// NewRenderer returns a Renderer for w×h panels.
func NewRenderer(w, h int) *Renderer {
	return &Renderer{w: w, h: h}
}

// Size returns the panel dimensions.
func (r *Renderer) Size() (w, h int) { return r.w, r.h }

// Render draws the left and right eye for s in pose p.
func (r *Renderer) Render(s Scene, p Pose) (left, right image.Image) {
	return r.eye(s, p, false), r.eye(s, p, true)
}

func (r *Renderer) eye(s Scene, p Pose, right bool) image.Image {
	dc := gg.NewContext(r.w, r.h)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetRGB(1, 1, 1)
	dc.SetFontFace(basicfont.Face7x13)

	w, h := float64(r.w), float64(r.h)
	if s.Caption != "" {
		h -= 14
	}
	cx, cy := w/2, h/2
	ew, eh := w*0.5, h*0.6

	switch {
	case s.Expression == Sleeping:
		dc.SetLineWidth(3)
		dc.DrawLine(cx-ew/2, cy, cx+ew/2, cy)
		dc.Stroke()
		if right {
			dc.DrawString("z", cx+ew/2, cy-eh/3)
		}
	case p.Blink:
		dc.SetLineWidth(3)
		dc.DrawLine(cx-ew/2, cy, cx+ew/2, cy)
		dc.Stroke()
	case s.Expression == Listening:
		dc.DrawCircle(cx, cy, eh/2)
		dc.Fill()
	case s.Expression == Thinking:
		dc.DrawRoundedRectangle(cx-ew/2, cy-eh/2, ew, eh/2, 6)
		dc.Fill()
		dx := ew / 5
		if p.Alt {
			dx = -dx
		}
		dc.SetRGB(0, 0, 0)
		dc.DrawCircle(cx+dx, cy-eh/4, eh/8)
		dc.Fill()
	case s.Expression == Speaking && p.Alt:
		dc.DrawRoundedRectangle(cx-ew/2, cy-eh/3, ew, eh*2/3, 8)
		dc.Fill()
	default:
		dc.DrawRoundedRectangle(cx-ew/2, cy-eh/2, ew, eh, 8)
		dc.Fill()
	}

	if s.Caption != "" {
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored(captionHalf(s.Caption, right), w/2, float64(r.h)-7, 0.5, 0.35)
	}
	return dc.Image()
}

// captionHalf splits caption across the two panels at a word boundary near
// the middle so that it reads left to right over both eyes.
func captionHalf(caption string, right bool) string {
	runes := []rune(caption)
	cut := len(runes)
	for i := len(runes) / 2; i < len(runes); i++ {
		if runes[i] == ' ' {
			cut = i
			break
		}
	}
	if right {
		if cut >= len(runes) {
			return ""
		}
		return strings.TrimSpace(string(runes[cut:]))
	}
	return string(runes[:cut])
}
