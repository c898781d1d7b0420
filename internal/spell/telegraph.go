package spell

import (
	"math"

	"github.com/l1jgo/spellengine/internal/data"
)

// Telegraph is a shape frozen at the pose it was built from. Moving the
// anchor afterwards does not move the telegraph.
type Telegraph struct {
	Info   *data.TelegraphInfo
	Origin Position
	Yaw    float64
}

func newTelegraph(info *data.TelegraphInfo, anchor Position, yaw float64) *Telegraph {
	fx, fy := math.Cos(yaw), math.Sin(yaw)
	rx, ry := fy, -fx
	return &Telegraph{
		Info: info,
		Origin: Position{
			X: anchor.X + fx*info.OffsetFwd + rx*info.OffsetRight,
			Y: anchor.Y + fy*info.OffsetFwd + ry*info.OffsetRight,
			Z: anchor.Z,
		},
		Yaw: yaw + info.Rotation*math.Pi/180,
	}
}

// Contains reports whether a body of radius hit at p overlaps the shape.
func (t *Telegraph) Contains(p Position, hit float64) bool {
	dx, dy := p.X-t.Origin.X, p.Y-t.Origin.Y
	dist := math.Hypot(dx, dy)
	info := t.Info
	switch info.Shape {
	case data.ShapeCircle:
		return dist <= info.Radius+hit
	case data.ShapeRing:
		return dist <= info.Radius+hit && dist >= info.InnerRadius-hit
	case data.ShapeCone:
		if dist > info.Radius+hit {
			return false
		}
		if dist <= hit {
			return true
		}
		half := info.Angle * math.Pi / 360
		// widen the arc by the angle the hit radius subtends at this range
		slack := math.Asin(math.Min(1, hit/dist))
		return math.Abs(angleDiff(math.Atan2(dy, dx), t.Yaw)) <= half+slack
	case data.ShapeRectangle:
		cos, sin := math.Cos(t.Yaw), math.Sin(t.Yaw)
		fwd := dx*cos + dy*sin
		side := -dx*sin + dy*cos
		return fwd >= -hit && fwd <= info.Length+hit && math.Abs(side) <= info.Width/2+hit
	}
	return false
}

// Accepts applies the Self/Other filter and the containment test.
func (t *Telegraph) Accepts(caster Unit, u Unit) bool {
	flags := t.Info.TargetFlags
	if flags&data.TelegraphSelf != 0 && u.ID() != caster.ID() {
		return false
	}
	if flags&data.TelegraphOther != 0 && u.ID() == caster.ID() {
		return false
	}
	return t.Contains(u.Position(), u.HitRadius())
}

// angleDiff returns a-b normalised to (-π, π].
func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b, 2*math.Pi)
	switch {
	case d > math.Pi:
		d -= 2 * math.Pi
	case d <= -math.Pi:
		d += 2 * math.Pi
	}
	return d
}

func (c *Instance) initTelegraphs() {
	c.telegraphs = c.telegraphs[:0]
	anchor, yaw := c.origin()
	for i := range c.info.Telegraphs {
		c.telegraphs = append(c.telegraphs, newTelegraph(&c.info.Telegraphs[i], anchor, yaw))
	}
}
