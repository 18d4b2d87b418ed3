package humanize

import (
	"math"
	"math/rand/v2"
	"time"
)

type Point struct {
	X, Y float64
}

const (
	minSteps = 30
	maxSteps = 70
)

// easeInOut maps linear progress to a slow-fast-slow curve.
func easeInOut(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

func bezier(p0, p1, p2, p3 Point, t float64) Point {
	u := 1 - t
	a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

// Path samples a cubic Bézier curve from start to end with two randomly
// perturbed control points. Intermediate points carry 1-2 px of jitter; the
// last point is exactly end.
func Path(rng *rand.Rand, start, end Point) []Point {
	dx, dy := end.X-start.X, end.Y-start.Y
	spread := math.Max(40, math.Hypot(dx, dy)*0.35)

	c1 := Point{
		X: start.X + dx*0.25 + (rng.Float64()*2-1)*spread,
		Y: start.Y + dy*0.25 + (rng.Float64()*2-1)*spread,
	}
	c2 := Point{
		X: start.X + dx*0.75 + (rng.Float64()*2-1)*spread,
		Y: start.Y + dy*0.75 + (rng.Float64()*2-1)*spread,
	}

	steps := minSteps + rng.IntN(maxSteps-minSteps+1)
	points := make([]Point, 0, steps)
	for i := 1; i <= steps; i++ {
		if i == steps {
			points = append(points, end)
			break
		}
		p := bezier(start, c1, c2, end, easeInOut(float64(i)/float64(steps)))
		p.X += jitter(rng)
		p.Y += jitter(rng)
		points = append(points, p)
	}
	return points
}

// jitter returns a signed offset with magnitude in [1, 2].
func jitter(rng *rand.Rand) float64 {
	j := 1 + rng.Float64()
	if rng.IntN(2) == 0 {
		return -j
	}
	return j
}

// stepDelay is the pause after step i of n: short mid-path, longer at both ends.
func stepDelay(rng *rand.Rand, i, n int) time.Duration {
	progress := float64(i) / float64(n)
	edge := math.Abs(2*progress - 1)
	ms := 3 + 12*edge*edge + rng.Float64()*3
	return time.Duration(ms * float64(time.Millisecond))
}

// KeystrokeDelay samples the pause after one typed character: most keys come
// quickly, about one in five after a hesitation.
func KeystrokeDelay(rng *rand.Rand) time.Duration {
	if rng.Float64() < 0.2 {
		return time.Duration(300+rng.IntN(501)) * time.Millisecond
	}
	return time.Duration(30+rng.IntN(151)) * time.Millisecond
}
