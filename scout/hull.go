package scout

import (
	"sort"

	"github.com/paulmach/orb"
)

// pointStack is the working stack for the monotone chain scan.
type pointStack struct {
	points []orb.Point
}

func newPointStack(capacity int) *pointStack {
	return &pointStack{points: make([]orb.Point, 0, capacity)}
}

func (s *pointStack) push(p orb.Point) { s.points = append(s.points, p) }

func (s *pointStack) pop() { s.points = s.points[:len(s.points)-1] }

func (s *pointStack) len() int { return len(s.points) }

// top returns the second-from-top and top points.
func (s *pointStack) top() (orb.Point, orb.Point) {
	n := len(s.points)
	return s.points[n-2], s.points[n-1]
}

// cross returns the z component of (a-o) x (b-o). Positive means o->a->b
// turns counter-clockwise.
func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// ComputeHull returns the convex hull of points in counter-clockwise order
// without a repeated closing point. Points are sorted by y, then x, and
// collinear boundary points are dropped.
//
// Fewer than three points are returned unchanged. Inputs that are all
// identical or all collinear degenerate to at most two points.
func ComputeHull(points []orb.Point) []orb.Point {
	if len(points) < 3 {
		return points
	}

	sorted := make([]orb.Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i][1] != sorted[j][1] {
			return sorted[i][1] < sorted[j][1]
		}
		return sorted[i][0] < sorted[j][0]
	})

	n := len(sorted)
	stack := newPointStack(2 * n)

	// Lower chain
	for _, p := range sorted {
		for stack.len() >= 2 {
			a, b := stack.top()
			if cross(a, b, p) > 0 {
				break
			}
			stack.pop()
		}
		stack.push(p)
	}

	// Upper chain; the guard keeps the lower chain intact
	lower := stack.len() + 1
	for i := n - 2; i >= 0; i-- {
		p := sorted[i]
		for stack.len() >= lower {
			a, b := stack.top()
			if cross(a, b, p) > 0 {
				break
			}
			stack.pop()
		}
		stack.push(p)
	}

	// Last point repeats the first
	hull := stack.points[:stack.len()-1]
	result := make([]orb.Point, len(hull))
	copy(result, hull)
	return result
}
