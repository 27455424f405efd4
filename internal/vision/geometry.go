package vision

import (
	"image"
	"math"
	"sort"
)

// SelectContour picks the contour to follow from the enclosed areas of all
// external contours. A lone contour is used whatever its area. Among several,
// the first one with the strictly largest area wins, and a winning area of
// zero fails the selection.
func SelectContour(areas []float64) (int, bool) {
	switch len(areas) {
	case 0:
		return -1, false
	case 1:
		return 0, true
	}

	best, bestArea := -1, 0.0
	for i, a := range areas {
		if a > bestArea {
			best, bestArea = i, a
		}
	}
	return best, best >= 0
}

// FarPoint returns the midpoint of the two topmost corners of a bounding
// primitive. Coordinates are floored like integer pixel division.
func FarPoint(corners []image.Point) image.Point {
	sorted := append([]image.Point(nil), corners...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y < sorted[j].Y })

	switch len(sorted) {
	case 0:
		return image.Point{}
	case 1:
		return sorted[0]
	}
	return image.Point{
		X: floorDiv(sorted[0].X+sorted[1].X, 2),
		Y: floorDiv(sorted[0].Y+sorted[1].Y, 2),
	}
}

// Origin is the vehicle reference point: horizontal centre of the bottom row.
func Origin(width, height int) image.Point {
	return image.Point{X: width / 2, Y: height - 1}
}

// HeadingFromPoints returns atan(dx/dy) for the vector from far to origin.
// It reports false when dy is zero and the angle is undefined.
func HeadingFromPoints(far, origin image.Point) (float64, bool) {
	dx := origin.X - far.X
	dy := origin.Y - far.Y
	if dy == 0 {
		return 0, false
	}
	return math.Atan(float64(dx) / float64(dy)), true
}

// HeadingFromCorners combines FarPoint and HeadingFromPoints for a frame of
// the given working size.
func HeadingFromCorners(corners []image.Point, width, height int) (heading float64, far image.Point, ok bool) {
	far = FarPoint(corners)
	heading, ok = HeadingFromPoints(far, Origin(width, height))
	return heading, far, ok
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
