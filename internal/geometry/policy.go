package geometry

import "fmt"

// OverlapPolicy bestimmt, welche Annotationen einer Personenregion zugeordnet werden
type OverlapPolicy string

const (
	// OverlapTouch übernimmt jede Box, die die Region berührt oder schneidet
	OverlapTouch OverlapPolicy = "touch"
	// OverlapCentroid übernimmt Boxen, deren Mittelpunkt in der Region liegt
	OverlapCentroid OverlapPolicy = "centroid"
	// OverlapContained übernimmt nur vollständig enthaltene Boxen
	OverlapContained OverlapPolicy = "contained"
)

// ParseOverlapPolicy wandelt einen Konfigurationswert in eine Policy um.
// Ein leerer Wert ergibt OverlapTouch.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch OverlapPolicy(s) {
	case "", OverlapTouch:
		return OverlapTouch, nil
	case OverlapCentroid:
		return OverlapCentroid, nil
	case OverlapContained:
		return OverlapContained, nil
	}
	return "", fmt.Errorf("unknown overlap policy %q", s)
}

// Admits prüft, ob die Box gemäß Policy zur Region gehört
func (p OverlapPolicy) Admits(b, region Box) bool {
	switch p {
	case OverlapCentroid:
		return CentroidIn(b, region)
	case OverlapContained:
		return ContainedBy(b, region)
	default:
		return IntersectsOrContainedBy(b, region)
	}
}
