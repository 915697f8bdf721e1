package opencv

import (
	"image"
	"sort"

	"ppe-cascade/internal/detection"

	"gocv.io/x/gocv"
)

// allClasses wählt pro Anker die Klasse mit der höchsten Konfidenz
const allClasses = -1

// decodeOutput liest eine YOLOv8-Ausgabe im Layout [4+nc][anchors]
// (cx, cy, w, h, Klassenwerte). Die Koordinaten beziehen sich auf das
// quadratische Netzbild und werden mit scale in Bildpixel umgerechnet.
// Ist only >= 0, zählt nur dieser Klassenkanal.
func decodeOutput(data []float32, channels, anchors int, scale, threshold float64, only int) []detection.Raw {
	if channels <= 4 || anchors <= 0 || len(data) < channels*anchors {
		return nil
	}
	at := func(k, i int) float64 { return float64(data[k*anchors+i]) }

	var raws []detection.Raw
	for i := 0; i < anchors; i++ {
		classID, score := -1, 0.0
		if only >= 0 {
			if 4+only >= channels {
				return nil
			}
			classID, score = only, at(4+only, i)
		} else {
			for c := 0; c < channels-4; c++ {
				if s := at(4+c, i); classID < 0 || s > score {
					classID, score = c, s
				}
			}
		}
		if score < threshold {
			continue
		}

		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		raws = append(raws, detection.Raw{
			X1:      (cx - w/2) * scale,
			Y1:      (cy - h/2) * scale,
			X2:      (cx + w/2) * scale,
			Y2:      (cy + h/2) * scale,
			ClassID: classID,
			Score:   score,
		})
	}
	return raws
}

// clipRaw begrenzt Rohboxen auf das Bild
func clipRaw(raws []detection.Raw, width, height int) {
	w, h := float64(width), float64(height)
	for i := range raws {
		raws[i].X1 = min(max(raws[i].X1, 0), w)
		raws[i].Y1 = min(max(raws[i].Y1, 0), h)
		raws[i].X2 = min(max(raws[i].X2, 0), w)
		raws[i].Y2 = min(max(raws[i].Y2, 0), h)
	}
}

// suppress führt die Non-Maximum-Suppression getrennt pro Klasse aus.
// Das Ergebnis ist nach Konfidenz absteigend sortiert.
func suppress(raws []detection.Raw, scoreThreshold, nmsThreshold float64) []detection.Raw {
	byClass := map[int][]detection.Raw{}
	for _, r := range raws {
		byClass[r.ClassID] = append(byClass[r.ClassID], r)
	}

	var kept []detection.Raw
	for _, group := range byClass {
		rects := make([]image.Rectangle, len(group))
		scores := make([]float32, len(group))
		for i, r := range group {
			rects[i] = image.Rect(int(r.X1), int(r.Y1), int(r.X2), int(r.Y2))
			scores[i] = float32(r.Score)
		}
		for _, idx := range gocv.NMSBoxes(rects, scores, float32(scoreThreshold), float32(nmsThreshold)) {
			kept = append(kept, group[idx])
		}
	}

	// Map-Reihenfolge ist zufällig, daher vollständige Ordnung
	sort.Slice(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ClassID != b.ClassID {
			return a.ClassID < b.ClassID
		}
		if a.X1 != b.X1 {
			return a.X1 < b.X1
		}
		return a.Y1 < b.Y1
	})
	return kept
}
