package assemble

import (
	"math"
	"strconv"

	"github.com/xaimorph/morphd/internal/gradcam"
	"github.com/xaimorph/morphd/internal/session"
)

// Timeline pairs each frame's blend position with the classifier's verdict
// for that frame. Annotations and alphas are index-aligned with the frame
// sequence.
func Timeline(alphas []float64, anns []gradcam.Annotation) []session.TimelineEntry {
	entries := make([]session.TimelineEntry, 0, len(alphas))
	for i, a := range alphas {
		label := gradcam.UnknownLabel
		conf := 0.0
		if i < len(anns) {
			label = anns[i].Label
			conf = anns[i].Confidence
		}
		entries = append(entries, session.TimelineEntry{
			FrameIndex: i,
			Alpha:      a,
			Position:   positionLabel(a),
			Label:      label,
			Confidence: conf,
		})
	}
	return entries
}

// positionLabel renders α as the position shown to the user. The endpoints
// and exact midpoint get named labels, everything else the rounded blend
// percentage.
func positionLabel(alpha float64) string {
	switch alpha {
	case 0:
		return "Start (100% Source)"
	case 0.5:
		return "Middle (50/50)"
	case 1:
		return "End (100% Target)"
	}
	return strconv.Itoa(int(math.Round(alpha*100))) + "%"
}

// Summarize aggregates the timeline: the distinct classes seen in frame
// order, the number of times the prediction flips between consecutive
// frames, and the class predicted most often.
func Summarize(entries []session.TimelineEntry) session.Summary {
	var s session.Summary
	if len(entries) == 0 {
		return s
	}

	counts := make(map[string]int)
	for i, e := range entries {
		if counts[e.Label] == 0 {
			s.UniqueClasses = append(s.UniqueClasses, e.Label)
		}
		counts[e.Label]++
		if i > 0 && e.Label != entries[i-1].Label {
			s.ClassChanges++
		}
	}

	best := -1
	for _, c := range s.UniqueClasses {
		if counts[c] > best {
			best = counts[c]
			s.DominantClass = c
		}
	}
	return s
}
