package judge

import "sort"

// QualityTags derives labels from a score: one band per rubric dimension and
// one overall band.
func QualityTags(s Score) []string {
	tags := []string{
		"tool_relevance:" + band(s.ToolRelevance, MaxToolRelevance),
		"argument_quality:" + band(s.ArgumentQuality, MaxArgumentQuality),
		"clarity:" + band(s.Clarity, MaxClarity),
		"quality:" + overall(s.Score),
	}
	sort.Strings(tags)
	return tags
}

func band(v, max float64) string {
	r := v / max
	switch {
	case r >= 0.875:
		return "high"
	case r >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

func overall(score float64) string {
	switch {
	case score >= 0.9:
		return "excellent"
	case score >= 0.8:
		return "good"
	case score >= 0.7:
		return "acceptable"
	default:
		return "poor"
	}
}
