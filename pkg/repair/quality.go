package repair

import "strings"

const (
	minFieldLength      = 50
	placeholderMaxRatio = 0.3
	shortFieldMaxRatio  = 0.4
)

// QualityReport summarizes how much of a repaired value is real content
// versus sentinels and stub answers. It is informational only and never
// affects the outcome of ValidateAndRepair.
type QualityReport struct {
	TotalFields  int      `json:"total_fields"`
	Placeholders int      `json:"placeholders"`
	ShortFields  int      `json:"short_fields"`
	Score        float64  `json:"score"` // 0-10
	Issues       []string `json:"issues,omitempty"`
}

// InspectQuality scores a repaired value on a 0-10 scale from the fraction of
// sentinel and too-short fields. A fully sentinel value scores 0.
func InspectQuality(value map[string]string, fieldOrder []string) QualityReport {
	report := QualityReport{TotalFields: len(value), Score: 10.0}
	if len(value) == 0 {
		report.Score = 0
		return report
	}

	for _, field := range fieldOrder {
		v, ok := value[field]
		if !ok {
			continue
		}
		if isPlaceholder(v) {
			report.Placeholders++
			report.Issues = append(report.Issues, "placeholder: "+field)
		}
		if len(v) < minFieldLength {
			report.ShortFields++
			report.Issues = append(report.Issues, "short: "+field)
		}
	}

	placeholderRatio := float64(report.Placeholders) / float64(len(value))
	shortRatio := float64(report.ShortFields) / float64(len(value))

	if placeholderRatio > placeholderMaxRatio {
		report.Score -= (placeholderRatio - placeholderMaxRatio) * 20
	}
	if shortRatio > shortFieldMaxRatio {
		report.Score -= shortRatio * 15
	}
	if report.Score < 0 {
		report.Score = 0
	}

	return report
}

func isPlaceholder(v string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == Sentinel || trimmed == "N/A" || trimmed == "..."
}
