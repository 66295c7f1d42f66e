package models

// DocumentRef identifies one harvested unit of literature: a paper, a trial
// registration, or a locally extracted document.
type DocumentRef struct {
	ID     string         `json:"id"`
	Title  string         `json:"title,omitempty"`
	Source string         `json:"source,omitempty"` // e.g. "pubmed", "trials", "local"
	URL    string         `json:"url,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Finding is a single risk signal reported by a document analyzer.
type Finding struct {
	RiskType  string `json:"risk_type"`
	RiskLevel string `json:"risk_level"` // LOW, MEDIUM, HIGH
	Quote     string `json:"quote,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// EvidenceItem is one analyzed document together with its findings.
type EvidenceItem struct {
	Unit         string    `json:"unit"` // DocumentRef.ID
	Summary      string    `json:"summary"`
	Findings     []Finding `json:"findings,omitempty"`
	ContentChars int       `json:"content_chars"`
}

// ImageFinding is the audited verdict for one figure extracted from a document.
type ImageFinding struct {
	Unit      string  `json:"unit"`
	ImageID   string  `json:"image_id"`
	Status    string  `json:"status"` // clean, suspicious, inconclusive
	RiskScore float64 `json:"risk_score"`
	Detail    string  `json:"detail,omitempty"`
}
