package models

// ScoreBreakdown explains how one match was ranked. All fields except
// RetrievalRank are in [0,1] and rounded to 4 decimals.
type ScoreBreakdown struct {
	Image         float64 `json:"image"`
	Text          float64 `json:"text"`
	Category      float64 `json:"category"`
	Price         float64 `json:"price"`
	Final         float64 `json:"final"`
	Meta          float64 `json:"meta"`
	RoiConfidence float64 `json:"roi_confidence"`
	RetrievalRank int     `json:"retrieval_rank,omitempty"`
}

// MatchItem is a denormalized product snapshot chosen for an outfit,
// with provenance tags explaining why it was selected.
type MatchItem struct {
	Category       string          `json:"category"`
	ProductID      string          `json:"product_id"`
	Brand          string          `json:"brand"`
	ProductName    string          `json:"product_name"`
	Price          *int            `json:"price"`
	ProductURL     string          `json:"product_url"`
	ImageURL       string          `json:"image_url"`
	EvidenceTags   []string        `json:"evidence_tags"`
	ScoreBreakdown *ScoreBreakdown `json:"score_breakdown"`
	FailureCode    *FailureCode    `json:"failure_code"`
}

func (m *MatchItem) Clone() *MatchItem {
	c := *m
	if m.Price != nil {
		p := *m.Price
		c.Price = &p
	}
	c.EvidenceTags = append([]string(nil), m.EvidenceTags...)
	if m.ScoreBreakdown != nil {
		sb := *m.ScoreBreakdown
		c.ScoreBreakdown = &sb
	}
	if m.FailureCode != nil {
		fc := *m.FailureCode
		c.FailureCode = &fc
	}
	return &c
}

// RoiRegion records which fractional crop of the source photo produced a
// region's query vector. BBox is [x1, y1, x2, y2] with all values in [0,1].
type RoiRegion struct {
	Category   string    `json:"category"`
	BBox       []float64 `json:"bbox"`
	Confidence float64   `json:"confidence"`
}
