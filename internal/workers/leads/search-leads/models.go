// internal/workers/leads/search-leads/models.go
package searchleads

import "leadgen-workers/internal/common/webhook"

type Input struct {
	Parameters webhook.StructuredParameters `json:"parameters"`
	Size       int                          `json:"size,omitempty"`
}

type Lead struct {
	ID     string                 `json:"id"`
	Score  float64                `json:"score"`
	Source map[string]interface{} `json:"source"`
}

type Output struct {
	Leads      []Lead `json:"leads"`
	TotalHits  int64  `json:"totalHits"`
	Took       int    `json:"took"`
	SearchLink string `json:"searchLink"`
}

type searchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string                 `json:"_id"`
			Score  float64                `json:"_score"`
			Source map[string]interface{} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}
