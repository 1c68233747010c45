package gemini

// PaperSummary is the normalized shape we want from the model. Produced once
// per document and consumed exactly once by the Notion writer.
type PaperSummary struct {
	DocumentID  string `json:"-"`
	Title       string `json:"title"`
	Authors     string `json:"authors"`
	Journal     string `json:"journal"`
	Year        int    `json:"year"`
	Background  string `json:"background"`
	Methods     string `json:"methods"`
	Results     string `json:"results"`
	Discussion  string `json:"discussion"`
	Limitations string `json:"limitations"`
	Conclusions string `json:"conclusions"`
	Strengths   string `json:"strengths"`
}

// BuildSummaryJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We include it in the prompt as a structured output constraint
// and also use it locally to validate the response. Unknown extra fields are
// tolerated; a missing required field is a content error.
func BuildSummaryJSONSchema() map[string]any {
	textProp := map[string]any{"type": "string"}
	props := map[string]any{
		"title":       map[string]any{"type": "string", "minLength": 1},
		"authors":     textProp,
		"journal":     textProp,
		"year":        map[string]any{"type": "integer", "minimum": 0},
		"background":  textProp,
		"methods":     textProp,
		"results":     textProp,
		"discussion":  textProp,
		"limitations": textProp,
		"conclusions": textProp,
		"strengths":   textProp,
	}
	required := []string{
		"title", "authors", "journal", "year",
		"background", "methods", "results", "discussion",
		"limitations", "conclusions", "strengths",
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": true,
		"properties":           props,
		"required":             required,
	}
}
