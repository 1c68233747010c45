package notion

import (
	"time"

	"github.com/m-okabe/papersync/internal/gemini"
)

// Notion caps a rich_text content element at 2000 characters.
const maxRichTextLen = 2000

// driveIDProperty is the correlation key: the Drive file id stored on every
// page so an upsert can detect an existing record even if the local ledger
// lost its mark.
const driveIDProperty = "Drive File ID"

// requiredProperties maps each database property the writer populates to the
// Notion property type it must have. A property missing from the target
// database is a configuration error.
var requiredProperties = map[string]string{
	"Title":        "title",
	"Authors":      "rich_text",
	"Journal":      "rich_text",
	"Year":         "number",
	"Added Date":   "date",
	driveIDProperty: "rich_text",
	"Background":   "rich_text",
	"Methods":      "rich_text",
	"Results":      "rich_text",
	"Discussion":   "rich_text",
	"Limitations":  "rich_text",
	"Conclusions":  "rich_text",
	"Strengths":    "rich_text",
}

func richText(content string) map[string]any {
	if len(content) > maxRichTextLen {
		content = content[:maxRichTextLen]
	}
	return map[string]any{
		"rich_text": []map[string]any{
			{"text": map[string]any{"content": content}},
		},
	}
}

// buildProperties maps a summary onto the database schema.
func buildProperties(s gemini.PaperSummary, now time.Time) map[string]any {
	title := s.Title
	if len(title) > maxRichTextLen {
		title = title[:maxRichTextLen]
	}
	return map[string]any{
		"Title": map[string]any{
			"title": []map[string]any{
				{"text": map[string]any{"content": title}},
			},
		},
		"Authors":       richText(s.Authors),
		"Journal":       richText(s.Journal),
		"Year":          map[string]any{"number": s.Year},
		"Added Date":    map[string]any{"date": map[string]any{"start": now.Format(time.RFC3339)}},
		driveIDProperty: richText(s.DocumentID),
		"Background":    richText(s.Background),
		"Methods":       richText(s.Methods),
		"Results":       richText(s.Results),
		"Discussion":    richText(s.Discussion),
		"Limitations":   richText(s.Limitations),
		"Conclusions":   richText(s.Conclusions),
		"Strengths":     richText(s.Strengths),
	}
}

func headingBlock(text string) map[string]any {
	return map[string]any{
		"object": "block",
		"type":   "heading_2",
		"heading_2": map[string]any{
			"rich_text": []map[string]any{
				{"type": "text", "text": map[string]any{"content": text}},
			},
		},
	}
}

func paragraphBlock(text string) map[string]any {
	if len(text) > maxRichTextLen {
		text = text[:maxRichTextLen]
	}
	return map[string]any{
		"object": "block",
		"type":   "paragraph",
		"paragraph": map[string]any{
			"rich_text": []map[string]any{
				{"type": "text", "text": map[string]any{"content": text}},
			},
		},
	}
}

// buildChildren renders the summary sections as page content, one heading and
// paragraph per non-empty section, plus a link back to the Drive file.
func buildChildren(s gemini.PaperSummary) []map[string]any {
	sections := []struct {
		heading string
		body    string
	}{
		{"Background", s.Background},
		{"Methods", s.Methods},
		{"Results", s.Results},
		{"Discussion", s.Discussion},
		{"Limitations", s.Limitations},
		{"Conclusions", s.Conclusions},
		{"Strengths", s.Strengths},
	}

	var blocks []map[string]any
	for _, sec := range sections {
		if sec.body == "" || sec.body == "Not found" {
			continue
		}
		blocks = append(blocks, headingBlock(sec.heading), paragraphBlock(sec.body))
	}

	if s.DocumentID != "" {
		blocks = append(blocks, headingBlock("Links"), map[string]any{
			"object": "block",
			"type":   "paragraph",
			"paragraph": map[string]any{
				"rich_text": []map[string]any{
					{
						"type": "text",
						"text": map[string]any{
							"content": "View in Google Drive",
							"link": map[string]any{
								"url": "https://drive.google.com/file/d/" + s.DocumentID + "/view",
							},
						},
					},
				},
			},
		})
	}
	return blocks
}
