// Package prompt holds the model prompts shared by every LLM provider.
package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

// QueryClassification asks for a JSON routing decision.
func QueryClassification(query string) string {
	return `You route questions about lighting products to a search strategy.
Return a strict JSON object with keys:
type: one of EXACT_MATCH, ATTRIBUTE_FILTER, SEMANTIC, HYBRID
confidence: number from 0 to 1
filters: object or null, only for ATTRIBUTE_FILTER and HYBRID, with optional keys
  min_power, max_power (watts, numbers), min_lifetime_hours, max_lifetime_hours (numbers),
  color_temperature (string), application_area (string), ip_rating (string),
  certifications (array of strings)
keywords: array of up to 10 lowercase keywords

EXACT_MATCH: the question names a product id, SKU or EAN.
ATTRIBUTE_FILTER: the question only constrains numeric or categorical attributes.
SEMANTIC: the question describes a use case or quality without hard constraints.
HYBRID: the question mixes a use case with hard constraints.
No markdown, no extra keys.

Question:
` + query
}

func Answer(question string, results []domain.SearchResult) string {
	var contextBuilder strings.Builder
	for idx, res := range results {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] product=%s sku=%s source=%s\n",
			idx+1,
			res.ProductName,
			res.SKU,
			res.SourceDocument,
		))
		if attrs := formatAttributes(res.Attributes); attrs != "" {
			contextBuilder.WriteString(attrs)
			contextBuilder.WriteString("\n")
		}
		contextBuilder.WriteString(res.Text)
		contextBuilder.WriteString("\n\n")
	}

	return fmt.Sprintf(`Answer the user question only from the product data below.
Cite products by name and SKU. If the data is insufficient, say it directly.

Question:
%s

Products:
%s
`, question, contextBuilder.String())
}

// DetectAndTranslate asks for {"language","translation"} JSON.
func DetectAndTranslate(text, working string) string {
	return fmt.Sprintf(`Detect the language of the text and translate it to %s.
Keep product names, SKUs and numbers unchanged.
Return a strict JSON object with keys language (ISO 639-1 code of the original text) and translation.
No markdown, no extra keys.

Text:
%s`, working, text)
}

func Translate(text, target string) string {
	return fmt.Sprintf(`Translate the text to the language with ISO 639-1 code %q.
Keep product names, SKUs and numbers unchanged. Return only the translation.

Text:
%s`, target, text)
}

func formatAttributes(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, attrs[k]))
	}
	return strings.Join(parts, " ")
}

// ParseTranslation reads the DetectAndTranslate answer.
func ParseTranslation(raw string) (language, translation string, err error) {
	var out struct {
		Language    string `json:"language"`
		Translation string `json:"translation"`
	}
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), &out); err != nil {
		return "", "", fmt.Errorf("parse translation json: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(out.Language)), strings.TrimSpace(out.Translation), nil
}

// ExtractJSONObject trims prose around the outermost JSON object.
func ExtractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
