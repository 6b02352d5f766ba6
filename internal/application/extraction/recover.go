package extraction

import (
	"encoding/json"
	"strings"

	"github.com/facturia/invoice-pipeline/internal/domain/entity"
)

// RecoverJSON extracts the JSON object spanning from the first '{' to the last '}'
// of a model response. Prose and code fences around it are ignored.
func RecoverJSON(text string) (map[string]interface{}, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, entity.NewMalformedExtraction("no JSON object in model response", text)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return nil, entity.NewMalformedExtraction("invalid JSON: "+err.Error(), text)
	}
	if fields == nil {
		return nil, entity.NewMalformedExtraction("JSON object is null", text)
	}
	return fields, nil
}
