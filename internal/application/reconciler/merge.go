package reconciler

// Later pages override these fields; summary pages carry the authoritative totals.
var laterPageWins = map[string]bool{
	FieldTotal: true,
	FieldBase:  true,
	FieldDate:  true,
}

// MergePages folds per-page extraction results in page order.
// Scalars keep the first non-null value except total, base and date where the
// last non-null value wins. Line items are concatenated without deduplication.
func MergePages(pages []map[string]interface{}) map[string]interface{} {
	merged := map[string]interface{}{}
	var items []interface{}

	for _, page := range pages {
		for key, value := range page {
			if key == FieldItems {
				if list, ok := value.([]interface{}); ok {
					items = append(items, list...)
				}
				continue
			}
			if isNull(value) {
				continue
			}
			if _, seen := merged[key]; seen && !laterPageWins[key] {
				continue
			}
			merged[key] = value
		}
	}

	merged[FieldItems] = items
	return merged
}

func isNull(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && s == "" {
		return true
	}
	return false
}
