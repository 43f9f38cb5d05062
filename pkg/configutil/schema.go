package configutil

import (
	"errors"
	"sort"
	"strings"
)

// Schema lists the keys a settings map may carry. Key comparison uses the
// same normalization as DecodeSettings.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// ValidateSettings checks a settings map against a schema and reports every
// missing required key and every unknown key in one error.
func ValidateSettings(input map[string]any, schema Schema) error {
	required := make(map[string]string, len(schema.Required))
	for _, k := range schema.Required {
		required[normalizeKey(k)] = k
	}
	allowed := make(map[string]struct{}, len(schema.Required)+len(schema.Optional))
	for k := range required {
		allowed[k] = struct{}{}
	}
	for _, k := range schema.Optional {
		allowed[normalizeKey(k)] = struct{}{}
	}

	var missing, unknown []string
	present := make(map[string]bool, len(input))
	for key, value := range input {
		nk := normalizeKey(key)
		present[nk] = true
		if _, ok := allowed[nk]; !ok && !schema.AllowUnknown {
			unknown = append(unknown, key)
		}
		if orig, ok := required[nk]; ok && isEmptyValue(value) {
			missing = append(missing, orig)
		}
	}
	for nk, orig := range required {
		if !present[nk] {
			missing = append(missing, orig)
		}
	}

	return settingsError(missing, unknown)
}

// settingsError reports every problem at once so a bad config is fixed in
// one pass, not one key per restart.
func settingsError(missing, unknown []string) error {
	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	var parts []string
	for label, keys := range map[string][]string{"missing": missing, "unknown": unknown} {
		if len(keys) == 0 {
			continue
		}
		sort.Strings(keys)
		parts = append(parts, label+": "+strings.Join(keys, ", "))
	}
	sort.Strings(parts)
	return errors.New(strings.Join(parts, "; "))
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
