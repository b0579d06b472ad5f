package capture

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// SuspiciousParam is a captured request parameter that looks like SQL injection.
type SuspiciousParam struct {
	Source      string `json:"source"`
	Param       string `json:"param"`
	Fingerprint string `json:"fingerprint"`
}

// FlagSuspiciousParams checks every string value in params with libinjection.
// Non-string values are skipped; string slices are checked element by element.
// Results are sorted by parameter name.
func FlagSuspiciousParams(source string, params map[string]any) []SuspiciousParam {
	var flagged []SuspiciousParam
	for name, value := range params {
		for _, s := range stringValues(value) {
			if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
				flagged = append(flagged, SuspiciousParam{
					Source:      source,
					Param:       name,
					Fingerprint: string(fingerprint),
				})
				break
			}
		}
	}
	sort.Slice(flagged, func(i, j int) bool { return flagged[i].Param < flagged[j].Param })
	return flagged
}

func stringValues(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
