package filter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Fingerprint derives a deterministic content address for a filter,
// used to name cached export artifacts. Identical predicates produce
// identical fingerprints regardless of conjunct ordering.
func Fingerprint(f Filter) string {
	sum := sha256.Sum256([]byte(canonical(f)))
	return hex.EncodeToString(sum[:])
}

func canonical(f Filter) string {
	switch v := f.(type) {
	case Anything:
		return "*"
	case Property:
		return v.Path + string(v.Op) + formatValue(v.Value)
	case And:
		parts := make([]string, 0, len(v.Filters))
		for _, sub := range v.Filters {
			parts = append(parts, canonical(sub))
		}
		sort.Strings(parts)
		out := "and("
		for i, p := range parts {
			if i > 0 {
				out += ","
			}
			out += p
		}
		return out + ")"
	default:
		return fmt.Sprintf("%#v", f)
	}
}

func formatValue(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	if f, ok := toFloat(v); ok {
		return fmt.Sprintf("%g", f)
	}
	return fmt.Sprintf("%v", v)
}
