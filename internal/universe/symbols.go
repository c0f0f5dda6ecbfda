// Package universe resolves ticker universes from group files or a bulk
// membership file, and canonicalizes vendor symbols.
package universe

import "strings"

// NormalizeSymbol canonicalizes a raw vendor symbol into the tradable-symbol
// convention used across all persisted tables:
//
//   - leading/trailing whitespace is stripped
//   - symbols containing '/' are excluded (preferred shares, depositary
//     shares — not tradable under the primary symbol)
//   - '.' becomes '-' (class shares, BRK.A -> BRK-A)
//
// ok=false means the caller must drop the row. The transform is idempotent,
// so it is safe to apply at every ingestion point.
func NormalizeSymbol(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if strings.Contains(s, "/") {
		return "", false
	}
	return strings.ReplaceAll(s, ".", "-"), true
}
