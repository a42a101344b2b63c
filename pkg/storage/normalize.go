package storage

import "strings"

// NormalizeTitle trims surrounding whitespace from a scraped title. Inner
// spacing is part of the key, so snapshots written by earlier versions keep
// matching.
func NormalizeTitle(s string) string {
	return strings.TrimSpace(s)
}
