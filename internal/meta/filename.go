package meta

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// StemOf returns the file name without directory or extension.
func StemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LeadingNumber parses the digits at the start of s ("01 - Title" -> 1).
// It returns 0 when s does not start with a digit.
func LeadingNumber(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// DiscNumber extracts a disc number from a directory name by concatenating
// all of its digits: "CD1" -> 1, "Disc 2" -> 2, "2" -> 2. ok is false when
// the name has no digits.
func DiscNumber(dir string) (n int, ok bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, dir)
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Codec is the lowercased extension without its dot.
func Codec(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

var discDirPattern = regexp.MustCompile(`(?i)^(cd|dis[ck])?[\s_.-]*\d+$`)

// IsDiscDir reports whether a directory name looks like a disc folder of a
// multi-disc album ("CD1", "Disc 2", "2").
func IsDiscDir(name string) bool {
	return discDirPattern.MatchString(strings.TrimSpace(name))
}
