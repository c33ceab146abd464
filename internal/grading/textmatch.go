package grading

import "strings"

// textEqual compares two short answers after trimming surrounding whitespace.
func textEqual(got, want string, caseSensitive bool) bool {
	got = strings.TrimSpace(got)
	want = strings.TrimSpace(want)
	if caseSensitive {
		return got == want
	}
	return strings.EqualFold(got, want)
}

// OptionLabel renders option i as "A. text", "B. text", ...
func OptionLabel(options []string, i int) (string, bool) {
	if i < 0 || i >= len(options) {
		return "", false
	}
	return string(rune('A'+i)) + ". " + options[i], true
}
