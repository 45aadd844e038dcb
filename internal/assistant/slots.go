package assistant

import (
	"strings"
	"unicode"
)

// Slot helpers pull phrases out of an utterance by marker words. Markers
// match case-insensitively and only on word boundaries, so "to" never
// matches inside "tomorrow". Extracted text keeps the caller's casing.

// indexWord returns the byte offset of the first whole-word occurrence of
// marker in s, or -1.
func indexWord(s, marker string) int {
	if marker == "" || len(marker) > len(s) {
		return -1
	}
	for i := 0; i+len(marker) <= len(s); i++ {
		if !strings.EqualFold(s[i:i+len(marker)], marker) {
			continue
		}
		if i > 0 && isWordByte(s[i-1]) {
			continue
		}
		if end := i + len(marker); end < len(s) && isWordByte(s[end]) {
			continue
		}
		return i
	}
	return -1
}

func isWordByte(b byte) bool {
	return b < 0x80 && (unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b)) || b == '_')
}

// containsWord reports whether marker occurs in s as a whole word.
func containsWord(s, marker string) bool {
	return indexWord(s, marker) >= 0
}

// after returns the trimmed text following the first marker.
func after(s, marker string) (string, bool) {
	i := indexWord(s, marker)
	if i < 0 {
		return "", false
	}
	rest := trimSlot(s[i+len(marker):])
	return rest, rest != ""
}

// between returns the trimmed text between the first start marker and the
// first end marker that follows it.
func between(s, start, end string) (string, bool) {
	i := indexWord(s, start)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(start):]
	j := indexWord(rest, end)
	if j < 0 {
		return "", false
	}
	v := trimSlot(rest[:j])
	return v, v != ""
}

// firstWord returns the first whitespace separated word of s.
func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return trimSlot(f[0])
	}
	return ""
}

// cutWord returns s up to the first whole-word marker.
func cutWord(s, marker string) string {
	if i := indexWord(s, marker); i >= 0 {
		return trimSlot(s[:i])
	}
	return trimSlot(s)
}

func trimSlot(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '?' || r == '!' || r == '.' || r == ',' || r == '"' || r == '\''
	})
}
