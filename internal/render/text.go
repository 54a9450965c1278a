package render

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// CountWords counts whitespace separated words in HTML after stripping tags.
func CountWords(html string) int {
	if html == "" {
		return 0
	}
	return len(strings.Fields(tagPattern.ReplaceAllString(html, " ")))
}

// EstimatePages approximates the printed page count at 300 words per page.
func EstimatePages(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + wordsPerPage - 1) / wordsPerPage
}

// FileName builds "<title>_v<n>_<YYYY-MM-DD>.pdf" for a version, or
// "preview_<title>_<unix-ms>.pdf" for a preview.
func FileName(req Request) string {
	title := sanitizeFilename(req.Title)
	if req.Preview {
		return fmt.Sprintf("preview_%s_%d.pdf", title, req.Date.UnixMilli())
	}
	return fmt.Sprintf("%s_v%d_%s.pdf", title, req.Version, req.Date.UTC().Format(time.DateOnly))
}

// sanitizeFilename creates a safe filename from a title
func sanitizeFilename(title string) string {
	var result strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result.WriteRune(r)
		default:
			result.WriteByte('_')
		}
	}

	out := result.String()
	if len(out) > 80 {
		out = out[:80]
	}
	if strings.Trim(out, "_") == "" {
		return "document"
	}
	return out
}

// percentEncodeForDataURL encodes a string for use in a data URL.
// Spaces become %20, not +.
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b >= 'a' && b <= 'z',
			b >= 'A' && b <= 'Z',
			b >= '0' && b <= '9',
			b == '-', b == '_', b == '.', b == '~':
			result.WriteByte(b)
		default:
			fmt.Fprintf(&result, "%%%02X", b)
		}
	}
	return result.String()
}
