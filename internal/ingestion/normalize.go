package ingestion

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold strips combining marks after canonical decomposition, so "é"
// becomes "e" rather than being dropped.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// asciiNormalize folds accented letters to their ASCII base and drops every
// remaining non-ASCII or control rune.
func asciiNormalize(s string) string {
	folded, _, err := transform.String(asciiFold, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r < unicode.MaxASCII && !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EmbeddingID returns the stable id of chunk index (zero-based) of file.
func EmbeddingID(fileName, fileKey string, index int) string {
	return asciiNormalize(fileName) + "#" + fileKey + "#" + strconv.Itoa(index+1)
}

// flattenMetadata converts chunk metadata into a flat string map. Strings
// pass through, other primitives use their default formatting, and nested
// maps or slices are JSON-encoded.
func flattenMetadata(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v == nil {
			continue
		}
		out[k] = stringify(v)
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// citation renders "<name>", "<name>, page <n>" and appends " (<url>)" when
// url is set.
func citation(name string, page int, url string) string {
	c := name
	if page > 0 {
		c += ", page " + strconv.Itoa(page)
	}
	if url != "" {
		c += " (" + url + ")"
	}
	return c
}

// pageOf returns the chunk's page hint, falling back to a numeric "page"
// metadata entry.
func pageOf(page int, meta map[string]any) int {
	if page > 0 {
		return page
	}
	switch v := meta["page"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
