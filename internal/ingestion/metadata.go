package ingestion

import (
	"net/url"
	"path"
	"strings"

	"github.com/54b3r/ragpipe-go/internal/rag"
)

// MetaSourceHost is the payload key holding the host of the document URL.
const MetaSourceHost = "sourceHost"

// InferredMetadata holds the source attributes inferred from a file's name
// and URL. Metadata supplied with the chunk always wins; this is the
// best-effort fallback when the parser did not provide them.
type InferredMetadata struct {
	// Filetype is the normalised extension ("pdf", "docx", "md", ...).
	Filetype string
	// SourceHost is the lowercase host of the document URL, if any.
	SourceHost string
}

// filetypeAliases folds equivalent extensions onto one label.
var filetypeAliases = map[string]string{
	"markdown": "md",
	"htm":      "html",
	"jpeg":     "jpg",
	"yml":      "yaml",
	"text":     "txt",
}

// InferMetadata inspects the file name, then the URL path, for an extension,
// and records the URL host.
func InferMetadata(f rag.File) InferredMetadata {
	var m InferredMetadata

	m.Filetype = extOf(f.Name)

	if f.URL != "" {
		if parsed, err := url.Parse(f.URL); err == nil {
			m.SourceHost = strings.ToLower(parsed.Hostname())
			if m.Filetype == "" {
				m.Filetype = extOf(parsed.Path)
			}
		}
	}
	return m
}

// apply fills missing keys of meta from the inferred values.
func (m InferredMetadata) apply(meta map[string]string) {
	if _, ok := meta[rag.MetaFiletype]; !ok && m.Filetype != "" {
		meta[rag.MetaFiletype] = m.Filetype
	}
	if _, ok := meta[MetaSourceHost]; !ok && m.SourceHost != "" {
		meta[MetaSourceHost] = m.SourceHost
	}
}

func extOf(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return ""
	}
	if alias, ok := filetypeAliases[ext]; ok {
		return alias
	}
	return ext
}
