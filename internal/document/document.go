// Package document defines the values that flow through ingestion:
// loaded documents, the chunks split from them, and the vector points
// produced from chunks.
package document

import "maps"

// Well-known metadata keys.
const (
	KeySource     = "source"
	KeyChunkIndex = "chunk_index"
	KeySplitter   = "splitter"
	KeyPage       = "page"
	KeyTotalPages = "total_pages"
	KeyFileName   = "file_name"
	KeyFileType   = "file_type"
	KeyTitle      = "title"
	KeyEncoding   = "encoding"
)

// Document is a unit of loaded content.
//
// Metadata always carries a "source" entry identifying the file it came
// from. A Document is not modified after a loader returns it.
type Document struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Source returns the document's source metadata, or "" when absent.
func (d Document) Source() string {
	return sourceOf(d.Metadata)
}

// Chunk is one bounded slice of a Document's text.
//
// Metadata is a shallow copy of the parent's plus chunk_index and splitter.
type Chunk struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Source returns the chunk's source metadata, or "" when absent.
func (c Chunk) Source() string {
	return sourceOf(c.Metadata)
}

// Index returns the chunk_index metadata, or -1 when absent.
func (c Chunk) Index() int {
	if v, ok := c.Metadata[KeyChunkIndex].(int); ok {
		return v
	}
	return -1
}

// NewChunk builds a chunk of parent carrying index and the splitter tag.
func NewChunk(parent Document, text string, index int, splitter string) Chunk {
	md := CopyMetadata(parent.Metadata)
	md[KeyChunkIndex] = index
	md[KeySplitter] = splitter
	return Chunk{Text: text, Metadata: md}
}

// Payload is the retrievable part of a VectorPoint.
type Payload struct {
	Text     string         `json:"text"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

// Map flattens the payload into the {text, source, metadata} shape stored
// alongside the vector.
func (p Payload) Map() map[string]any {
	return map[string]any{
		"text":     p.Text,
		"source":   p.Source,
		"metadata": CopyMetadata(p.Metadata),
	}
}

// VectorPoint is an embedding plus its payload.
type VectorPoint struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// CopyMetadata returns a shallow copy of md. A nil map yields an empty map.
func CopyMetadata(md map[string]any) map[string]any {
	out := make(map[string]any, len(md)+2)
	maps.Copy(out, md)
	return out
}

func sourceOf(md map[string]any) string {
	if s, ok := md[KeySource].(string); ok {
		return s
	}
	return ""
}
