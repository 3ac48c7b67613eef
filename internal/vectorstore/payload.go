package vectorstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/docingest/internal/document"
)

// pointNamespace derives stable UUIDs for point IDs that are not UUIDs.
var pointNamespace = uuid.MustParse("6f1d0c52-5a8e-4c36-9a43-0d1c9b7b2e11")

// pointUUID returns id when it is a UUID, otherwise a name-based UUID of id.
func pointUUID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// payloadMap renders a point payload with every value converted to a type the
// stores accept: strings, integers, floats, bools, nested maps and lists.
func payloadMap(p document.Payload) map[string]any {
	md := make(map[string]any, len(p.Metadata))
	for k, v := range p.Metadata {
		md[k] = normalizeValue(v)
	}
	return map[string]any{
		PayloadText:     p.Text,
		PayloadSource:   p.Source,
		PayloadMetadata: md,
	}
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string, int, int32, int64, uint, uint32, uint64, float32, float64:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return val.String()
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalizeValue(e)
		}
		return out
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// flattenMetadata renders a payload as the string map chromem stores. Chunk
// metadata keys sit next to source; text is kept as the document content.
func flattenMetadata(p document.Payload) map[string]string {
	out := make(map[string]string, len(p.Metadata)+1)
	for k, v := range p.Metadata {
		out[k] = stringValue(normalizeValue(v))
	}
	out[PayloadSource] = p.Source
	return out
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
