// Package loader reads form documents written as JSON, YAML or CUE.
// YAML and CUE documents are converted to JSON and decoded with
// schema.Decode, so every format goes through the same checks.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/dlovans/formtree/pkg/schema"
)

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// ErrUnknownFormat is returned for file extensions Load does not handle.
var ErrUnknownFormat = errors.New("unknown document format")

// FormatOf picks the format from a file name's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	}
	return "", fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}

// Load reads and decodes the document at path.
func Load(path string) (*schema.Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := LoadBytes(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// LoadBytes decodes data in the given format.
func LoadBytes(data []byte, format Format) (*schema.Document, error) {
	js, err := ToJSON(data, format)
	if err != nil {
		return nil, err
	}
	return schema.Decode(js)
}

// ToJSON converts a document to JSON without decoding it.
func ToJSON(data []byte, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return data, nil
	case FormatYAML:
		return yamlToJSON(data)
	case FormatCUE:
		return cueToJSON(data)
	}
	return nil, fmt.Errorf("%q: %w", format, ErrUnknownFormat)
}

// yamlToJSON decodes the first YAML document. Only the first is used.
func yamlToJSON(data []byte) ([]byte, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("yaml: empty document")
		}
		return nil, fmt.Errorf("yaml: %w", err)
	}
	out, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return out, nil
}

// normalizeYAML converts map[any]any, which yaml produces for non-string
// keys, into JSON-compatible map[string]any recursively.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = normalizeYAML(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[fmt.Sprint(k)] = normalizeYAML(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = normalizeYAML(vv)
		}
		return out
	}
	return v
}

func cueToJSON(data []byte) ([]byte, error) {
	ctx := cuecontext.New()
	val := ctx.CompileBytes(data)
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("cue: %w", err)
	}
	if err := val.Validate(); err != nil {
		return nil, fmt.Errorf("cue: %w", err)
	}
	out, err := val.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("cue: %w", err)
	}
	return out, nil
}
