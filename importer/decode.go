package importer

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/poiesic/reposit/core"
	"gopkg.in/yaml.v3"
)

// Format is a document encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "yaml"
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Decode reads every document in r. JSON is decoded with the YAML
// decoder, which accepts it as flow-style YAML.
func Decode(r io.Reader, format Format) ([]core.Record, error) {
	dec := yaml.NewDecoder(r)
	var records []core.Record
	for n := 0; ; n++ {
		var doc any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s document %d: %w", format, n, err)
		}
		recs, err := documentRecords(doc)
		if err != nil {
			return nil, fmt.Errorf("%s document %d: %w", format, n, err)
		}
		records = append(records, recs...)
	}
	return records, nil
}

func documentRecords(doc any) ([]core.Record, error) {
	switch d := doc.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []core.Record{toRecord(d)}, nil
	case []any:
		out := make([]core.Record, 0, len(d))
		for i, item := range d {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: item %d is %T, not a mapping", ErrInvalidDocument, i, item)
			}
			out = append(out, toRecord(m))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T is not a mapping or a sequence of mappings", ErrInvalidDocument, doc)
}

// toRecord converts nested mappings to records and normalizes scalars.
func toRecord(m map[string]any) core.Record {
	return core.Normalize(m).(core.Record)
}
