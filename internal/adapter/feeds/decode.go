package feeds

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/couchcryptid/road-event-etl/internal/domain"
)

// recordArrayKeys are the wrapper keys vendor JSON feeds put their record
// arrays under, checked in order when no records_path is configured.
var recordArrayKeys = []string{"features", "events", "data", "items", "results", "records", "incidents", "workzones"}

// Decode parses a feed body of the given format into raw records. WZDx and
// plain JSON share a decoder.
func Decode(r io.Reader, format, recordsPath string) ([]domain.RawRecord, error) {
	switch format {
	case FormatXML:
		return decodeXML(r, recordsPath)
	case FormatWZDx, FormatJSON, "":
		return decodeJSON(r, recordsPath)
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// decodeJSON parses a feed body into raw records.
func decodeJSON(r io.Reader, recordsPath string) ([]domain.RawRecord, error) {
	var root any
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return extractRecords(root, recordsPath)
}

// decodeXML parses a feed body into nested maps and extracts raw records.
func decodeXML(r io.Reader, recordsPath string) ([]domain.RawRecord, error) {
	root, err := xmlToMap(r)
	if err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}
	recs, err := extractRecords(root, recordsPath)
	if err != nil && recordsPath == "" {
		// <events><event>...</event></events> with a single child has no array.
		if rec, ok := singleRecord(root); ok {
			return []domain.RawRecord{rec}, nil
		}
	}
	return recs, err
}

// singleRecord descends through single-key wrapper elements to the first
// element with several children.
func singleRecord(m map[string]any) (domain.RawRecord, bool) {
	for depth := 0; ; depth++ {
		if len(m) != 1 {
			return m, depth >= 2
		}
		var next map[string]any
		for _, v := range m {
			next, _ = v.(map[string]any)
		}
		if next == nil {
			return nil, false
		}
		m = next
	}
}

func extractRecords(root any, recordsPath string) ([]domain.RawRecord, error) {
	if recordsPath != "" {
		m, ok := root.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("records_path %q: document root is not an object", recordsPath)
		}
		v, ok := domain.Path(recordsPath).Get(m)
		if !ok {
			return nil, fmt.Errorf("records_path %q: not found", recordsPath)
		}
		return toRecords(v), nil
	}

	switch t := root.(type) {
	case []any:
		return toRecords(t), nil
	case map[string]any:
		if arr, ok := findRecordArray(t); ok {
			return toRecords(arr), nil
		}
		return nil, errors.New("no record array found")
	}
	return nil, fmt.Errorf("unexpected document root %T", root)
}

// findRecordArray looks for the record array under well-known wrapper keys,
// then under any key holding an array of objects, descending one object
// level at a time.
func findRecordArray(m map[string]any) ([]any, bool) {
	for _, k := range recordArrayKeys {
		if arr, ok := m[k].([]any); ok {
			return arr, true
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if arr, ok := m[k].([]any); ok && len(arr) > 0 {
			if _, isObj := arr[0].(map[string]any); isObj {
				return arr, true
			}
		}
	}
	for _, k := range keys {
		if nested, ok := m[k].(map[string]any); ok {
			if arr, ok := findRecordArray(nested); ok {
				return arr, true
			}
		}
	}
	return nil, false
}

// toRecords keeps the object elements of v. A single object is one record.
func toRecords(v any) []domain.RawRecord {
	switch t := v.(type) {
	case map[string]any:
		return []domain.RawRecord{t}
	case []any:
		out := make([]domain.RawRecord, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// xmlToMap converts an XML document to nested maps. The root element becomes
// a single-key map. Repeated child elements become arrays, attributes become
// "@name" keys, and text mixed with children or attributes is kept under
// "#text". Namespaces are dropped.
func xmlToMap(r io.Reader) (map[string]any, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("empty document")
			}
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			v, err := xmlElement(dec, start)
			if err != nil {
				return nil, err
			}
			return map[string]any{start.Name.Local: v}, nil
		}
	}
}

func xmlElement(dec *xml.Decoder, start xml.StartElement) (any, error) {
	node := make(map[string]any)
	for _, a := range start.Attr {
		node["@"+a.Name.Local] = a.Value
	}
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := xmlElement(dec, t)
			if err != nil {
				return nil, err
			}
			addChild(node, t.Name.Local, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			s := strings.TrimSpace(text.String())
			if len(node) == 0 {
				return s, nil
			}
			if s != "" {
				node["#text"] = s
			}
			return node, nil
		}
	}
}

func addChild(node map[string]any, name string, child any) {
	existing, ok := node[name]
	if !ok {
		node[name] = child
		return
	}
	if arr, isArr := existing.([]any); isArr {
		node[name] = append(arr, child)
		return
	}
	node[name] = []any{existing, child}
}
