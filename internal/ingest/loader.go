package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"grimm.is/cpmigrate/internal/objects"
)

// LoadRecords reads an export file. See DecodeRecords for the accepted
// shapes.
func LoadRecords(path string) ([]*objects.Attributes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	recs, err := DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// DecodeRecords accepts a JSON array of records, a single object with an
// "objects" array (mgmt_cli show-objects output) or an untyped "rulebase"
// array (show nat-rulebase output), a single record, or
// records written back to back, with or without separating commas, which is
// how some exports are concatenated.
func DecodeRecords(data []byte) ([]*objects.Attributes, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if json.Valid(data) {
		return decodeDocument(data)
	}

	// Not a single JSON value; wrap the content in brackets.
	wrapped := make([]byte, 0, len(data)+2)
	wrapped = append(wrapped, '[')
	wrapped = append(wrapped, data...)
	wrapped = append(wrapped, ']')
	if json.Valid(wrapped) {
		return decodeArray(wrapped)
	}

	return decodeStream(data)
}

func decodeDocument(data []byte) ([]*objects.Attributes, error) {
	switch data[0] {
	case '[':
		return decodeArray(data)
	case '{':
		rec, err := objects.ParseAttributes(data)
		if err != nil {
			return nil, err
		}
		if rec.Has("objects") {
			return attributeList(rec.List("objects"))
		}
		// show nat-rulebase output: sections under an untyped wrapper
		if rec.Has("rulebase") && !rec.Has("type") {
			return attributeList(rec.List("rulebase"))
		}
		return []*objects.Attributes{rec}, nil
	}
	return nil, fmt.Errorf("unexpected top-level JSON value %q", data[:1])
}

func decodeArray(data []byte) ([]*objects.Attributes, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode record list: %w", err)
	}
	out := make([]*objects.Attributes, 0, len(raw))
	for i, r := range raw {
		rec, err := objects.ParseAttributes(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeStream(data []byte) ([]*objects.Attributes, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var out []*objects.Attributes
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode record stream: %w", err)
		}
		rec, err := objects.ParseAttributes(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func attributeList(items []any) ([]*objects.Attributes, error) {
	out := make([]*objects.Attributes, 0, len(items))
	for i, item := range items {
		rec, ok := item.(*objects.Attributes)
		if !ok {
			return nil, fmt.Errorf("objects[%d] is not a JSON object", i)
		}
		out = append(out, rec)
	}
	return out, nil
}
