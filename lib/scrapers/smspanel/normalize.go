package smspanel

import (
	"fmt"
	"strconv"
)

// Record is one normalized message from the panel. Every field is a
// string, possibly empty; Text is the raw body to scan for a code.
type Record struct {
	Source    string
	Timestamp string
	Channel   string
	Text      string
}

type payloadShape int

const (
	shapeUnknown payloadShape = iota
	// an array per record with fields at fixed column positions
	shapePositional
	// a map per record with fields under one of several synonym keys
	shapeKeyed
)

// CDR table column layout used by positional payloads
const (
	colTimestamp      = 0
	colSource         = 2
	colChannel        = 3
	colText           = 4
	positionalColumns = 5
)

// keys a list payload may be nested under, tried in order
var containerKeys = []string{"aaData", "data", "messages", "records", "rows", "items"}

// per-field synonym keys for keyed payloads, first present wins
var timestampKeys = []string{"date", "datetime", "time", "created_at"}
var sourceKeys = []string{"number", "did", "phone", "receiver", "to", "termination"}
var channelKeys = []string{"cli", "service", "sender", "originator", "from"}
var textKeys = []string{"message", "sms", "text", "body", "content"}

// Normalize converts any of the panel's known payload shapes into a
// flat list of records. The shape is resolved once by structural
// inspection; unrecognized shapes normalize to an empty list and
// malformed rows are skipped individually, it never fails.
func Normalize(payload any) []Record {
	list := unwrapList(payload)
	if len(list) == 0 {
		return nil
	}

	switch classify(list) {
	case shapePositional:
		return normalizePositional(list)
	case shapeKeyed:
		return normalizeKeyed(list)
	}
	return nil
}

func unwrapList(payload any) []any {
	switch v := payload.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range containerKeys {
			inner, ok := v[key]
			if !ok {
				continue
			}
			if list, ok := inner.([]any); ok {
				return list
			}
		}
	}
	return nil
}

func classify(list []any) payloadShape {
	for _, item := range list {
		switch item.(type) {
		case []any:
			return shapePositional
		case map[string]any:
			return shapeKeyed
		}
	}
	return shapeUnknown
}

func normalizePositional(list []any) []Record {
	var records []Record
	for _, item := range list {
		row, ok := item.([]any)
		if !ok {
			continue
		}

		// rows shorter than the expected column count still produce a
		// record, missing fields stay empty
		fields := make([]string, positionalColumns)
		for i := range fields {
			if i < len(row) {
				fields[i] = coerceString(row[i])
			}
		}

		records = append(records, Record{
			Timestamp: fields[colTimestamp],
			Source:    fields[colSource],
			Channel:   fields[colChannel],
			Text:      fields[colText],
		})
	}
	return records
}

func normalizeKeyed(list []any) []Record {
	var records []Record
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, Record{
			Timestamp: pickString(m, timestampKeys),
			Source:    pickString(m, sourceKeys),
			Channel:   pickString(m, channelKeys),
			Text:      pickString(m, textKeys),
		})
	}
	return records
}

func pickString(m map[string]any, keys []string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return coerceString(v)
		}
	}
	return ""
}

func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
