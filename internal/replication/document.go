package replication

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"time"
)

// DeletedField is the tombstone marker carried by every document.
const DeletedField = "_deleted"

var ErrInvalidDocument = errors.New("invalid replication document")

// Document is the wire shape of one replicated row. Date fields hold
// integer epoch milliseconds, never time values.
type Document map[string]any

// ID returns the document id or "" when it is missing.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Deleted reports the tombstone flag.
func (d Document) Deleted() bool {
	deleted, _ := d[DeletedField].(bool)
	return deleted
}

// ToReplicationDoc derives the wire document for a source row. Fields named
// in dateFields are rewritten to epoch milliseconds (nil stays nil), every
// other field passes through, and _deleted is set from deleted.
//
// A date field holding anything other than a time value is a programmer
// error and panics.
func ToReplicationDoc(row map[string]any, dateFields []string, deleted bool) Document {
	doc := make(Document, len(row)+1)
	maps.Copy(doc, row)

	for _, field := range dateFields {
		doc[field] = epochMillis(field, row[field])
	}
	doc[DeletedField] = deleted

	return doc
}

func epochMillis(field string, v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t.UnixMilli()
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UnixMilli()
	default:
		panic(fmt.Sprintf("replication: date field %q holds %T", field, v))
	}
}

// Client dates must fall within years 1 to 9999.
const (
	MinDateMillis int64 = -62135596800000
	MaxDateMillis int64 = 253402300799999
)

// FromReplicationDoc is the inverse of ToReplicationDoc for documents
// received from clients. Date fields are converted back to time values and
// the tombstone flag is split off. Unlike the forward direction the input is
// untrusted, so bad values are reported as ErrInvalidDocument.
func FromReplicationDoc(doc Document, dateFields []string) (map[string]any, bool, error) {
	row := make(map[string]any, len(doc))
	maps.Copy(row, doc)
	delete(row, DeletedField)

	deleted := false
	if v, ok := doc[DeletedField]; ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			return nil, false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidDocument, DeletedField)
		}
		deleted = b
	}

	for _, field := range dateFields {
		v, ok := doc[field]
		if !ok || v == nil {
			row[field] = nil
			continue
		}
		ms, err := toMillis(v)
		if err != nil {
			return nil, false, fmt.Errorf("%w: field %q: %v", ErrInvalidDocument, field, err)
		}
		if ms < MinDateMillis || ms > MaxDateMillis {
			return nil, false, fmt.Errorf("%w: field %q: %d is outside the supported date range", ErrInvalidDocument, field, ms)
		}
		row[field] = time.UnixMilli(ms).UTC()
	}

	return row, deleted, nil
}

// toMillis accepts the numeric shapes a JSON decoder can produce.
func toMillis(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
		if n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("out of range: %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
