// Package datarecording stores flat records into a database.
//
// A record is any struct whose fields are all scalar. Each table is created
// from a sample entry and the field names become the column names. Fields can
// carry an `rp_data` tag with the value "index" or "unique" to have the
// writer create an index on that column.
package datarecording

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fatih/structs"
)

// TagName is the struct tag the recorders look at.
const TagName = "rp_data"

// ErrInvalidEntry is returned when an entry cannot be flattened into a row.
var ErrInvalidEntry = errors.New("entry is invalid")

// DataRecorder is a backend that can record and store data
type DataRecorder interface {
	// CreateTable creates a new table whose columns follow the sample entry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers an entry into a table that already exists.
	InsertData(tableName string, entry any)

	// ListTables returns the names of all tables created so far.
	ListTables() []string

	// Flush writes all the buffered entries into the database.
	Flush()

	// Close flushes and releases the connection.
	Close() error
}

type table struct {
	structType reflect.Type
	entries    []any
}

type column struct {
	name   string
	kind   reflect.Kind
	index  bool
	unique bool
}

func isAllowedKind(kind reflect.Kind) bool {
	switch kind {
	case
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
		reflect.Float32,
		reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

// columnsOf lists the exported columns of a struct entry.
func columnsOf(entry any) ([]column, error) {
	t := reflect.TypeOf(entry)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T is not a struct", ErrInvalidEntry, entry)
	}

	names := structs.Names(entry)
	cols := make([]column, 0, len(names))

	for _, name := range names {
		field, _ := t.FieldByName(name)
		if !isAllowedKind(field.Type.Kind()) {
			return nil, fmt.Errorf("%w: field %s has kind %s",
				ErrInvalidEntry, name, field.Type.Kind())
		}

		tag := field.Tag.Get(TagName)
		cols = append(cols, column{
			name:   name,
			kind:   field.Type.Kind(),
			index:  tag == "index",
			unique: tag == "unique",
		})
	}

	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %T has no exported field", ErrInvalidEntry, entry)
	}

	return cols, nil
}

// valuesOf returns the exported field values of an entry in column order.
func valuesOf(entry any) []any {
	return structs.Values(entry)
}

func placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = "?"
	}

	return "(" + strings.Join(marks, ", ") + ")"
}
