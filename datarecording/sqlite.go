package datarecording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

const defaultBatchSize = 100000

// New creates a DataRecorder that writes into a new SQLite file. The file
// name is the given path with the ".sqlite3" suffix. An empty path picks a
// unique name. New panics if the file already exists.
func New(path string) DataRecorder {
	if path == "" {
		path = "remoteport_recording_" + xid.New().String()
	}

	filename := path + ".sqlite3"

	_, err := os.Stat(filename)
	if err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	w := newSQLiteWriter(db)
	w.recordExecInfo()

	atexit.Register(func() { w.Flush() })

	return w
}

// NewWithDB creates a DataRecorder over an already opened database.
func NewWithDB(db *sql.DB) DataRecorder {
	w := newSQLiteWriter(db)

	atexit.Register(func() { w.Flush() })

	return w
}

// sqliteWriter is the writer that writes data into SQLite database
type sqliteWriter struct {
	mu sync.Mutex
	db *sql.DB

	tables     map[string]*table
	batchSize  int
	entryCount int
	closed     bool
}

func newSQLiteWriter(db *sql.DB) *sqliteWriter {
	return &sqliteWriter{
		db:        db,
		batchSize: defaultBatchSize,
		tables:    make(map[string]*table),
	}
}

func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) {
	cols, err := columnsOf(sampleEntry)
	if err != nil {
		panic(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.tables[tableName]; exists {
		panic(fmt.Sprintf("table %s already exists", tableName))
	}

	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, c.name+" "+sqliteType(c.kind))
	}

	w.mustExecute("CREATE TABLE " + tableName +
		" (\n\t" + strings.Join(defs, ", \n\t") + "\n);")

	for _, c := range cols {
		switch {
		case c.unique:
			w.mustExecute(fmt.Sprintf("CREATE UNIQUE INDEX %s_%s ON %s(%s);",
				tableName, c.name, tableName, c.name))
		case c.index:
			w.mustExecute(fmt.Sprintf("CREATE INDEX %s_%s ON %s(%s);",
				tableName, c.name, tableName, c.name))
		}
	}

	w.tables[tableName] = &table{structType: reflect.TypeOf(sampleEntry)}
}

func (w *sqliteWriter) InsertData(tableName string, entry any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	t, exists := w.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != t.structType {
		panic(fmt.Sprintf("entry of type %T does not fit table %s",
			entry, tableName))
	}

	t.entries = append(t.entries, entry)

	w.entryCount++
	if w.entryCount >= w.batchSize {
		w.flush()
	}
}

func (w *sqliteWriter) ListTables() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (w *sqliteWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.flush()
}

func (w *sqliteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.flush()
	w.closed = true

	return w.db.Close()
}

func (w *sqliteWriter) flush() {
	if w.entryCount == 0 || w.closed {
		return
	}

	tx, err := w.db.Begin()
	if err != nil {
		panic(err)
	}

	for tableName, t := range w.tables {
		if len(t.entries) == 0 {
			continue
		}

		numFields := len(valuesOf(t.entries[0]))

		stmt, err := tx.Prepare("INSERT INTO " + tableName +
			" VALUES " + placeholders(numFields))
		if err != nil {
			panic(err)
		}

		for _, entry := range t.entries {
			_, err := stmt.Exec(valuesOf(entry)...)
			if err != nil {
				panic(err)
			}
		}

		stmt.Close()

		t.entries = nil
	}

	err = tx.Commit()
	if err != nil {
		panic(err)
	}

	w.entryCount = 0
}

func (w *sqliteWriter) mustExecute(query string) sql.Result {
	res, err := w.db.Exec(query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute: %s\n", query)
		panic(err)
	}

	return res
}

func sqliteType(kind reflect.Kind) string {
	switch kind {
	case reflect.Float32, reflect.Float64:
		return "REAL"
	case reflect.String:
		return "TEXT"
	default:
		return "INTEGER"
	}
}
