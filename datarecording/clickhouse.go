package datarecording

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/tebeka/atexit"
)

// ClickHouseConfig describes how to reach a ClickHouse server.
type ClickHouseConfig struct {
	Addr      string
	Database  string
	Username  string
	Password  string
	BatchSize int
}

// clickhouseRecorder buffers entries and sends them to ClickHouse in native
// protocol batches.
type clickhouseRecorder struct {
	mu   sync.Mutex
	conn clickhouse.Conn

	tables     map[string]*table
	batchSize  int
	entryCount int
	closed     bool
}

// NewClickHouse connects to a ClickHouse server and returns a DataRecorder
// that writes into it. Tables are created if they do not exist.
func NewClickHouse(ctx context.Context, cfg ClickHouseConfig) (DataRecorder, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     2,
		MaxIdleConns:     2,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	err = conn.Ping(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	r := &clickhouseRecorder{
		conn:      conn,
		batchSize: cfg.BatchSize,
		tables:    make(map[string]*table),
	}

	r.CreateTable(ExecInfoTable, ExecInfo{})

	for _, e := range execInfoEntries() {
		r.InsertData(ExecInfoTable, e)
	}

	atexit.Register(func() { r.Flush() })

	return r, nil
}

func (r *clickhouseRecorder) CreateTable(tableName string, sampleEntry any) {
	query, err := clickhouseCreateSQL(tableName, sampleEntry)
	if err != nil {
		panic(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.conn.Exec(context.Background(), query)
	if err != nil {
		panic(fmt.Errorf("failed to create table %s: %w", tableName, err))
	}

	r.tables[tableName] = &table{structType: reflect.TypeOf(sampleEntry)}
}

func (r *clickhouseRecorder) InsertData(tableName string, entry any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	t.entries = append(t.entries, entry)

	r.entryCount++
	if r.entryCount >= r.batchSize {
		r.flush()
	}
}

func (r *clickhouseRecorder) ListTables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (r *clickhouseRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flush()
}

func (r *clickhouseRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.flush()
	r.closed = true

	return r.conn.Close()
}

func (r *clickhouseRecorder) flush() {
	if r.entryCount == 0 || r.closed {
		return
	}

	ctx := context.Background()

	for tableName, t := range r.tables {
		if len(t.entries) == 0 {
			continue
		}

		batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+tableName)
		if err != nil {
			panic(fmt.Errorf("failed to prepare batch for %s: %w", tableName, err))
		}

		for _, entry := range t.entries {
			err := batch.Append(clickhouseValues(entry)...)
			if err != nil {
				panic(fmt.Errorf("failed to append to %s: %w", tableName, err))
			}
		}

		err = batch.Send()
		if err != nil {
			panic(fmt.Errorf("failed to send batch for %s: %w", tableName, err))
		}

		t.entries = nil
	}

	r.entryCount = 0
}

func clickhouseCreateSQL(tableName string, sampleEntry any) (string, error) {
	cols, err := columnsOf(sampleEntry)
	if err != nil {
		return "", err
	}

	defs := make([]string, 0, len(cols))
	orderBy := []string{}

	for _, c := range cols {
		defs = append(defs, c.name+" "+clickhouseType(c.kind))

		if c.index || c.unique {
			orderBy = append(orderBy, c.name)
		}
	}

	order := "tuple()"
	if len(orderBy) > 0 {
		order = "(" + strings.Join(orderBy, ", ") + ")"
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n\t%s\n) ENGINE = MergeTree()\nORDER BY %s",
		tableName, strings.Join(defs, ",\n\t"), order), nil
}

func clickhouseType(kind reflect.Kind) string {
	switch kind {
	case reflect.Bool:
		return "Bool"
	case reflect.Int8:
		return "Int8"
	case reflect.Int16:
		return "Int16"
	case reflect.Int32:
		return "Int32"
	case reflect.Int, reflect.Int64:
		return "Int64"
	case reflect.Uint8:
		return "UInt8"
	case reflect.Uint16:
		return "UInt16"
	case reflect.Uint32:
		return "UInt32"
	case reflect.Uint, reflect.Uint64:
		return "UInt64"
	case reflect.Float32:
		return "Float32"
	case reflect.Float64:
		return "Float64"
	default:
		return "String"
	}
}

// clickhouseValues widens platform sized integers so that they match the
// Int64 and UInt64 columns.
func clickhouseValues(entry any) []any {
	values := valuesOf(entry)

	for i, v := range values {
		switch x := v.(type) {
		case int:
			values[i] = int64(x)
		case uint:
			values[i] = uint64(x)
		}
	}

	return values
}
