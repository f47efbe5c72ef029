package datarecording

import (
	"os"
	"strings"
	"time"
)

// ExecInfoTable is the table that describes the process that produced the
// recording.
const ExecInfoTable = "exec_info"

const execTimeFormat = "2006-01-02 15:04:05.000000000"

// ExecInfo is one property of the recording process.
type ExecInfo struct {
	Property string
	Value    string
}

func execInfoEntries() []ExecInfo {
	entries := []ExecInfo{
		{"Start Time", time.Now().Format(execTimeFormat)},
		{"Command", strings.Join(os.Args, " ")},
	}

	cwd, err := os.Getwd()
	if err == nil {
		entries = append(entries, ExecInfo{"Working Directory", cwd})
	}

	return entries
}

func (w *sqliteWriter) recordExecInfo() {
	w.CreateTable(ExecInfoTable, ExecInfo{})

	for _, e := range execInfoEntries() {
		w.InsertData(ExecInfoTable, e)
	}
}

// RecordEndTime appends the end time of the process to the exec info table
// if the recorder has one.
func RecordEndTime(r DataRecorder) {
	for _, name := range r.ListTables() {
		if name == ExecInfoTable {
			r.InsertData(ExecInfoTable,
				ExecInfo{"End Time", time.Now().Format(execTimeFormat)})

			return
		}
	}
}
