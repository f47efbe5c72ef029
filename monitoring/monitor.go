// Package monitoring serves the state of live remote port sessions over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/remoteport/remoteport"
)

// Monitor turns a process that owns remote port sessions into a server that
// reports their state.
type Monitor struct {
	log             zerolog.Logger
	portNumber      int
	profileDuration time.Duration

	mu       sync.Mutex
	sessions map[string]*remoteport.Session
	server   *http.Server
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		log:             zerolog.Nop(),
		profileDuration: time.Second,
		sessions:        make(map[string]*remoteport.Session),
	}
}

// WithPortNumber sets the port number of the monitor. Zero and privileged
// ports select a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.log.Warn().
			Int("port", portNumber).
			Msg("port not allowed for the monitor, using a random port")

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(log zerolog.Logger) *Monitor {
	m.log = log
	return m
}

// WithProfileDuration sets how long the profile endpoint samples the CPU.
func (m *Monitor) WithProfileDuration(d time.Duration) *Monitor {
	m.profileDuration = d
	return m
}

// RegisterSession adds a session to be monitored.
func (m *Monitor) RegisterSession(s *remoteport.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.Name()]; ok {
		panic(fmt.Sprintf("session %s already registered", s.Name()))
	}

	m.sessions[s.Name()] = s
}

// UnregisterSession stops monitoring a session.
func (m *Monitor) UnregisterSession(s *remoteport.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, s.Name())
}

// Handler returns the HTTP routes of the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/sessions", m.listSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/session/{name}", m.sessionStats).Methods(http.MethodGet)
	r.HandleFunc("/api/session/{name}/detail", m.sessionDetail).
		Methods(http.MethodGet)
	r.HandleFunc("/api/session/{name}/channel/{dev}", m.channelStats).
		Methods(http.MethodGet)
	r.HandleFunc("/api/field/{json}", m.fieldValue).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)
	r.HandleFunc("/", m.index).Methods(http.MethodGet)

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	srv := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	m.mu.Lock()
	m.server = srv
	m.mu.Unlock()

	go func() {
		err := srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error().Err(err).Msg("monitor stopped")
		}
	}()

	fmt.Fprintf(os.Stderr, "Monitoring remote port sessions with %s\n", url)

	return url, nil
}

// StopServer shuts the web server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	m.mu.Lock()
	srv := m.server
	m.server = nil
	m.mu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}

func (m *Monitor) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string][]string{
		"routes": {
			"/api/sessions",
			"/api/session/{name}",
			"/api/session/{name}/detail",
			"/api/session/{name}/channel/{dev}",
			"/api/field/{json}",
			"/api/resource",
			"/api/profile",
		},
	})
}

func (m *Monitor) listSessions(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	m.mu.Unlock()

	sort.Strings(names)

	writeJSON(w, names)
}

func (m *Monitor) sessionStats(w http.ResponseWriter, r *http.Request) {
	s := m.findSessionOr404(w, mux.Vars(r)["name"])
	if s == nil {
		return
	}

	writeJSON(w, s.Stats())
}

func (m *Monitor) channelStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	s := m.findSessionOr404(w, vars["name"])
	if s == nil {
		return
	}

	dev, err := strconv.ParseUint(vars["dev"], 10, 32)
	if err != nil {
		http.Error(w, "invalid device: "+vars["dev"], http.StatusBadRequest)
		return
	}

	for _, c := range s.Channels() {
		if c.Device() == uint32(dev) {
			writeJSON(w, c.Stats())
			return
		}
	}

	http.Error(w, "Channel not found", http.StatusNotFound)
}

func (m *Monitor) sessionDetail(w http.ResponseWriter, r *http.Request) {
	s := m.findSessionOr404(w, mux.Vars(r)["name"])
	if s == nil {
		return
	}

	stats := s.Stats()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&stats)
	serializer.SetMaxDepth(2)

	err := serializer.Serialize(w)
	if err != nil {
		m.log.Error().Err(err).Str("session", s.Name()).Msg("serialize")
	}
}

type fieldReq struct {
	SessionName string `json:"session_name,omitempty"`
	FieldName   string `json:"field_name,omitempty"`
}

func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s := m.findSessionOr404(w, req.SessionName)
	if s == nil {
		return
	}

	stats := s.Stats()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&stats)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = serializer.Serialize(w)
	if err != nil {
		m.log.Error().Err(err).Str("session", s.Name()).Msg("serialize")
	}
}

func (m *Monitor) findSessionOr404(
	w http.ResponseWriter,
	name string,
) *remoteport.Session {
	m.mu.Lock()
	s := m.sessions[name]
	m.mu.Unlock()

	if s == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
	}

	return s
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
