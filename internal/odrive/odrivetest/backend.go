// Package odrivetest provides an in-process device backend for tests.
package odrivetest

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive"
)

// CommandFunc can intercept a command. Returning handled=false falls back
// to the default assignment handling.
type CommandFunc func(command string) (result any, errMsg string, handled bool)

// Backend is a fake device backend. Property values are keyed by device
// path; ±Inf values are encoded as bare Infinity tokens like the real
// backend does.
type Backend struct {
	Server *httptest.Server

	mu         sync.Mutex
	values     map[string]any
	commands   []string
	writes     []string
	connected  bool
	devices    []odrive.DeviceInfo
	pinned     map[string]bool
	failPaths  map[string]string
	rawBatch   string
	onCommand  CommandFunc
	batchCalls int
	chartCalls int
}

// NewBackend starts a backend and registers its shutdown with t.
func NewBackend(t testing.TB) *Backend {
	b := &Backend{
		values:    map[string]any{},
		pinned:    map[string]bool{},
		failPaths: map[string]string{},
		devices: []odrive.DeviceInfo{
			{Path: "usb:1", Serial: "3A6B2C1D", FWVersion: "0.6.11", HWVersion: "4.4", Index: 0},
		},
	}
	b.Server = httptest.NewServer(b.handler())
	t.Cleanup(b.Server.Close)
	return b
}

func (b *Backend) URL() string { return b.Server.URL }

func (b *Backend) Set(devicePath string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[devicePath] = value
}

func (b *Backend) Value(devicePath string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[devicePath]
	return v, ok
}

// Pin makes assignments to devicePath a no-op, e.g. an axis that never
// leaves its state.
func (b *Backend) Pin(devicePath string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pinned[devicePath] = true
}

// FailPath makes single reads and writes of devicePath return {error}.
func (b *Backend) FailPath(devicePath, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failPaths[devicePath] = msg
}

// SetRawBatch replaces every batch reply with body.
func (b *Backend) SetRawBatch(body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rawBatch = body
}

func (b *Backend) OnCommand(fn CommandFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onCommand = fn
}

func (b *Backend) SetConnected(connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = connected
}

func (b *Backend) Commands() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.commands...)
}

func (b *Backend) Writes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.writes...)
}

func (b *Backend) BatchCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batchCalls
}

// ChartCalls counts reads through the charts endpoint. They are included in
// BatchCalls as well.
func (b *Backend) ChartCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chartCalls
}

func (b *Backend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/odrive/scan", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		devices := append([]odrive.DeviceInfo(nil), b.devices...)
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, devices)
	})

	mux.HandleFunc("/api/odrive/connect", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Device odrive.DeviceInfo `json:"device"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Device.Serial == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No device specified"})
			return
		}
		b.SetConnected(true)
		writeJSON(w, http.StatusOK, map[string]any{"message": "Connected successfully"})
	})

	mux.HandleFunc("/api/odrive/disconnect", func(w http.ResponseWriter, r *http.Request) {
		b.SetConnected(false)
		writeJSON(w, http.StatusOK, map[string]any{"message": "Disconnected successfully"})
	})

	mux.HandleFunc("/api/odrive/connection_status", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		connected := b.connected
		b.mu.Unlock()
		st := odrive.Status{Connected: connected}
		if connected {
			st.DeviceSerial = b.devices[0].Serial
		}
		writeJSON(w, http.StatusOK, st)
	})

	mux.HandleFunc("/api/odrive/command", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Command string `json:"command"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request"})
			return
		}
		result, errMsg := b.command(req.Command)
		if errMsg != "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": errMsg})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result})
	})

	mux.HandleFunc("/api/odrive/set_property", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path  string `json:"path"`
			Value any    `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request"})
			return
		}
		b.mu.Lock()
		msg, fail := b.failPaths[req.Path]
		if !fail {
			b.writes = append(b.writes, req.Path)
			if !b.pinned[req.Path] {
				b.values[req.Path] = req.Value
			}
		}
		b.mu.Unlock()
		if fail {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": msg})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": "ok"})
	})

	mux.HandleFunc("/api/odrive/property", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path  string   `json:"path"`
			Paths []string `json:"paths"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request"})
			return
		}
		if req.Paths != nil {
			b.writeBatch(w, "results", req.Paths)
			return
		}
		b.mu.Lock()
		msg, fail := b.failPaths[req.Path]
		v, ok := b.values[req.Path]
		b.mu.Unlock()
		if fail {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": msg})
			return
		}
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Property not found: " + req.Path})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":` + encode(v) + `}`))
	})

	mux.HandleFunc("/api/charts/data", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Paths []string `json:"paths"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request"})
			return
		}
		b.mu.Lock()
		b.chartCalls++
		b.mu.Unlock()
		b.writeBatch(w, "data", req.Paths)
	})

	return mux
}

func (b *Backend) writeBatch(w http.ResponseWriter, key string, paths []string) {
	b.mu.Lock()
	b.batchCalls++
	raw := b.rawBatch
	values := make(map[string]any, len(paths))
	for _, p := range paths {
		if v, ok := b.values[p]; ok {
			values[p] = v
		}
	}
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if raw != "" {
		w.Write([]byte(raw))
		return
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString(`{"` + key + `":{`)
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(k)
		buf.Write(name)
		buf.WriteByte(':')
		buf.WriteString(encode(values[k]))
	}
	buf.WriteString(`}}`)
	w.Write(buf.Bytes())
}

func (b *Backend) command(command string) (any, string) {
	b.mu.Lock()
	b.commands = append(b.commands, command)
	hook := b.onCommand
	b.mu.Unlock()

	if hook != nil {
		if result, errMsg, handled := hook(command); handled {
			return result, errMsg
		}
	}

	target, raw, ok := strings.Cut(command, " = ")
	if !ok {
		return nil, ""
	}
	target = strings.TrimPrefix(strings.TrimSpace(target), "odrv0.")
	value := parseValue(strings.TrimSpace(raw))

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pinned[target] {
		return nil, ""
	}
	b.values[target] = value
	// a requested state is reached immediately unless pinned
	if axis, found := strings.CutSuffix(target, ".requested_state"); found {
		if !b.pinned[axis+".current_state"] {
			b.values[axis+".current_state"] = value
		}
	}
	return nil, ""
}

func parseValue(raw string) any {
	switch raw {
	case "True":
		return true
	case "False":
		return false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func encode(v any) string {
	if f, ok := v.(float64); ok {
		switch {
		case math.IsInf(f, 1):
			return "Infinity"
		case math.IsInf(f, -1):
			return "-Infinity"
		case math.IsNaN(f):
			return "NaN"
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
