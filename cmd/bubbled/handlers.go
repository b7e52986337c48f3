package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ghodss/yaml"
	"github.com/gorilla/websocket"
	"github.com/relaycode/bubble/cmd/bubbled/memproject"
	"github.com/relaycode/bubble/lib/bubble"
	"github.com/relaycode/bubble/lib/logger"
	"github.com/relaycode/bubble/lib/project"
	"github.com/relaycode/bubble/lib/sandbox"
)

// app bundles the dependencies every handler closes over.
type app struct {
	b    *bubble.Bubble
	proj *memproject.Project
}

type execRequest struct {
	Command string `json:"command"`
}

// execHandler runs one command synchronously and returns its result as
// JSON, for callers that do not need the live-streaming websocket route.
func (a *app) execHandler(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		http.Error(w, "command is required", http.StatusBadRequest)
		return
	}

	result, err := a.b.Exec(r.Context(), req.Command)
	if err != nil {
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "exec failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamFrame is one frame of an /exec/stream websocket session: either a
// line of output as it is produced, or (with Line/Stream unset) the final
// CommandResult once the command exits.
type streamFrame struct {
	Stream string                 `json:"stream,omitempty"`
	Line   string                 `json:"line,omitempty"`
	Result *sandbox.CommandResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// execStreamHandler runs one command and streams each stdout/stderr line
// to the caller over a websocket connection as OutputPump produces it,
// then sends a final frame carrying the assembled CommandResult. gorilla's
// websocket.Conn permits only one concurrent writer, so writes from
// ExecStream's onLine callback (invoked from two goroutines, one per
// pipe) are serialized through writeMu.
func (a *app) execStreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var req execRequest
	if err := json.Unmarshal(msg, &req); err != nil || req.Command == "" {
		conn.WriteJSON(streamFrame{Error: "command is required"})
		return
	}

	var writeMu sync.Mutex
	onLine := func(stream, line string) {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.WriteJSON(streamFrame{Stream: stream, Line: line})
	}

	result, err := a.b.ExecStream(r.Context(), req.Command, onLine)

	writeMu.Lock()
	defer writeMu.Unlock()
	if err != nil {
		conn.WriteJSON(streamFrame{Error: err.Error()})
		return
	}
	conn.WriteJSON(streamFrame{Result: &result})
}

// historyHandler lists every FileHistory record bubbled has accumulated
// this process's lifetime.
func (a *app) historyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a.proj.HistoryStore().History())
}

type rollbackRequest struct {
	Path         string `json:"path"`
	InvocationID string `json:"invocation_id"`
}

// rollbackHandler replays the History records matching invocation_id for
// one tracked path, restoring it to its pre-invocation state.
func (a *app) rollbackHandler(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" || req.InvocationID == "" {
		http.Error(w, "path and invocation_id are required", http.StatusBadRequest)
		return
	}

	var targets []project.RollbackTarget
	for _, h := range a.proj.HistoryStore().History() {
		if h.InvocationID == req.InvocationID {
			targets = append(targets, project.RollbackTarget{Path: req.Path, History: h})
		}
	}
	if len(targets) == 0 {
		http.Error(w, "no history found for that invocation", http.StatusNotFound)
		return
	}

	if err := project.Rollback(targets); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// debugDumpResponse is what debugDumpHandler renders as YAML: the
// project tree and a probe of the sandboxing capability, per
// SPEC_FULL.md §7's capability-probe detail.
type debugDumpResponse struct {
	BuildRoot  string          `json:"build_root"`
	Files      []debugFileInfo `json:"files"`
	Capability any             `json:"capability"`
	Timestamp  string          `json:"timestamp"`
}

type debugFileInfo struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Id     int64  `json:"id"`
	Status string `json:"status"`
}

// debugDumpHandler renders the in-memory project tree and the current
// sandboxing capability report as YAML, for humans inspecting bubbled
// from a terminal rather than a JSON-consuming client.
func (a *app) debugDumpHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := a.proj.FilesIndex().Snapshot()
	files := make([]debugFileInfo, 0, len(snapshot))
	for _, fb := range snapshot {
		status := "tracked"
		if fb.IsDeleted() {
			status = "deleted"
		} else if fb.IsNeedApproval() {
			status = "needs_approval"
		}
		files = append(files, debugFileInfo{
			Path:   fb.Path(),
			Kind:   fb.Kind().String(),
			Id:     fb.Id(),
			Status: status,
		})
	}

	dump := debugDumpResponse{
		BuildRoot:  a.proj.Dir,
		Files:      files,
		Capability: bubble.Probe(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	out, err := yaml.Marshal(dump)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(out)
}

// healthHandler is an unauthenticated liveness probe.
func (a *app) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

