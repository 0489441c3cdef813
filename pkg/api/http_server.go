package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"historytree/pkg/common"
	"historytree/pkg/document"
	"historytree/pkg/monitor"
)

type Server struct {
	registry *document.Registry
	stats    *monitor.Stats
	log      *slog.Logger
	mux      *http.ServeMux
}

func NewServer(registry *document.Registry, stats *monitor.Stats, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry: registry,
		stats:    stats,
		log:      logger.With("component", "api"),
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/docs", s.handleDocs)
	s.mux.HandleFunc("/api/add", s.handleAdd)
	s.mux.HandleFunc("/api/change", s.handleChange)
	s.mux.HandleFunc("/api/delete", s.handleDelete)
	s.mux.HandleFunc("/api/children", s.handleChildren)
	s.mux.HandleFunc("/api/tree", s.handleTree)
	s.mux.HandleFunc("/api/undo", s.handleUndo)
	s.mux.HandleFunc("/api/redo", s.handleRedo)
	s.mux.HandleFunc("/api/export", s.handleExport)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	if stats != nil {
		s.mux.Handle("/metrics", stats.Handler())
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		s.mux.ServeHTTP(w, r)
	})
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type editRequest struct {
	Doc    string       `json:"doc"`
	Parent common.Index `json:"parent"`
	Node   common.Index `json:"node"`
	Text   string       `json:"text"`
}

type editResponse struct {
	Index  common.Index `json:"index"`
	Cursor common.Index `json:"cursor"`
}

type cursorResponse struct {
	Cursor  common.Index `json:"cursor"`
	CanUndo bool         `json:"can_undo"`
	CanRedo bool         `json:"can_redo"`
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		id, err := s.registry.Create()
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{"docs": s.registry.List()})
	case http.MethodDelete:
		if err := s.registry.Remove(r.URL.Query().Get("id")); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	s.edit(w, r, func(d *document.Document, req editRequest) (common.Index, error) {
		return d.Add(req.Text, req.Parent)
	})
}

func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	s.edit(w, r, func(d *document.Document, req editRequest) (common.Index, error) {
		return d.Change(req.Text, req.Node)
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.edit(w, r, func(d *document.Document, req editRequest) (common.Index, error) {
		return d.Delete(req.Node)
	})
}

func (s *Server) edit(w http.ResponseWriter, r *http.Request, fn func(*document.Document, editRequest) (common.Index, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}

	var resp editResponse
	err := s.registry.With(req.Doc, func(d *document.Document) error {
		idx, err := fn(d, req)
		if err != nil {
			return err
		}
		resp = editResponse{Index: idx, Cursor: d.Cursor()}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	doc, node, ok := queryNode(w, r)
	if !ok {
		return
	}
	var kids []common.Index
	err := s.registry.With(doc, func(d *document.Document) error {
		kids = d.Children(node)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"parent": node, "children": kids})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	doc, node, ok := queryNode(w, r)
	if !ok {
		return
	}
	text := r.URL.Query().Get("format") == "text"

	var snap document.Node
	var buf bytes.Buffer
	err := s.registry.With(doc, func(d *document.Document) error {
		if text {
			return d.Print(&buf, node)
		}
		snap = d.Snapshot(node)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if text {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write(buf.Bytes())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.move(w, r, (*document.Document).Undo)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.move(w, r, (*document.Document).Redo)
}

func (s *Server) move(w http.ResponseWriter, r *http.Request, fn func(*document.Document)) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var resp cursorResponse
	err := s.registry.With(r.URL.Query().Get("doc"), func(d *document.Document) error {
		fn(d)
		resp = cursorResponse{Cursor: d.Cursor(), CanUndo: d.CanUndo(), CanRedo: d.CanRedo()}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type exportEntry struct {
	Index common.Index `json:"index"`
	Text  string       `json:"text"`
}

// handleExport dumps the stored payload of the active history.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var entries []common.Entry
	err := s.registry.With(r.URL.Query().Get("doc"), func(d *document.Document) error {
		var err error
		entries, err = d.Export()
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]exportEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, exportEntry{Index: e.Key, Text: string(e.Value)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"documents": s.registry.Len()})
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func queryNode(w http.ResponseWriter, r *http.Request) (string, common.Index, bool) {
	q := r.URL.Query()
	node := 0
	if v := q.Get("node"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid node", http.StatusBadRequest)
			return "", 0, false
		}
		node = n
	}
	return q.Get("doc"), node, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, document.ErrNotFound), errors.Is(err, document.ErrUnknownNode):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.log.Error("request failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
