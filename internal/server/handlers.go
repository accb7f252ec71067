package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dbsmedya/contentsync/internal/differ"
	"github.com/dbsmedya/contentsync/internal/graph"
	"github.com/dbsmedya/contentsync/internal/lock"
	"github.com/dbsmedya/contentsync/internal/reconciler"
	"github.com/dbsmedya/contentsync/internal/resolution"
)

const maxBodyBytes = 1 << 20

type collectionInfo struct {
	Name         string   `json:"name"`
	KeyBy        string   `json:"keyBy"`
	DependsOn    []string `json:"dependsOn"`
	IgnoreFields []string `json:"ignoreFields"`
}

type collectionsResponse struct {
	Collections []collectionInfo `json:"collections"`
	SyncOrder   []string         `json:"syncOrder"`
}

type analyzeResponse struct {
	Collection  string                           `json:"collection"`
	Report      *differ.Report                   `json:"report"`
	Suggestions map[string]resolution.Resolution `json:"suggestions"`
}

type applyRequest struct {
	Resolutions       map[string]string `json:"resolutions"`
	AcceptSuggestions bool              `json:"acceptSuggestions"`
}

type applyFailure struct {
	Error  string                 `json:"error"`
	Result *reconciler.SyncResult `json:"result"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCollections(w http.ResponseWriter, _ *http.Request) {
	resp := collectionsResponse{Collections: []collectionInfo{}, SyncOrder: []string{}}
	for _, name := range s.cfg.ListCollections() {
		coll := s.cfg.Collections[name]
		keyBy := coll.KeyBy
		if keyBy == "" {
			keyBy = "id"
		}
		resp.Collections = append(resp.Collections, collectionInfo{
			Name:         name,
			KeyBy:        keyBy,
			DependsOn:    nonNil(coll.DependsOn),
			IgnoreFields: nonNil(coll.IgnoreFields),
		})
	}

	if len(s.cfg.Collections) > 0 {
		g, err := graph.Build(s.cfg.Collections)
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		order, err := g.SyncOrder()
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.SyncOrder = order
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}

	report, err := o.Analyze(r.Context())
	if err != nil {
		s.errorResponse(w, analysisStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, analyzeResponse{
		Collection:  o.Collection(),
		Report:      report,
		Suggestions: o.Policy().SuggestAll(report),
	})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w, r)
	if !ok {
		return
	}

	var req applyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.AcceptSuggestions && len(req.Resolutions) > 0 {
		s.errorResponse(w, http.StatusBadRequest, "resolutions and acceptSuggestions are mutually exclusive")
		return
	}
	resolutions, err := parseResolutions(req.Resolutions)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	run := func(ctx context.Context) (*reconciler.SyncResult, error) {
		return o.Sync(ctx, resolutions)
	}
	if req.AcceptSuggestions {
		run = o.SyncSuggested
	}

	var result *reconciler.SyncResult
	err = lock.WithLock(r.Context(), s.locks(o.Collection()), func() error {
		var runErr error
		result, _, runErr = s.journal.Track(r.Context(), o, run)
		return runErr
	})

	switch {
	case errors.Is(err, lock.ErrLockTimeout):
		s.errorResponse(w, http.StatusConflict, fmt.Sprintf("another batch is running for %q", o.Collection()))
	case err != nil && result == nil:
		s.errorResponse(w, analysisStatus(err), err.Error())
	case err != nil:
		s.jsonResponse(w, http.StatusUnprocessableEntity, applyFailure{Error: err.Error(), Result: result})
	default:
		s.jsonResponse(w, http.StatusOK, result)
	}
}

func (s *Server) orchestrator(w http.ResponseWriter, r *http.Request) (*reconciler.Orchestrator, bool) {
	name := chi.URLParam(r, "name")
	if _, ok := s.cfg.Collections[name]; !ok {
		s.errorResponse(w, http.StatusNotFound, fmt.Sprintf("collection %q not found", name))
		return nil, false
	}
	o, err := reconciler.NewOrchestrator(s.cfg, name, s.source, s.store, s.logger)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return o, true
}

func parseResolutions(raw map[string]string) (map[string]resolution.Resolution, error) {
	out := make(map[string]resolution.Resolution, len(raw))
	for key, value := range raw {
		res, err := resolution.ParseResolution(value)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = res
	}
	return out, nil
}

// analysisStatus maps a failure to reach either collection to 502. Anything else is
// a server error.
func analysisStatus(err error) int {
	var analysisErr *reconciler.AnalysisError
	if errors.As(err, &analysisErr) {
		return http.StatusBadGateway
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
