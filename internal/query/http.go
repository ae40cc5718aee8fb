package query

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Router mounts the query API under /v1. Handlers read projection tables
// only; they never touch in-memory state.
func (qs *QueryService) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(qs.instrument)
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/pools", qs.handleListPools).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{id}", qs.handleGetPool).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{id}/quote", qs.handleQuote).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{id}/events", qs.handleListEvents).Methods(http.MethodGet)
	v1.HandleFunc("/vestings/{id}", qs.handleGetVesting).Methods(http.MethodGet)
	v1.HandleFunc("/mining/leaderboard", qs.handleLeaderboard).Methods(http.MethodGet)
	v1.HandleFunc("/mining/groups/{id}", qs.handleMiningGroup).Methods(http.MethodGet)
	v1.HandleFunc("/events", qs.handleListEvents).Methods(http.MethodGet)
	v1.HandleFunc("/admin/integrity", qs.handleIntegrity).Methods(http.MethodGet)

	return r
}

func (qs *QueryService) handleListPools(w http.ResponseWriter, r *http.Request) {
	offset := intParam(r, "offset", 0)
	limit := pageLimit(r)

	resp, err := qs.ListPools(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (qs *QueryService) handleGetPool(w http.ResponseWriter, r *http.Request) {
	poolID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := qs.GetPool(r.Context(), poolID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (qs *QueryService) handleQuote(w http.ResponseWriter, r *http.Request) {
	poolID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	duration, err := strconv.ParseUint(r.URL.Query().Get("duration_seconds"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadParam("duration_seconds"))
		return
	}
	coverTokens, err := uint256.FromDecimal(r.URL.Query().Get("cover_tokens"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadParam("cover_tokens"))
		return
	}

	resp, err := qs.Quote(r.Context(), poolID, duration, coverTokens)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (qs *QueryService) handleGetVesting(w http.ResponseWriter, r *http.Request) {
	vestingID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := qs.GetVesting(r.Context(), vestingID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (qs *QueryService) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	resp, err := qs.GetLeaderboard(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (qs *QueryService) handleMiningGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := qs.GetMiningGroup(r.Context(), groupID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (qs *QueryService) handleListEvents(w http.ResponseWriter, r *http.Request) {
	var poolID *uuid.UUID
	if raw, ok := mux.Vars(r)["id"]; ok {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		poolID = &id
	}

	var before *int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errBadParam("before"))
			return
		}
		before = &seq
	}

	events, err := qs.ListEvents(r.Context(), poolID, pageLimit(r), before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (qs *QueryService) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := qs.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- helpers ---

// instrument records request counts and latency per route template.
func (qs *QueryService) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if qs.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)

		qs.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
		qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func pageLimit(r *http.Request) int {
	limit := intParam(r, "limit", defaultPageLimit)
	if limit == 0 || limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

type badParamError string

func errBadParam(name string) error { return badParamError(name) }

func (e badParamError) Error() string { return "invalid parameter: " + string(e) }
