package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all status routes mounted.
func NewRouter(svc *Service) chi.Router {
	r := chi.NewRouter()

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		runs, err := svc.RecentRuns(limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/tiers", func(w http.ResponseWriter, _ *http.Request) {
		counts, err := svc.Tiers()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, counts)
	})

	r.Get("/report", func(w http.ResponseWriter, _ *http.Request) {
		data, err := svc.Report()
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorBody("no report generated yet"))
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})

	return r
}
