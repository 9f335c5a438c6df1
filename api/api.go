package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/linesmerrill/commute-permit-api/models"
)

// New creates a new mux router with the request middleware and health route
func New(metrics *MetricsCollector) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestMiddleware(metrics))
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	return r
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	b, _ := json.Marshal(models.HealthCheckResponse{Alive: true})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
