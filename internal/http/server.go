package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ignatij/approvalflow/internal/log"
	"github.com/ignatij/approvalflow/pkg/service"
	"github.com/ignatij/approvalflow/pkg/storage"
)

// StartServer exposes the engine to an external scheduler: a cron hits
// POST /process on a fixed cadence and receives the batch report.
func StartServer(port string, store storage.Store) error {
	svc := service.NewTimeoutService(store, log.GetLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/process", ProcessHandler(svc))

	log.GetLogger().Infof("Starting approvalflow server on :%s", port)
	return http.ListenAndServe(":"+port, mux)
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("approvalflow server is running")); err != nil {
		log.GetLogger().Errorf("Failed to write health response: %v", err)
	}
}

// ProcessHandler runs one batch tick and returns the report.
func ProcessHandler(svc *service.TimeoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		report, err := svc.ProcessTimeouts(time.Now().UTC())
		if err != nil {
			log.GetLogger().Errorf("Approval timeout processing error: %v", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			log.GetLogger().Errorf("Failed to encode report: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		log.GetLogger().Errorf("Failed to encode error response: %v", err)
	}
}
