package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
)

const (
	healthStatusOK          = "ok"
	healthStatusUnavailable = "unavailable"
)

// ReadyCheck reports whether a subsystem is ready. A nil error means ready.
type ReadyCheck func(ctx context.Context) error

// healthBody is the JSON body of the health and readiness endpoints.
type healthBody struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// HealthHandler returns an [http.Handler] for liveness checks at /healthz.
// It always answers 200 with {"status":"ok"} and the binary version.
func HealthHandler(version string) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		writeHealth(rw, http.StatusOK, healthBody{Status: healthStatusOK, Version: version})
	})
}

// ReadyHandler returns an [http.Handler] for readiness checks at /readyz.
// Every named check runs; any failure answers 503 listing the failed checks.
func ReadyHandler(checks map[string]ReadyCheck) http.Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}

	sort.Strings(names)

	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		failed := make(map[string]string)

		for _, name := range names {
			err := checks[name](hr.Context())
			if err != nil {
				failed[name] = err.Error()
			}
		}

		if len(failed) > 0 {
			writeHealth(rw, http.StatusServiceUnavailable, healthBody{Status: healthStatusUnavailable, Failed: failed})

			return
		}

		writeHealth(rw, http.StatusOK, healthBody{Status: healthStatusOK})
	})
}

func writeHealth(rw http.ResponseWriter, code int, body healthBody) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	err := json.NewEncoder(rw).Encode(body)
	if err != nil {
		return
	}
}
