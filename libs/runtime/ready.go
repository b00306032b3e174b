package runtime

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const readyCheckTimeout = 2 * time.Second

// ReadyCheck is a named dependency check surfaced on /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

func (c ReadyCheck) run(ctx context.Context) error {
	if c.Check == nil {
		return nil
	}
	checkCtx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
	defer cancel()
	return c.Check(checkCtx)
}

func (c ReadyCheck) label() string {
	if c.Name == "" {
		return "dependency"
	}
	return c.Name
}

// NewBaseMuxWithReady returns a mux preloaded with /healthz (liveness,
// always ok) and /readyz, which answers 503 while any dependency check
// is failing.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", writeOK)
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		var failures []string
		for _, check := range checks {
			if err := check.run(r.Context()); err != nil {
				failures = append(failures, check.label()+": "+err.Error())
			}
		}
		if len(failures) > 0 {
			http.Error(w, strings.Join(failures, "; "), http.StatusServiceUnavailable)
			return
		}
		writeOK(w, r)
	})
	return mux
}

func writeOK(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
