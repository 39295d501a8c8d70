// Package diag serves scheduler diagnostics and pprof over HTTP.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"taskloop/internal/runtime/supervisor"
	"taskloop/pkg/logx"
)

const (
	DefaultAddr = "127.0.0.1:6060"

	defaultReadHeaderTimeout = 5 * time.Second
	shutdownTimeout          = 2 * time.Second
)

// Config controls the optional diagnostics server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
}

// ErrInsecureBind is returned by Serve for a non-loopback address without
// a token.
var ErrInsecureBind = errors.New("diag: non-loopback addr requires token or allow_insecure")

// Scheduler is one engine as reported by /debug/schedulers.
type Scheduler struct {
	Name     string `json:"name"`
	Engine   string `json:"engine"`
	Snapshot any    `json:"snapshot"`
}

// Sources supplies the state the server exposes. Either func may be nil.
type Sources struct {
	Schedulers func() []Scheduler
	Supervisor func() supervisor.Snapshot
}

type Server struct {
	cfg Config
	src Sources
	log logx.Logger
}

func New(cfg Config, src Sources, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, src: src, log: log}
}

// Handler returns the router with every diagnostics route mounted.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.withAuth)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/debug/schedulers", s.listSchedulers).Methods(http.MethodGet)
	r.HandleFunc("/debug/schedulers/{name}", s.getScheduler).Methods(http.MethodGet)
	r.HandleFunc("/debug/supervisor", s.getSupervisor).Methods(http.MethodGet)

	r.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", hpprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	r.PathPrefix("/debug/pprof/").HandlerFunc(hpprof.Index)
	return r
}

func (s *Server) schedulers() []Scheduler {
	if s.src.Schedulers == nil {
		return []Scheduler{}
	}
	return s.src.Schedulers()
}

func (s *Server) listSchedulers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.schedulers())
}

func (s *Server) getScheduler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, sc := range s.schedulers() {
		if sc.Name == name {
			writeJSON(w, http.StatusOK, sc)
			return
		}
	}
	http.Error(w, fmt.Sprintf("scheduler %q not found", name), http.StatusNotFound)
}

func (s *Server) getSupervisor(w http.ResponseWriter, _ *http.Request) {
	if s.src.Supervisor == nil {
		http.Error(w, "supervisor not running", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.src.Supervisor())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Serve listens on the configured address until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if err := CheckBind(addr, s.cfg.Token, s.cfg.AllowInsecure); err != nil {
		return err
	}
	if s.cfg.Token == "" && !IsLoopbackAddr(addr) {
		s.log.Warn("diag running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("diag listen %s: %w", addr, err)
	}
	defer func() { _ = ln.Close() }()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("diag started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", s.cfg.Token != ""))

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			_ = srv.Close()
		}
		<-errCh
		s.log.Info("diag stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("diag serve: %w", err)
	}
}

// withAuth accepts either "Authorization: Bearer <token>" or ?token=<token>.
func (s *Server) withAuth(next http.Handler) http.Handler {
	tok := strings.TrimSpace(s.cfg.Token)
	if tok == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			next.ServeHTTP(w, r)
			return
		}
		unauthorized(w)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// CheckBind refuses a non-loopback addr unless a token is set or insecure
// binds are allowed.
func CheckBind(addr, token string, allowInsecure bool) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("diag addr %q: %w", addr, err)
	}
	if !allowInsecure && strings.TrimSpace(token) == "" && !IsLoopbackAddr(addr) {
		return ErrInsecureBind
	}
	return nil
}

func IsLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
