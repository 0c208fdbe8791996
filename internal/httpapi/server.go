package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/arqgene/moldock/internal/auth"
	"github.com/arqgene/moldock/internal/config"
	"github.com/arqgene/moldock/internal/jobs"
	"github.com/arqgene/moldock/internal/service"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

// allowedExtensions are the structure formats accepted for upload.
var allowedExtensions = map[string]struct{}{
	"pdb":   {},
	"pdbqt": {},
	"sdf":   {},
	"mol":   {},
	"mol2":  {},
}

type Server struct {
	orch     *service.Orchestrator
	queue    *jobs.Queue
	settings runtimeSettingsStore
	authSvc  *auth.Service
	sessions *auth.SessionManager

	dataDir        string
	posesDir       string
	maxUploadBytes int64

	uiEnabled   bool
	uiStaticDir string

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithAuth(svc *auth.Service, sessions *auth.SessionManager) Option {
	return func(s *Server) {
		s.authSvc = svc
		s.sessions = sessions
	}
}

func WithQueue(queue *jobs.Queue) Option {
	return func(s *Server) {
		s.queue = queue
	}
}

func NewServer(orch *service.Orchestrator, workspace config.WorkspaceConfig, opts ...Option) *Server {
	s := &Server{
		orch:           orch,
		dataDir:        workspace.DataDir,
		posesDir:       workspace.PosesDir,
		maxUploadBytes: workspace.MaxUploadBytes,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	// Public: accounts, generated file serving, static assets.
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/data/poses/", s.handleServePose)
	s.mux.HandleFunc("/data/", s.handleServeData)

	// Session-guarded pipeline and job endpoints.
	s.mux.HandleFunc("/upload", s.requireSession(s.handleUpload))
	s.mux.HandleFunc("/dock", s.requireSession(s.handleDock))
	s.mux.HandleFunc("/results", s.requireSession(s.handleResults))
	s.mux.HandleFunc("/api/fasta", s.requireSession(s.handleFASTA))
	s.mux.HandleFunc("/api/predict", s.requireSession(s.handlePredict))
	s.mux.HandleFunc("/api/batch/upload", s.requireSession(s.handleBatchUpload))
	s.mux.HandleFunc("/api/batch/dock", s.requireSession(s.handleBatchDock))
	s.mux.HandleFunc("/api/jobs", s.requireSession(s.handleJobs))
	s.mux.HandleFunc("/api/jobs/stream", s.requireSession(s.handleJobStream))
	s.mux.HandleFunc("/api/settings", s.requireSession(s.handleSettings))
	s.mux.HandleFunc("/api/maintenance", s.requireSession(s.handleMaintenance))

	s.mux.HandleFunc("/", s.handleStatic)
}

// requireSession rejects API calls without a valid session cookie. With no
// session manager configured the server runs open, which keeps tests and
// single-user deployments simple.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.sessions != nil {
			if _, ok := s.sessions.UserID(r); !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required. Please log in.")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "login" {
		http.ServeFile(w, r, filepath.Join(s.uiStaticDir, "login.html"))
		return
	}
	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
