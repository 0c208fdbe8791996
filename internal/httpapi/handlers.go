package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arqgene/moldock/internal/config"
	"github.com/arqgene/moldock/internal/fetch"
	"github.com/arqgene/moldock/internal/service"
	"github.com/arqgene/moldock/internal/structure"
	"github.com/arqgene/moldock/pkg/file"
	"github.com/arqgene/moldock/pkg/icron"
)

const multipartMemoryLimit = 10 << 20

// handleUpload runs acquisition, conversion, and verification for one
// structure. The "type" field selects protein or ligand; the source is an
// uploaded file or an identifier. Extension and size are validated before
// any conversion binary runs.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	switch r.FormValue("type") {
	case "protein":
		s.uploadProtein(w, r)
	case "ligand":
		s.uploadLigand(w, r)
	default:
		writeError(w, http.StatusBadRequest, "type must be protein or ligand")
	}
}

func (s *Server) uploadProtein(w http.ResponseWriter, r *http.Request) {
	input := service.ProteinInput{
		UniProtID:   strings.TrimSpace(r.FormValue("uniprot_id")),
		ProteinName: strings.TrimSpace(r.FormValue("protein_name")),
	}

	if upload, header, err := r.FormFile("file"); err == nil {
		defer upload.Close()
		saved, err := s.saveUpload(upload, header)
		if err != nil {
			writeUploadError(w, err)
			return
		}
		input = service.ProteinInput{FilePath: saved}
	}

	result, err := s.orch.PrepareProtein(r.Context(), input)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) uploadLigand(w http.ResponseWriter, r *http.Request) {
	input := service.LigandInput{
		CompoundName: strings.TrimSpace(r.FormValue("compound_name")),
	}

	if upload, header, err := r.FormFile("file"); err == nil {
		defer upload.Close()
		saved, err := s.saveUpload(upload, header)
		if err != nil {
			writeUploadError(w, err)
			return
		}
		input = service.LigandInput{FilePath: saved}
	}

	result, err := s.orch.PrepareLigand(r.Context(), input)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

var errInvalidFormat = errors.New("invalid file format")

// saveUpload validates the extension and writes the upload into the data
// directory under a sanitized name.
func (s *Server) saveUpload(upload multipart.File, header *multipart.FileHeader) (string, error) {
	if _, ok := allowedExtensions[file.Ext(header.Filename)]; !ok {
		return "", errInvalidFormat
	}

	path := filepath.Join(s.dataDir, file.SafeName(header.Filename))
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, upload); err != nil {
		return "", err
	}
	return path, nil
}

type dockRequest struct {
	GridMode string  `json:"grid_mode"`
	CenterX  float64 `json:"center_x"`
	CenterY  float64 `json:"center_y"`
	CenterZ  float64 `json:"center_z"`
	SizeX    float64 `json:"size_x"`
	SizeY    float64 `json:"size_y"`
	SizeZ    float64 `json:"size_z"`
}

func (s *Server) handleDock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var box *structure.GridBox
	if r.Body != nil && r.ContentLength != 0 {
		var req dockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.GridMode == "manual" {
			box = &structure.GridBox{
				CenterX: req.CenterX,
				CenterY: req.CenterY,
				CenterZ: req.CenterZ,
				SizeX:   defaultSize(req.SizeX),
				SizeY:   defaultSize(req.SizeY),
				SizeZ:   defaultSize(req.SizeZ),
			}
		}
	}

	results, err := s.orch.Dock(r.Context(), box)
	if err != nil {
		if errors.Is(err, service.ErrNotPrepared) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("docking failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func defaultSize(v float64) float64 {
	if v <= 0 {
		return 25
	}
	return v
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	results, err := s.orch.Results()
	if err != nil {
		if errors.Is(err, service.ErrNoResults) {
			writeError(w, http.StatusNotFound, "no results available")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleServePose(w http.ResponseWriter, r *http.Request) {
	s.serveWorkspaceFile(w, r, s.posesDir, "/data/poses/")
}

func (s *Server) handleServeData(w http.ResponseWriter, r *http.Request) {
	s.serveWorkspaceFile(w, r, s.dataDir, "/data/")
}

// serveWorkspaceFile serves one generated file by base name. Nested paths
// and traversal sequences are rejected outright.
func (s *Server) serveWorkspaceFile(w http.ResponseWriter, r *http.Request, dir, prefix string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, prefix)
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	path := filepath.Join(dir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleFASTA(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	uniprotID := strings.TrimSpace(r.FormValue("uniprot_id"))
	proteinName := strings.TrimSpace(r.FormValue("protein_name"))
	if uniprotID == "" && proteinName == "" {
		writeError(w, http.StatusBadRequest, "protein ID or name required")
		return
	}

	result, err := s.orch.FetchFASTA(r.Context(), uniprotID, proteinName)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	fasta := strings.TrimSpace(r.FormValue("fasta"))
	uniprotID := strings.TrimSpace(r.FormValue("uniprot_id"))
	proteinName := strings.TrimSpace(r.FormValue("protein_name"))
	if fasta == "" && uniprotID == "" && proteinName == "" {
		writeError(w, http.StatusBadRequest, "sequence or protein ID required for prediction")
		return
	}

	result, err := s.orch.PredictStructure(r.Context(), fasta, uniprotID, proteinName)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	req := service.BatchPrepareRequest{
		ProteinIDs:   splitList(r.FormValue("protein_ids")),
		ProteinNames: splitList(r.FormValue("protein_names")),
		LigandNames:  splitList(r.FormValue("ligand_names")),
	}

	if r.MultipartForm != nil {
		var err error
		req.ProteinFiles, err = s.saveBatchUploads(r.MultipartForm.File["proteins"], "batch_prot_")
		if err != nil {
			writeUploadError(w, err)
			return
		}
		req.LigandFiles, err = s.saveBatchUploads(r.MultipartForm.File["ligands"], "batch_lig_")
		if err != nil {
			writeUploadError(w, err)
			return
		}
	}

	result, err := s.orch.PrepareBatch(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) saveBatchUploads(headers []*multipart.FileHeader, prefix string) ([]string, error) {
	paths := make([]string, 0, len(headers))
	for _, header := range headers {
		if _, ok := allowedExtensions[file.Ext(header.Filename)]; !ok {
			continue
		}
		upload, err := header.Open()
		if err != nil {
			return nil, err
		}

		path := filepath.Join(s.dataDir, prefix+file.SafeName(header.Filename))
		out, err := os.Create(path)
		if err != nil {
			upload.Close()
			return nil, err
		}
		_, err = io.Copy(out, upload)
		upload.Close()
		out.Close()
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

type batchDockRequest struct {
	Proteins []string `json:"proteins"`
	Ligands  []string `json:"ligands"`
}

func (s *Server) handleBatchDock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req batchDockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	enqueued, err := s.orch.BatchDock(req.Proteins, req.Ligands)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": enqueued})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.queue == nil {
		writeError(w, http.StatusNotImplemented, "job queue is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.queue.List())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleMaintenance reports where the cleanup sweep sits in its schedule.
func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	info, err := icron.GetTriggerInfo(settings.CleanupCronExpr, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cleanup_cron_expr": info.Expression,
		"retention_hours":   settings.RetentionHours,
		"last_sweep":        info.Last,
		"next_sweep":        info.Next,
	})
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return strings.Split(value, ",")
}

func isBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

// writePipelineError maps acquisition misses to 404 and everything else to
// an internal error, matching what the SPA expects.
func writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errInvalidFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fetch.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeUploadError(w http.ResponseWriter, err error) {
	if errors.Is(err, errInvalidFormat) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
