package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arqgene/moldock/internal/auth"
	"github.com/arqgene/moldock/internal/config"
	"github.com/arqgene/moldock/internal/docking"
	"github.com/arqgene/moldock/internal/fetch"
	"github.com/arqgene/moldock/internal/jobs"
	"github.com/arqgene/moldock/internal/persistence"
	"github.com/arqgene/moldock/internal/service"
	"github.com/arqgene/moldock/internal/structure"
)

func atomLine(serial int, resName, chain string, x, y, z, charge float64, atomType string) string {
	return fmt.Sprintf("ATOM  %5d %-4s %3s %1s%4d    %8.3f%8.3f%8.3f%6.2f%6.2f    %6.3f %-2s",
		serial, "CA", resName, chain, serial, x, y, z, 1.00, 0.00, charge, atomType)
}

func validPDBQT() string {
	lines := []string{"ROOT"}
	for i := 1; i <= 6; i++ {
		lines = append(lines, atomLine(i, "LIG", "A", float64(i), float64(i*2), float64(i*3), -0.12, "C"))
	}
	lines = append(lines, "ENDROOT", "TORSDOF 0")
	return strings.Join(lines, "\n") + "\n"
}

func rawProteinPDB() string {
	lines := make([]string, 0, 4)
	for i := 1; i <= 3; i++ {
		lines = append(lines, atomLine(i, "ALA", "A", float64(i), 0, 0, 0, "N"))
	}
	lines = append(lines, "END")
	return strings.Join(lines, "\n") + "\n"
}

type stubConverter struct {
	mu    sync.Mutex
	calls int
}

func (f *stubConverter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *stubConverter) bump() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *stubConverter) ConvertToPDBQT(_ context.Context, _, output string, _ structure.Kind) error {
	f.bump()
	return os.WriteFile(output, []byte(validPDBQT()), 0o644)
}

func (f *stubConverter) AddHydrogens(_ context.Context, input, output string, _ float64) error {
	f.bump()
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0o644)
}

func (f *stubConverter) GenerateSDF(_ context.Context, _, output string) error {
	f.bump()
	return os.WriteFile(output, []byte("fake sdf\n"), 0o644)
}

func (f *stubConverter) ConvertToPDB(_ context.Context, _, output string) error {
	f.bump()
	return os.WriteFile(output, []byte("fake complex pdb\n"), 0o644)
}

type stubEngine struct{}

func (stubEngine) Run(_ context.Context, params docking.Params) ([]float64, error) {
	affinities := []float64{-8.2, -7.5, -7.1}
	var b strings.Builder
	for i := range affinities {
		fmt.Fprintf(&b, "MODEL %d\n%s\nENDMDL\n", i+1, atomLine(1, "LIG", "A", 1, 2, 3, -0.1, "C"))
	}
	if err := os.WriteFile(params.Output, []byte(b.String()), 0o644); err != nil {
		return nil, err
	}
	return affinities, nil
}

type stubAlphaFold struct{}

func (stubAlphaFold) FetchStructure(_ context.Context, _, outputPath string) error {
	return os.WriteFile(outputPath, []byte(rawProteinPDB()), 0o644)
}

type stubUniProt struct{}

func (stubUniProt) FetchFASTA(_ context.Context, accession string) (string, error) {
	return ">sp|" + accession + "|TEST\nMKVLAAGITALMLSAGLMA\n", nil
}

func (stubUniProt) SearchByName(_ context.Context, _ string) (string, string, error) {
	return "P12345", "Test protein", nil
}

type stubESMFold struct{}

func (stubESMFold) Predict(_ context.Context, _, outputPath string) error {
	return os.WriteFile(outputPath, []byte(rawProteinPDB()), 0o644)
}

type stubPubChem struct{}

func (stubPubChem) FetchCompound(_ context.Context, name string) (*fetch.Compound, error) {
	return &fetch.Compound{Name: name, SMILES: "CC(=O)OC1=CC=CC=C1C(=O)O", CID: "2244"}, nil
}

type serverHarness struct {
	srv       *Server
	converter *stubConverter
	workspace config.WorkspaceConfig
}

func newServerHarness(t *testing.T, maxUploadBytes int64, opts ...Option) *serverHarness {
	return newServerHarnessWithQueue(t, maxUploadBytes, nil, opts...)
}

func newServerHarnessWithQueue(t *testing.T, maxUploadBytes int64, queue *jobs.Queue, opts ...Option) *serverHarness {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Config{}
	cfg.Workspace.DataDir = filepath.Join(dir, "data")
	cfg.Workspace.PosesDir = filepath.Join(dir, "data", "poses")
	cfg.Workspace.MaxUploadBytes = maxUploadBytes
	cfg.Workspace.CleanupCronExpr = "0 3 * * *"
	cfg.Workspace.RetentionHours = 72
	cfg.Docking.NumModes = 9
	cfg.Docking.Exhaustiveness = 8
	cfg.Docking.BatchExhaustiveness = 1
	cfg.Docking.BatchWorkers = 2
	cfg.Docking.BoxPadding = 8.0

	converter := &stubConverter{}
	var orchOpts []service.Option
	if queue != nil {
		orchOpts = append(orchOpts, service.WithQueue(queue))
		opts = append(opts, WithQueue(queue))
	}
	orch, err := service.NewOrchestrator(cfg, converter, stubEngine{}, stubAlphaFold{}, stubUniProt{}, stubESMFold{}, stubPubChem{}, orchOpts...)
	require.NoError(t, err)

	return &serverHarness{
		srv:       NewServer(orch, cfg.Workspace, opts...),
		converter: converter,
		workspace: cfg.Workspace,
	}
}

func multipartUpload(t *testing.T, fields map[string]string, fileField, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func (h *serverHarness) do(t *testing.T, method, target, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_UploadProteinFile(t *testing.T) {
	h := newServerHarness(t, 1<<20)

	body, contentType := multipartUpload(t, map[string]string{"type": "protein"}, "file", "receptor.pdb", []byte(rawProteinPDB()))
	rec := h.do(t, http.MethodPost, "/upload", contentType, body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result service.PrepareResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Verification)
	assert.True(t, result.Verification.Valid)
	assert.FileExists(t, filepath.Join(h.workspace.DataDir, "protein.pdbqt"))
}

func TestServer_UploadLigandByCompoundName(t *testing.T) {
	h := newServerHarness(t, 1<<20)

	body, contentType := multipartUpload(t, map[string]string{"type": "ligand", "compound_name": "aspirin"}, "", "", nil)
	rec := h.do(t, http.MethodPost, "/upload", contentType, body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result service.PrepareResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "2244", result.CID)
	assert.NotEmpty(t, result.SMILES)
}

func TestServer_UploadRejectsOversizedBodyBeforeConversion(t *testing.T) {
	h := newServerHarness(t, 512)

	big := bytes.Repeat([]byte("ATOM\n"), 1024)
	body, contentType := multipartUpload(t, map[string]string{"type": "protein"}, "file", "receptor.pdb", big)
	rec := h.do(t, http.MethodPost, "/upload", contentType, body)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, h.converter.count(), "oversized uploads must never reach a conversion binary")
}

func TestServer_UploadRejectsUnknownExtension(t *testing.T) {
	h := newServerHarness(t, 1<<20)

	body, contentType := multipartUpload(t, map[string]string{"type": "protein"}, "file", "receptor.exe", []byte("MZ"))
	rec := h.do(t, http.MethodPost, "/upload", contentType, body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, h.converter.count())
}

func TestServer_UploadRequiresKnownType(t *testing.T) {
	h := newServerHarness(t, 1<<20)

	body, contentType := multipartUpload(t, map[string]string{"type": "solvent"}, "", "", nil)
	rec := h.do(t, http.MethodPost, "/upload", contentType, body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func (h *serverHarness) prepareBoth(t *testing.T) {
	t.Helper()

	body, contentType := multipartUpload(t, map[string]string{"type": "protein"}, "file", "receptor.pdb", []byte(rawProteinPDB()))
	rec := h.do(t, http.MethodPost, "/upload", contentType, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body, contentType = multipartUpload(t, map[string]string{"type": "ligand"}, "file", "ligand.pdbqt", []byte(validPDBQT()))
	rec = h.do(t, http.MethodPost, "/upload", contentType, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestServer_DockThenResultsAndPoseDownload(t *testing.T) {
	h := newServerHarness(t, 1<<20)
	h.prepareBoth(t)

	rec := h.do(t, http.MethodPost, "/dock", "application/json", bytes.NewBuffer([]byte(`{"grid_mode":"blind"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var dockResp struct {
		Results []service.PoseResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dockResp))
	require.Len(t, dockResp.Results, 3)
	assert.Equal(t, "data/poses/complex_1.pdb", dockResp.Results[0].Path)

	rec = h.do(t, http.MethodGet, "/results", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/data/poses/complex_1.pdb", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fake complex pdb")
}

func TestServer_DockWithoutPreparation(t *testing.T) {
	h := newServerHarness(t, 1<<20)

	rec := h.do(t, http.MethodPost, "/dock", "application/json", bytes.NewBuffer([]byte(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ResultsBeforeAnyRun(t *testing.T) {
	h := newServerHarness(t, 1<<20)

	rec := h.do(t, http.MethodGet, "/results", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_PoseServingRejectsTraversal(t *testing.T) {
	h := newServerHarness(t, 1<<20)
	secret := filepath.Join(h.workspace.DataDir, "protein.pdbqt")
	require.NoError(t, os.WriteFile(secret, []byte(validPDBQT()), 0o644))

	rec := h.do(t, http.MethodGet, "/data/poses/..%2Fprotein.pdbqt", "", nil)
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/data/poses/missing.pdb", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_FetchFASTAByName(t *testing.T) {
	h := newServerHarness(t, 1<<20)

	form := bytes.NewBufferString("protein_name=EGFR")
	rec := h.do(t, http.MethodPost, "/api/fasta", "application/x-www-form-urlencoded", form)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result service.FASTAResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "P12345", result.UniProtID)
	assert.Contains(t, result.FASTA, "MKVLA")
}

func TestServer_FetchFASTARequiresIdentifier(t *testing.T) {
	h := newServerHarness(t, 1<<20)

	rec := h.do(t, http.MethodPost, "/api/fasta", "application/x-www-form-urlencoded", bytes.NewBufferString(""))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_BatchDockRequiresInputs(t *testing.T) {
	h := newServerHarnessWithQueue(t, 1<<20, jobs.NewQueue(1, nil))

	rec := h.do(t, http.MethodPost, "/api/batch/dock", "application/json", bytes.NewBuffer([]byte(`{"proteins":[],"ligands":[]}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_JobsList(t *testing.T) {
	queue := jobs.NewQueue(1, nil)
	queue.Enqueue(jobs.EnqueueRequest{
		Source:    "batch",
		DedupeKey: "a|b",
		Payload:   jobs.JobPayload{ReceptorFile: "a.pdbqt", LigandFile: "b.pdbqt"},
	})
	h := newServerHarnessWithQueue(t, 1<<20, queue)

	rec := h.do(t, http.MethodGet, "/api/jobs", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []*jobs.DockingJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "a|b", listed[0].DedupeKey)
}

type fakeSettingsStore struct {
	current config.RuntimeSettings
}

func (f *fakeSettingsStore) GetRuntimeSettings() (config.RuntimeSettings, error) {
	return f.current, nil
}

func (f *fakeSettingsStore) UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error) {
	f.current = next
	return f.current, nil
}

func TestServer_GetAndUpdateSettings(t *testing.T) {
	store := &fakeSettingsStore{
		current: config.RuntimeSettings{
			NumModes:        9,
			Exhaustiveness:  8,
			CleanupCronExpr: "0 3 * * *",
			RetentionHours:  72,
		},
	}
	h := newServerHarness(t, 1<<20, WithRuntimeSettingsStore(store))

	rec := h.do(t, http.MethodGet, "/api/settings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.RuntimeSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, store.current, got)

	body := []byte(`{"num_modes":5,"exhaustiveness":16,"cleanup_cron_expr":"0 4 * * *","retention_hours":24}`)
	rec = h.do(t, http.MethodPut, "/api/settings", "application/json", bytes.NewBuffer(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, store.current.NumModes)
	assert.Equal(t, 16, store.current.Exhaustiveness)
}

func TestServer_UpdateSettingsRejectsInvalid(t *testing.T) {
	store := &fakeSettingsStore{
		current: config.RuntimeSettings{NumModes: 9, Exhaustiveness: 8, CleanupCronExpr: "0 3 * * *", RetentionHours: 72},
	}
	h := newServerHarness(t, 1<<20, WithRuntimeSettingsStore(store))

	body := []byte(`{"num_modes":42,"exhaustiveness":8,"cleanup_cron_expr":"0 3 * * *","retention_hours":72}`)
	rec := h.do(t, http.MethodPut, "/api/settings", "application/json", bytes.NewBuffer(body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 9, store.current.NumModes)
}

func TestServer_MaintenanceReportsSchedule(t *testing.T) {
	store := &fakeSettingsStore{
		current: config.RuntimeSettings{NumModes: 9, Exhaustiveness: 8, CleanupCronExpr: "0 3 * * *", RetentionHours: 72},
	}
	h := newServerHarness(t, 1<<20, WithRuntimeSettingsStore(store))

	rec := h.do(t, http.MethodGet, "/api/maintenance", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		CleanupCronExpr string `json:"cleanup_cron_expr"`
		RetentionHours  int    `json:"retention_hours"`
		NextSweep       string `json:"next_sweep"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0 3 * * *", resp.CleanupCronExpr)
	assert.Equal(t, 72, resp.RetentionHours)
	assert.NotEmpty(t, resp.NextSweep)
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*persistence.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*persistence.User)}
}

func (f *fakeUserStore) CreateUser(_ context.Context, user *persistence.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.Email] = user
	return nil
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*persistence.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[email]
	if !ok {
		return nil, persistence.ErrUserNotFound
	}
	return user, nil
}

func authHarness(t *testing.T) *serverHarness {
	t.Helper()
	svc := auth.NewService(newFakeUserStore())
	sessions := auth.NewSessionManager("test-secret")
	return newServerHarness(t, 1<<20, WithAuth(svc, sessions))
}

func TestServer_APIRequiresSession(t *testing.T) {
	h := authHarness(t)

	rec := h.do(t, http.MethodGet, "/results", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_SignupIssuesSession(t *testing.T) {
	h := authHarness(t)

	body := []byte(`{"email":"Researcher@Example.org","password":"hunter22","name":"R","institution":"Lab"}`)
	rec := h.do(t, http.MethodPost, "/api/auth/signup", "application/json", bytes.NewBuffer(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/results", nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	authed := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(authed, req)
	// Authenticated but no docking run yet: 404, not 401.
	require.Equal(t, http.StatusNotFound, authed.Code)
}

func TestServer_LoginRejectsBadCredentials(t *testing.T) {
	h := authHarness(t)

	body := []byte(`{"email":"researcher@example.org","password":"secret123","name":"R"}`)
	rec := h.do(t, http.MethodPost, "/api/auth/signup", "application/json", bytes.NewBuffer(body))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/auth/login", "application/json", bytes.NewBuffer([]byte(`{"email":"researcher@example.org","password":"wrong"}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/auth/login", "application/json", bytes.NewBuffer([]byte(`{"email":"researcher@example.org","password":"secret123"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_SignupRejectsDuplicateEmail(t *testing.T) {
	h := authHarness(t)

	body := []byte(`{"email":"dup@example.org","password":"secret123"}`)
	rec := h.do(t, http.MethodPost, "/api/auth/signup", "application/json", bytes.NewBuffer(body))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/auth/signup", "application/json", bytes.NewBuffer(body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")
}

func TestServer_ServesSPAFromStaticDir(t *testing.T) {
	tmp := t.TempDir()
	staticDir := filepath.Join(tmp, "web")
	require.NoError(t, os.MkdirAll(staticDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>viewer</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "login.html"), []byte("<html>login</html>"), 0o644))

	h := newServerHarness(t, 1<<20, WithUI(staticDir, true))

	for _, url := range []string{"/", "/batch"} {
		rec := h.do(t, http.MethodGet, url, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "viewer")
	}

	rec := h.do(t, http.MethodGet, "/login", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "login")
}
