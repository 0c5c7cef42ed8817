package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/clips"
)

// memStore is an in-memory clips.Store with the same terminal-state guard the
// real backends enforce.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*clips.Job
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*clips.Job)}
}

func (s *memStore) CreateJob(_ context.Context, job *clips.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) GetJob(_ context.Context, id string) (*clips.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, clips.ErrJobNotFound
	}
	cp := *job
	cp.Clips = append([]clips.ClipResult(nil), job.Clips...)
	return &cp, nil
}

func (s *memStore) ListJobs(_ context.Context, limit int) ([]*clips.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*clips.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if len(out) == limit {
			break
		}
		cp := *job
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) MarkProcessing(_ context.Context, id string, totalClips int) error {
	return s.update(id, func(j *clips.Job) {
		j.Status = clips.StatusProcessing
		j.TotalClips = totalClips
	})
}

func (s *memStore) AppendClip(_ context.Context, id string, clip clips.ClipResult, currentClipIndex, progress int) error {
	return s.update(id, func(j *clips.Job) {
		j.Clips = append(j.Clips, clip)
		j.CurrentClipIndex = currentClipIndex
		j.Progress = progress
	})
}

func (s *memStore) MarkCompleted(_ context.Context, id string) error {
	return s.update(id, func(j *clips.Job) {
		j.Status = clips.StatusCompleted
		j.Progress = 100
	})
}

func (s *memStore) MarkError(_ context.Context, id string, detail string) error {
	return s.update(id, func(j *clips.Job) {
		j.Status = clips.StatusError
		j.Error = detail
	})
}

func (s *memStore) update(id string, fn func(*clips.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || clips.IsTerminal(job.Status) {
		return nil
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
	return nil
}

type stubProber struct{ duration float64 }

func (p stubProber) ProbeDuration(context.Context, string) (float64, error) {
	return p.duration, nil
}

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, req clips.RenderRequest) (clips.Rendered, error) {
	return clips.Rendered{
		OutputRef:    fmt.Sprintf("/clips/clip_%s_%d.mp4", req.JobID, req.Index),
		ThumbnailRef: fmt.Sprintf("/clips/thumb_%s_%d.jpg", req.JobID, req.Index),
	}, nil
}

type noopDebiter struct{}

func (noopDebiter) Debit(context.Context, string, int) error { return nil }

func newTestRouter(t *testing.T, store clips.Store, maxUpload int64) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	orchestrator := clips.NewOrchestrator(store, stubProber{duration: 600}, stubRenderer{}, clips.UniformStrategy{}, noopDebiter{}, clips.Policy{
		ClipCount:         10,
		ClipLengthDefault: 50,
		ClipLengthMin:     15,
		ClipLengthMax:     59,
		ClipCost:          10,
	}, logger)

	return NewRouter(ServerConfig{
		Port:           0,
		Store:          store,
		Orchestrator:   orchestrator,
		UploadDir:      t.TempDir(),
		ClipsDir:       t.TempDir(),
		MaxUploadBytes: maxUpload,
		Logger:         logger,
		StartTime:      time.Now(),
	})
}

// minimalMP4 is just enough of an ISO container for content sniffing to call
// it a video.
func minimalMP4() []byte {
	header := []byte{
		0x00, 0x00, 0x00, 0x18,
		'f', 't', 'y', 'p',
		'i', 's', 'o', 'm',
		0x00, 0x00, 0x02, 0x00,
		'i', 's', 'o', 'm',
		'm', 'p', '4', '1',
	}
	return append(header, bytes.Repeat([]byte{0}, 64)...)
}

func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := w.CreateFormFile("video", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		part.Write(content)
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func decodeError(t *testing.T, body io.Reader) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, newMemStore(), 1<<20)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	router := newTestRouter(t, newMemStore(), 1<<20)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/no-such-id", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if resp := decodeError(t, rec.Body); resp.Code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", resp.Code)
	}
}

func TestGetJob_ReturnsRecord(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	store.CreateJob(context.Background(), &clips.Job{
		ID:        "job-1",
		OwnerID:   "owner-1",
		Status:    clips.StatusProcessing,
		Progress:  40,
		Clips:     []clips.ClipResult{{ID: "job-1-0", OutputRef: "/clips/clip_job-1_0.mp4"}},
		CreatedAt: now,
		UpdatedAt: now,
	})
	router := newTestRouter(t, store, 1<<20)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp JobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != clips.StatusProcessing || resp.Progress != 40 {
		t.Errorf("got (%s, %d), want (processing, 40)", resp.Status, resp.Progress)
	}
	if len(resp.Clips) != 1 || resp.Clips[0].VideoURL != "/clips/clip_job-1_0.mp4" {
		t.Errorf("clips = %+v", resp.Clips)
	}
}

func TestSubmit_MissingFile(t *testing.T) {
	router := newTestRouter(t, newMemStore(), 1<<20)

	body, contentType := multipartBody(t, "", nil, map[string]string{"owner_id": "owner-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/clips", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec.Body); resp.Code != "UPLOAD_MISSING" {
		t.Errorf("code = %q, want UPLOAD_MISSING", resp.Code)
	}
}

func TestSubmit_MissingOwner(t *testing.T) {
	router := newTestRouter(t, newMemStore(), 1<<20)

	body, contentType := multipartBody(t, "talk.mp4", minimalMP4(), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/clips", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmit_FileTooLarge(t *testing.T) {
	// Ceiling below the payload size.
	router := newTestRouter(t, newMemStore(), 16)

	body, contentType := multipartBody(t, "talk.mp4", minimalMP4(), map[string]string{"owner_id": "owner-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/clips", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if resp := decodeError(t, rec.Body); resp.Code != "UPLOAD_TOO_LARGE" {
		t.Errorf("code = %q, want UPLOAD_TOO_LARGE", resp.Code)
	}
}

func TestSubmit_InvalidWindow(t *testing.T) {
	router := newTestRouter(t, newMemStore(), 1<<20)

	body, contentType := multipartBody(t, "talk.mp4", minimalMP4(), map[string]string{
		"owner_id":     "owner-1",
		"window_start": "100",
		"window_end":   "50",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/clips", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec.Body); resp.Code != "INVALID_RANGE" {
		t.Errorf("code = %q, want INVALID_RANGE", resp.Code)
	}
}

func TestSubmit_NonVideoRejected(t *testing.T) {
	router := newTestRouter(t, newMemStore(), 1<<20)

	body, contentType := multipartBody(t, "notes.txt", []byte("plain text, not a video"), map[string]string{"owner_id": "owner-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/clips", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec.Body); resp.Code != "UNSUPPORTED_MEDIA" {
		t.Errorf("code = %q, want UNSUPPORTED_MEDIA", resp.Code)
	}
}

func TestSubmit_AcceptedThenCompletes(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store, 1<<20)

	body, contentType := multipartBody(t, "talk.mp4", minimalMP4(), map[string]string{
		"owner_id":    "owner-1",
		"clip_length": "15",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/clips", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp SubmitResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("empty job_id in accepted response")
	}

	// The task runs in the background; poll like a client would.
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := store.GetJob(context.Background(), resp.JobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if clips.IsTerminal(job.Status) {
			if job.Status != clips.StatusCompleted {
				t.Fatalf("job ended %q: %s", job.Status, job.Error)
			}
			if len(job.Clips) != 10 {
				t.Errorf("clips = %d, want 10", len(job.Clips))
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job still %q after deadline", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestListJobs(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	for _, id := range []string{"job-1", "job-2"} {
		store.CreateJob(context.Background(), &clips.Job{ID: id, Status: clips.StatusAnalyzing, CreatedAt: now, UpdatedAt: now})
	}
	router := newTestRouter(t, store, 1<<20)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp JobsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Jobs) != 2 {
		t.Errorf("jobs = %d, want 2", len(resp.Jobs))
	}
}

func TestClipFileServing(t *testing.T) {
	clipsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(clipsDir, "clip_job-1_0.mp4"), []byte("rendered bytes"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(ServerConfig{
		Store:    newMemStore(),
		ClipsDir: clipsDir,
		Logger:   logger,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clips/clip_job-1_0.mp4", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "rendered bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
}
