package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/clips"
	"github.com/clipforge/clipforge/internal/logging"
)

// multipartMemoryBytes bounds how much of the form is buffered in memory;
// the video part itself spills to disk.
const multipartMemoryBytes = 32 << 20

// submitHandler is the upload intake: it validates the payload synchronously,
// stages the source file under a job-scoped name, creates the job record, and
// returns the job id immediately. All later failures surface through polling,
// never through this response.
func submitHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// A little slack over the ceiling so the multipart framing itself
		// doesn't trip the limit before the size check does.
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes+multipartMemoryBytes)

		if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				WriteError(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("upload exceeds %d byte limit", cfg.MaxUploadBytes), "UPLOAD_TOO_LARGE")
				return
			}
			WriteError(w, http.StatusBadRequest, "expected multipart/form-data with a video file", "BAD_REQUEST")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("video")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "no video file attached", "UPLOAD_MISSING")
			return
		}
		defer file.Close()

		if header.Size > cfg.MaxUploadBytes {
			WriteError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d byte limit", cfg.MaxUploadBytes), "UPLOAD_TOO_LARGE")
			return
		}

		ownerID := r.FormValue("owner_id")
		if ownerID == "" {
			WriteError(w, http.StatusBadRequest, "owner_id is required", "BAD_REQUEST")
			return
		}

		params, err := parseParams(r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_RANGE")
			return
		}

		jobID := uuid.NewString()
		sourcePath := filepath.Join(cfg.UploadDir, "src_"+jobID+"_"+sanitizeFilename(header.Filename))

		if err := stageUpload(file, sourcePath); err != nil {
			cfg.Logger.Error("failed to stage upload", "error", err)
			WriteError(w, http.StatusInternalServerError, "could not store upload", "INTERNAL_ERROR")
			return
		}

		mtype, err := mimetype.DetectFile(sourcePath)
		if err != nil || !strings.HasPrefix(mtype.String(), "video/") {
			removeStaged(cfg, sourcePath)
			WriteError(w, http.StatusBadRequest, "uploaded file is not a video", "UNSUPPORTED_MEDIA")
			return
		}

		job, err := cfg.Orchestrator.Submit(r.Context(), jobID, ownerID, sourcePath, params)
		if err != nil {
			removeStaged(cfg, sourcePath)
			cfg.Logger.Error("failed to submit job", "error", err)
			WriteError(w, http.StatusInternalServerError, "could not create job", "INTERNAL_ERROR")
			return
		}

		cfg.Logger.Info("job submitted",
			"job_id", job.ID,
			"owner_id", ownerID,
			"filename", header.Filename,
			"bytes", header.Size,
		)
		WriteJSON(w, http.StatusAccepted, SubmitResponse{JobID: job.ID})
	}
}

// parseParams reads the optional window/length overrides and applies the
// validation that is checkable before the source is probed. Range errors
// involving the real duration surface later through the job's error state.
func parseParams(r *http.Request) (clips.Params, error) {
	var params clips.Params
	var err error

	if params.WindowStart, err = parseFloatField(r, "window_start"); err != nil {
		return params, err
	}
	if params.WindowEnd, err = parseFloatField(r, "window_end"); err != nil {
		return params, err
	}
	if params.ClipLength, err = parseFloatField(r, "clip_length"); err != nil {
		return params, err
	}

	if params.WindowStart < 0 {
		return params, fmt.Errorf("window_start must not be negative")
	}
	if params.WindowEnd != 0 && params.WindowEnd <= params.WindowStart {
		return params, fmt.Errorf("window_end must be after window_start")
	}
	return params, nil
}

func parseFloatField(r *http.Request, name string) (float64, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number of seconds", name)
	}
	return v, nil
}

func stageUpload(src io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dst)
		return err
	}
	return out.Sync()
}

func removeStaged(cfg ServerConfig, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		cfg.Logger.Warn("failed to remove staged upload", "path", logging.SanitizePath(path), "error", err)
	}
}

// sanitizeFilename keeps the original name recognisable in the staging dir
// while stripping anything path-like.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, " ", "_")
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload"
	}
	return name
}
