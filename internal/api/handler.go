package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"SheetSend/internal/job"
	"SheetSend/internal/models"
	"SheetSend/internal/sheet"
)

const (
	maxUploadBytes = 32 << 20
	maxAttachments = 10
	previewRows    = 5
)

type Handler struct {
	Jobs       *job.Manager
	Runner     *job.Runner
	Log        *zap.Logger
	UploadsDir string
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/upload-and-preview", h.UploadAndPreview)
	r.Post("/initiate-sending-job", h.InitiateSendingJob)
	r.Get("/send-emails-stream", h.SendEmailsStream)
	r.Handle("/uploads/*", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(h.UploadsDir))))
}

// UploadAndPreview stores the uploaded workbook under a timestamped name and
// returns its headers, row count and the first few rows for the client's
// column-mapping step.
func (h *Handler) UploadAndPreview(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("xlsfile")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file uploaded. Please select an .xlsx file.")
		return
	}
	defer file.Close()

	originalName := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(originalName), ".xlsx") {
		respondError(w, http.StatusBadRequest, "Invalid file type, only .xlsx files are allowed.")
		return
	}

	storedName := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), originalName)
	storedPath := filepath.Join(h.UploadsDir, storedName)
	if err := saveUpload(file, storedPath); err != nil {
		h.Log.Error("failed to store upload", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to store uploaded file")
		return
	}

	sh, err := sheet.Load(storedPath)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to parse .xlsx file: "+err.Error())
		return
	}
	defer sh.Close()

	rows := sh.Rows()
	preview := rows
	if len(preview) > previewRows {
		preview = preview[:previewRows]
	}

	h.Log.Info("sheet uploaded",
		zap.String("stored_name", storedName),
		zap.Int("rows", len(rows)),
	)

	respondJSON(w, http.StatusOK, map[string]any{
		"message":         "File uploaded and parsed successfully",
		"fileName":        storedName,
		"filePath":        storedName,
		"originalXlsName": originalName,
		"headers":         sh.Headers(),
		"rowCount":        len(rows),
		"previewData":     preview,
	})
}

// InitiateSendingJob registers a pending job from the composed templates,
// the previously uploaded sheet and any attachment files. The sheet is not
// read here; that happens when the progress stream opens.
func (h *Handler) InitiateSendingJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	var headers []string
	if hs := r.FormValue("headers"); hs != "" {
		if err := json.Unmarshal([]byte(hs), &headers); err != nil {
			respondError(w, http.StatusBadRequest, "headers must be a JSON array of strings")
			return
		}
	}

	intervalSec := 0
	if v := r.FormValue("sendInterval"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			intervalSec = n
		}
	}

	attachments, err := h.saveAttachments(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// filepath.Base keeps the referenced sheet inside the uploads dir.
	storedName := ""
	sheetPath := ""
	if raw := r.FormValue("filePath"); raw != "" {
		storedName = filepath.Base(raw)
		sheetPath = filepath.Join(h.UploadsDir, storedName)
	}
	params := job.CreateParams{
		SheetPath:       sheetPath,
		StoredName:      storedName,
		OriginalName:    r.FormValue("originalXlsName"),
		SubjectTemplate: r.FormValue("subjectTemplate"),
		BodyTemplate:    r.FormValue("bodyTemplate"),
		Headers:         headers,
		SendInterval:    time.Duration(intervalSec) * time.Second,
		Attachments:     attachments,
	}

	jobID, err := h.Jobs.Create(params)
	if err != nil {
		removeFiles(attachments)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.Log.Info("job created",
		zap.String("job_id", jobID),
		zap.String("sheet", storedName),
		zap.Int("attachments", len(attachments)),
	)

	respondJSON(w, http.StatusOK, map[string]string{"jobId": jobID})
}

// SendEmailsStream claims the job and streams its event sequence as
// server-sent events. The runner gets a background context on purpose: a
// client that disconnects mid-run must not stop sending, sheet flushes or
// cleanup.
func (h *Handler) SendEmailsStream(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")

	j, err := h.Jobs.Claim(jobID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Invalid job ID or job already processed/processing")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	gone := false
	sink := job.SinkFunc(func(ev job.Event) {
		if gone {
			return
		}
		data, err := json.Marshal(ev.Data)
		if err != nil {
			h.Log.Error("failed to encode event",
				zap.String("job_id", j.ID),
				zap.String("event", string(ev.Name)),
				zap.Error(err),
			)
			return
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
			gone = true
			h.Log.Warn("client disconnected, job continues", zap.String("job_id", j.ID))
			return
		}
		flusher.Flush()
	})

	h.Runner.Run(context.Background(), j, sink)
}

func (h *Handler) saveAttachments(r *http.Request) ([]models.FileAttachment, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	files := r.MultipartForm.File["attachments"]
	if len(files) > maxAttachments {
		return nil, fmt.Errorf("too many attachments: %d (max %d)", len(files), maxAttachments)
	}

	var saved []models.FileAttachment
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			removeFiles(saved)
			return nil, fmt.Errorf("open attachment %s: %w", fh.Filename, err)
		}

		name := fmt.Sprintf("attachment-%d-%d%s",
			time.Now().UnixMilli(), rand.Intn(1_000_000_000), filepath.Ext(fh.Filename))
		path := filepath.Join(h.UploadsDir, name)
		err = saveUpload(src, path)
		src.Close()
		if err != nil {
			removeFiles(saved)
			return nil, fmt.Errorf("store attachment %s: %w", fh.Filename, err)
		}

		saved = append(saved, models.FileAttachment{
			Filename: filepath.Base(fh.Filename),
			Path:     path,
		})
	}
	return saved, nil
}

func saveUpload(src multipart.File, path string) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

func removeFiles(attachments []models.FileAttachment) {
	for _, att := range attachments {
		os.Remove(att.Path)
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"message": msg})
}
