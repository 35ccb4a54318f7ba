package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/internal/utils"
	"github.com/menta2k/uwuifier/pkg/cropper"
	"github.com/menta2k/uwuifier/pkg/pipeline"
)

const uploadField = "image"

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps a pipeline error to an HTTP status
func statusFor(err error) int {
	if errors.Is(err, cropper.ErrUnsupportedInput) {
		return http.StatusUnprocessableEntity
	}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) && stageErr.Stage == pipeline.StageStylize {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	maxBytes := s.config.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return nil, nil, false
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("missing %q file field", uploadField))
		return nil, nil, false
	}
	return file, header, true
}

func (s *Server) handleCrop(w http.ResponseWriter, r *http.Request) {
	file, _, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	img, err := s.processor.DecodeImage(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.driver.Cropper().CropImage(r.Context(), img)
	if err != nil {
		s.logger.Warn("crop failed", zap.Error(err))
		respondError(w, statusFor(err), err.Error())
		return
	}

	out, err := s.processor.EncodeImage(res.Image, "png")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode crop")
		return
	}

	reg := res.Region
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Crop-Region", fmt.Sprintf("%g,%g,%g,%g", reg.Left, reg.Top, reg.Right, reg.Bottom))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	d := s.driver
	if v := r.FormValue("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || seed < 0 || seed > pipeline.MaxSeed {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("seed must be an integer between 0 and %d", pipeline.MaxSeed))
			return
		}
		d = d.WithSeed(seed)
	}

	runDir := filepath.Join(s.config.RunsDir, uuid.NewString())
	input, err := saveUpload(file, header, runDir)
	if err != nil {
		s.logger.Error("failed to store upload", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	m, err := d.RunInto(r.Context(), input, runDir)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func saveUpload(src io.Reader, header *multipart.FileHeader, dir string) (string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}

	name := utils.SanitizeFilename(filepath.Base(header.Filename))
	if name == "" || !utils.IsImageFile(name) {
		name = "upload.png"
	}
	path := filepath.Join(dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return path, dst.Close()
}
