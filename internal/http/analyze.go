package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/gestaozabele/laudoia/internal/analysis"
)

const uploadField = "file"

// folga para cabeçalhos e boundaries do multipart
const multipartOverhead = 1 << 20

var errFileTooLarge = errors.New("arquivo excede o limite")

// Analyzer é o contrato consumido pelo handler.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, contentType string) (analysis.Report, error)
}

// AnalyzeImage recebe a imagem em multipart e devolve o laudo gerado.
func (h *Handler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", fmt.Sprintf("arquivo excede %d bytes", h.maxUpload), nil)
			return
		}
		WriteError(w, http.StatusUnprocessableEntity, "VALIDATION", "form inválido", nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	fileHeader, err := getFirstFile(r.MultipartForm, uploadField)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), map[string]string{"field": uploadField})
		return
	}

	data, contentType, err := readMultipartFile(fileHeader, h.maxUpload)
	if err != nil {
		if errors.Is(err, errFileTooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", err.Error(), nil)
			return
		}
		WriteError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
		return
	}

	report, err := h.relay.Analyze(r.Context(), data, contentType)
	if err != nil {
		event := log.Error().Err(err).Str("filename", fileHeader.Filename)
		if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
			event = event.Str("request_id", reqID)
		}
		event.Msg("análise de imagem falhou")

		switch {
		case errors.Is(err, analysis.ErrTempStorage):
			WriteError(w, http.StatusInternalServerError, "STORAGE", "não foi possível armazenar a imagem", nil)
		case errors.Is(err, analysis.ErrUpstream):
			WriteError(w, http.StatusInternalServerError, "UPSTREAM", "falha ao gerar laudo", nil)
		default:
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		}
		return
	}

	WriteRaw(w, http.StatusOK, report)
}

func getFirstFile(form *multipart.Form, field string) (*multipart.FileHeader, error) {
	if form == nil {
		return nil, errors.New("arquivo ausente")
	}
	files := form.File[field]
	if len(files) == 0 {
		return nil, errors.New("arquivo ausente")
	}
	return files[0], nil
}

func readMultipartFile(header *multipart.FileHeader, limit int64) ([]byte, string, error) {
	file, err := header.Open()
	if err != nil {
		return nil, "", fmt.Errorf("falha ao abrir arquivo: %w", err)
	}
	defer file.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(file, limit+1)); err != nil {
		return nil, "", fmt.Errorf("falha ao ler arquivo: %w", err)
	}

	if int64(buf.Len()) > limit {
		return nil, "", fmt.Errorf("%w de %d bytes", errFileTooLarge, limit)
	}

	return buf.Bytes(), strings.TrimSpace(header.Header.Get("Content-Type")), nil
}
