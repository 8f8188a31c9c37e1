// Package handler exposes sales file uploads over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
	"github.com/FACorreiaa/sales-manager/internal/domain/import/repository"
	"github.com/FACorreiaa/sales-manager/internal/domain/import/service"
	"github.com/FACorreiaa/sales-manager/pkg/httpx"
	"github.com/FACorreiaa/sales-manager/pkg/middleware"
)

// RoleAdmin sees every import record
const RoleAdmin = "admin"

// ImportService is the part of the import service the handler needs
type ImportService interface {
	Submit(ctx context.Context, in service.SubmitInput) (*service.SubmitResult, error)
	ReplaceFile(ctx context.Context, id uuid.UUID, fileName string, content []byte) (*repository.ImportFile, error)
	Get(ctx context.Context, id uuid.UUID) (*repository.ImportFile, error)
	List(ctx context.Context, filter repository.Filter) ([]*repository.ImportFile, error)
}

var _ ImportService = (*service.ImportService)(nil)

// ImportHandler serves the upload routes
type ImportHandler struct {
	svc       ImportService
	maxUpload int64
	logger    *slog.Logger
}

// NewImportHandler creates a new import handler. maxUpload caps the request body in bytes.
func NewImportHandler(svc ImportService, maxUpload int64, logger *slog.Logger) *ImportHandler {
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &ImportHandler{svc: svc, maxUpload: maxUpload, logger: logger}
}

// Register mounts the routes on mux
func (h *ImportHandler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("POST /api/imports", wrap(http.HandlerFunc(h.Submit)))
	mux.Handle("GET /api/imports", wrap(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/imports/{id}", wrap(http.HandlerFunc(h.Get)))
	mux.Handle("PUT /api/imports/{id}/file", wrap(http.HandlerFunc(h.ReplaceFile)))
}

type importResponse struct {
	ID          uuid.UUID `json:"id"`
	Label       string    `json:"label"`
	CompanyID   uuid.UUID `json:"company_id"`
	CompanyName string    `json:"company_name"`
	Month       string    `json:"month"`
	MonthLabel  string    `json:"month_label"`
	FileName    string    `json:"file_name"`
	Status      string    `json:"status"`
	Revision    int       `json:"revision"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type submitResponse struct {
	Message string         `json:"message"`
	Import  importResponse `json:"import"`
}

func toResponse(f *repository.ImportFile) importResponse {
	return importResponse{
		ID:          f.ID,
		Label:       f.String(),
		CompanyID:   f.CompanyID,
		CompanyName: f.CompanyName,
		Month:       f.Month.Format("2006-01-02"),
		MonthLabel:  common.MonthYear(f.Month),
		FileName:    f.FileName,
		Status:      string(f.Status),
		Revision:    f.Revision,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Submit handles POST /api/imports (multipart: company, month, file)
func (h *ImportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httpx.WriteDomainError(w, h.logger, common.ErrUnauthenticated)
		return
	}

	if err := h.parseForm(w, r); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	in := service.SubmitInput{
		UserID:      &user.ID,
		UserEmail:   user.Email,
		CompanyName: r.FormValue("company"),
	}
	if raw := r.FormValue("month"); raw != "" {
		month, err := common.ParseMonth(raw)
		if err != nil {
			httpx.WriteDomainError(w, h.logger, common.ValidationErrors{{Field: "month", Message: "Informe uma data válida."}})
			return
		}
		in.Month = month
	}

	var err error
	in.FileName, in.Content, err = readFile(r)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	res, err := h.svc.Submit(r.Context(), in)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, submitResponse{Message: res.Message, Import: toResponse(res.Import)})
}

// ReplaceFile handles PUT /api/imports/{id}/file (multipart: file)
func (h *ImportHandler) ReplaceFile(w http.ResponseWriter, r *http.Request) {
	f, ok := h.owned(w, r)
	if !ok {
		return
	}

	if err := h.parseForm(w, r); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	name, content, err := readFile(r)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	if name == "" {
		httpx.WriteDomainError(w, h.logger, &common.ValidationError{Field: "file", Message: "Este campo é obrigatório."})
		return
	}

	updated, err := h.svc.ReplaceFile(r.Context(), f.ID, name, content)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(updated))
}

// Get handles GET /api/imports/{id}
func (h *ImportHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, ok := h.owned(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(f))
}

// List handles GET /api/imports. Users only see their own uploads.
func (h *ImportHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httpx.WriteDomainError(w, h.logger, common.ErrUnauthenticated)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	if user.Role != RoleAdmin {
		filter.UserID = &user.ID
	}

	files, err := h.svc.List(r.Context(), filter)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	resp := make([]importResponse, 0, len(files))
	for _, f := range files {
		resp = append(resp, toResponse(f))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// owned loads the record in the path and hides records of other users.
func (h *ImportHandler) owned(w http.ResponseWriter, r *http.Request) (*repository.ImportFile, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httpx.WriteDomainError(w, h.logger, common.ErrUnauthenticated)
		return nil, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, &common.ValidationError{Field: "id", Message: "invalid id"})
		return nil, false
	}

	f, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return nil, false
	}
	if user.Role != RoleAdmin && (f.UserID == nil || *f.UserID != user.ID) {
		httpx.WriteDomainError(w, h.logger, common.ErrNotFound)
		return nil, false
	}
	return f, true
}

func (h *ImportHandler) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &common.ValidationError{Field: "file", Message: "O arquivo enviado é grande demais."}
		}
		return &common.ValidationError{Message: "Formulário inválido."}
	}
	return nil
}

// readFile returns the uploaded file. A missing file is not an error here;
// the service reports it as a required field.
func readFile(r *http.Request) (string, []byte, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, &common.ValidationError{Field: "file", Message: "Arquivo inválido."}
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, content, nil
}

func parseFilter(r *http.Request) (repository.Filter, error) {
	var f repository.Filter
	q := r.URL.Query()

	if raw := q.Get("company_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, &common.ValidationError{Field: "company_id", Message: "invalid id"}
		}
		f.CompanyID = &id
	}
	if raw := q.Get("status"); raw != "" {
		status := repository.Status(raw)
		if !status.Valid() {
			return f, &common.ValidationError{Field: "status", Message: "invalid status"}
		}
		f.Status = &status
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, &common.ValidationError{Field: name, Message: "must be a non-negative integer"}
		}
		*dst = n
	}
	return f, nil
}
