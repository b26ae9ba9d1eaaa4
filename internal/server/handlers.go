package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docidx/internal/docmgr"
	"github.com/fyrsmithlabs/docidx/internal/docstore"
	"github.com/fyrsmithlabs/docidx/internal/index"
	"github.com/fyrsmithlabs/docidx/internal/objstore"
	"github.com/fyrsmithlabs/docidx/internal/pipeline"
	"github.com/fyrsmithlabs/docidx/internal/registry"
	"github.com/fyrsmithlabs/docidx/internal/schema"
	"github.com/fyrsmithlabs/docidx/internal/scope"
)

// httpError maps domain errors onto HTTP status codes. Validation
// failures are 400, unknown or unauthorized resources are 404, backend
// outages are 502. Anything unrecognized is a 500.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, scope.ErrInvalidScope),
		errors.Is(err, scope.ErrInvalidCustomerID),
		errors.Is(err, scope.ErrMissingAccountID),
		errors.Is(err, scope.ErrMissingUserID),
		errors.Is(err, scope.ErrMissingSessionID),
		errors.Is(err, schema.ErrInvalidCustomer),
		errors.Is(err, schema.ErrInvalidConfig),
		errors.Is(err, schema.ErrInvalidField),
		errors.Is(err, schema.ErrInvalidFieldType),
		errors.Is(err, schema.ErrInvalidStrategy),
		errors.Is(err, pipeline.ErrInvalidRequest),
		errors.Is(err, pipeline.ErrUnsupportedFileType),
		errors.Is(err, pipeline.ErrEmptyDocument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())

	case errors.Is(err, registry.ErrCustomerExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())

	case errors.Is(err, docmgr.ErrNotFoundOrUnauthorized),
		errors.Is(err, docstore.ErrNotFound),
		errors.Is(err, registry.ErrConfigNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())

	case errors.Is(err, index.ErrExternalService),
		errors.Is(err, objstore.ErrExternalService):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// RegisterCustomerRequest is the body for POST /api/v1/customers.
type RegisterCustomerRequest struct {
	CustomerID  string              `json:"customer_id"`
	AdminID     string              `json:"admin_id"`
	IndexConfig *schema.IndexConfig `json:"index_config,omitempty"`
}

func (s *Server) handleRegisterCustomer(c echo.Context) error {
	var req RegisterCustomerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	customer, err := s.customers.Register(c.Request().Context(), req.CustomerID, req.AdminID, req.IndexConfig)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, customer)
}

func (s *Server) handleListCustomers(c echo.Context) error {
	ids, err := s.customers.ListIDs(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string][]string{"customer_ids": ids})
}

func (s *Server) handleGetCustomer(c echo.Context) error {
	customer, err := s.customers.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, customer)
}

// UpdateCustomerRequest is the body for PUT /api/v1/customers/:id.
type UpdateCustomerRequest struct {
	IndexConfig schema.IndexConfig `json:"index_config"`
}

func (s *Server) handleUpdateCustomer(c echo.Context) error {
	var req UpdateCustomerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	customerID := c.Param("id")
	customer, err := s.customers.UpdateConfig(c.Request().Context(), customerID, req.IndexConfig)
	if err != nil {
		return httpError(err)
	}
	// Drop the cached runtime so the next request picks up the change.
	s.manager.Invalidate(customerID)
	return c.JSON(http.StatusOK, customer)
}

func (s *Server) handleDeregisterCustomer(c echo.Context) error {
	customerID := c.Param("id")
	if err := s.customers.Deregister(c.Request().Context(), customerID); err != nil {
		return httpError(err)
	}
	s.manager.Invalidate(customerID)
	return c.NoContent(http.StatusNoContent)
}

// UploadResponse is the body for POST /api/v1/documents.
type UploadResponse struct {
	DocumentID      string   `json:"document_id"`
	StorageURL      string   `json:"storage_url"`
	ChunkIDs        []string `json:"chunk_ids"`
	FailedUnits     int      `json:"failed_units"`
	RegistryUpdated bool     `json:"registry_updated"`
}

// handleUploadDocument accepts a multipart form: the document under
// "file" plus customer_id, scope, the scope identifiers, and optional
// document_id, file_type, and metadata (a JSON object).
func (s *Server) handleUploadDocument(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}
	f, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file upload")
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file upload")
	}

	fileType := c.FormValue("file_type")
	if fileType == "" {
		fileType = strings.TrimPrefix(filepath.Ext(fileHeader.Filename), ".")
	}

	var metadata map[string]any
	if raw := c.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "metadata must be a JSON object")
		}
	}

	req := docmgr.UploadRequest{
		CustomerID: c.FormValue("customer_id"),
		DocumentID: c.FormValue("document_id"),
		FileName:   fileHeader.Filename,
		FileType:   fileType,
		Content:    content,
		Scope:      scope.Scope(strings.ToLower(c.FormValue("scope"))),
		Identifiers: scope.Identifiers{
			AccountID: c.FormValue("account_id"),
			UserID:    c.FormValue("user_id"),
			SessionID: c.FormValue("session_id"),
		},
		Metadata: metadata,
	}

	res, err := s.manager.Upload(c.Request().Context(), req)
	if err != nil {
		s.logger.Warn("upload failed",
			zap.String("customer_id", req.CustomerID),
			zap.String("file_name", req.FileName),
			zap.Error(err),
		)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, UploadResponse{
		DocumentID:      res.DocumentID,
		StorageURL:      res.StorageURL,
		ChunkIDs:        res.ChunkIDs,
		FailedUnits:     res.FailedUnits,
		RegistryUpdated: res.RegistryUpdated,
	})
}

// handleDeleteDocument removes a document. The tenant and requesting
// user arrive as query parameters.
func (s *Server) handleDeleteDocument(c echo.Context) error {
	req := docmgr.DeleteRequest{
		CustomerID: c.QueryParam("customer_id"),
		DocumentID: c.Param("id"),
		UserID:     c.QueryParam("user_id"),
	}
	if req.CustomerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "customer_id query parameter is required")
	}

	if err := s.manager.Delete(c.Request().Context(), req); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SearchRequest is the body for POST /api/v1/search.
type SearchRequest struct {
	CustomerID string `json:"customer_id"`
	Query      string `json:"query"`
	Scope      string `json:"scope"`
	AccountID  string `json:"account_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
}

// SearchHit is one ranked result.
type SearchHit struct {
	DocumentID string         `json:"document_id"`
	ChunkID    string         `json:"chunk_id"`
	Content    string         `json:"content"`
	Score      float32        `json:"score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchResponse is the body for POST /api/v1/search.
type SearchResponse struct {
	Results []SearchHit `json:"results"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	results, err := s.manager.Search(c.Request().Context(), docmgr.SearchRequest{
		CustomerID: req.CustomerID,
		Query:      req.Query,
		Scope:      scope.Scope(strings.ToLower(req.Scope)),
		Identifiers: scope.Identifiers{
			AccountID: req.AccountID,
			UserID:    req.UserID,
			SessionID: req.SessionID,
		},
		TopK: req.TopK,
	})
	if err != nil {
		return httpError(err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			DocumentID: r.DocumentID,
			ChunkID:    r.ChunkID,
			Content:    r.Content,
			Score:      r.Score,
			Metadata:   r.Metadata,
		})
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: hits})
}
