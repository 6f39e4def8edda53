package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/middleware"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/service"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

// EntityHandler serves the uniform CRUD surface for every registered entity.
// The entity name is a path segment; everything else is driven by metadata.
type EntityHandler struct {
	service *service.EntityService
}

// NewEntityHandler creates a new handler.
func NewEntityHandler(svc *service.EntityService) *EntityHandler {
	return &EntityHandler{service: svc}
}

// List godoc
// @Summary List entity records
// @Description List records of an entity with search, filters, sorting, paging and includes
// @Tags Entities
// @Produce json
// @Param entity path string true "Entity name"
// @Param search query string false "Search term"
// @Param sort query string false "Sort field"
// @Param order query string false "Sort order (ASC or DESC)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param include query string false "Comma-separated relationship names"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /entities/{entity} [get]
func (h *EntityHandler) List(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	params, err := dto.ParseListQuery(c.Request.URL.Query())
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.service.List(c.Request.Context(), actor, c.Param("entity"), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, result.FromCache)
	response.JSON(c, http.StatusOK, result.Records, &result.Pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get entity record
// @Description Fetch a single record by primary key
// @Tags Entities
// @Produce json
// @Param entity path string true "Entity name"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /entities/{entity}/{id} [get]
func (h *EntityHandler) Get(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	record, err := h.service.Get(c.Request.Context(), actor, c.Param("entity"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, record, nil)
}

// Create godoc
// @Summary Create entity record
// @Description Insert a record from writable fields
// @Tags Entities
// @Accept json
// @Produce json
// @Param entity path string true "Entity name"
// @Param payload body object true "Record fields"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /entities/{entity} [post]
func (h *EntityHandler) Create(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload models.Record
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid record payload"))
		return
	}

	record, err := h.service.Create(c.Request.Context(), actor, c.Param("entity"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, record)
}

// Update godoc
// @Summary Update entity record
// @Description Update writable fields of a record
// @Tags Entities
// @Accept json
// @Produce json
// @Param entity path string true "Entity name"
// @Param id path string true "Record ID"
// @Param payload body object true "Record fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /entities/{entity}/{id} [put]
func (h *EntityHandler) Update(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload models.Record
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid record payload"))
		return
	}

	record, err := h.service.Update(c.Request.Context(), actor, c.Param("entity"), c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete entity record
// @Description Delete a record by primary key
// @Tags Entities
// @Produce json
// @Param entity path string true "Entity name"
// @Param id path string true "Record ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /entities/{entity}/{id} [delete]
func (h *EntityHandler) Delete(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), actor, c.Param("entity"), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
