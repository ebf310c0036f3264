package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Md-KamranQutub/chatify/internal/media"
	"github.com/Md-KamranQutub/chatify/internal/model"

	"github.com/gin-gonic/gin"
)

type UpdateService interface {
	Create(ctx context.Context, userID, content string, up *media.Upload) (*model.PopulatedUpdate, error)
	List(ctx context.Context) ([]model.PopulatedUpdate, error)
	View(ctx context.Context, updateID, viewerID string) (*model.Update, error)
	Delete(ctx context.Context, updateID, requesterID string) error
}

type UpdateHandler interface {
	CreateUpdate(c *gin.Context)
	GetUpdates(c *gin.Context)
	ViewUpdate(c *gin.Context)
	DeleteUpdate(c *gin.Context)
}

type updateHandler struct {
	service UpdateService
}

func NewUpdateHandler(service UpdateService) UpdateHandler {
	return &updateHandler{service: service}
}

func (h *updateHandler) CreateUpdate(c *gin.Context) {
	var up *media.Upload
	fh, err := c.FormFile("media")
	switch {
	case err == nil:
		up = media.FromFileHeader(fh)
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		failure(c, http.StatusBadRequest, "invalid media upload")
		return
	}

	u, err := h.service.Create(c.Request.Context(), CurrentUser(c), c.PostForm("content"), up)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, http.StatusCreated, "Update created successfully", u)
}

func (h *updateHandler) GetUpdates(c *gin.Context) {
	updates, err := h.service.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	success(c, http.StatusOK, "Updates retrieved successfully", updates)
}

func (h *updateHandler) ViewUpdate(c *gin.Context) {
	u, err := h.service.View(c.Request.Context(), c.Param("updateId"), CurrentUser(c))
	if err != nil {
		fail(c, err)
		return
	}

	success(c, http.StatusOK, "Update viewed", u)
}

func (h *updateHandler) DeleteUpdate(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("updateId"), CurrentUser(c)); err != nil {
		fail(c, err)
		return
	}

	success(c, http.StatusOK, "Update deleted successfully", nil)
}
