package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"static-deploy/internal/model"
	"static-deploy/internal/service"
	"static-deploy/pkg/utils"
)

type DiagnoseHandler struct {
	diagnoseService *service.DiagnoseService
}

func NewDiagnoseHandler(diagnoseService *service.DiagnoseService) *DiagnoseHandler {
	return &DiagnoseHandler{
		diagnoseService: diagnoseService,
	}
}

func (h *DiagnoseHandler) Deployment(c *gin.Context) {
	result, err := h.diagnoseService.Deployment(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, utils.NewSystemError(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *DiagnoseHandler) Domain(c *gin.Context) {
	var req model.DomainCheckRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, http.StatusBadRequest, utils.NewValidationError("domain", err.Error()))
		return
	}

	result, err := h.diagnoseService.Domain(c.Request.Context(), req.Domain)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(c, http.StatusServiceUnavailable, utils.NewSystemError(err))
	default:
		respondError(c, http.StatusBadRequest, utils.NewValidationError("domain", err.Error()))
	}
}
