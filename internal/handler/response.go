package handler

import (
	"github.com/gin-gonic/gin"

	"static-deploy/internal/model"
	"static-deploy/pkg/utils"
)

func respondError(c *gin.Context, status int, apiErr *utils.APIError) {
	c.AbortWithStatusJSON(status, model.ErrorResponse{
		Success: false,
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	})
}
