package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"static-deploy/internal/service"
)

type SSHHandler struct {
	sshService *service.SSHService
}

func NewSSHHandler(sshService *service.SSHService) *SSHHandler {
	return &SSHHandler{
		sshService: sshService,
	}
}

func (h *SSHHandler) TestConnection(c *gin.Context) {
	result := h.sshService.TestConnection(c.Request.Context())
	c.JSON(http.StatusOK, result)
}

func (h *SSHHandler) Target(c *gin.Context) {
	c.JSON(http.StatusOK, h.sshService.Target())
}
