package handler

import (
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"static-deploy/internal/model"
	"static-deploy/internal/pkg/logger"
	"static-deploy/internal/service"
	"static-deploy/pkg/utils"
)

const streamBuffer = 256

type DeployHandler struct {
	deployService *service.DeployService
	upgrader      websocket.Upgrader
	logger        *logger.Logger
}

// NewDeployHandler accepts websocket upgrades from the given origins and
// from clients that send no Origin header.
func NewDeployHandler(deployService *service.DeployService, allowOrigins []string, logger *logger.Logger) *DeployHandler {
	return &DeployHandler{
		deployService: deployService,
		logger:        logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowOrigins, origin) || slices.Contains(allowOrigins, "*")
			},
		},
	}
}

func (h *DeployHandler) Deploy(c *gin.Context) {
	var req model.DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, utils.NewValidationError("body", err.Error()))
		return
	}

	taskID, err := h.deployService.Start(&req)
	if errors.Is(err, service.ErrDeployRunning) {
		respondError(c, http.StatusConflict, utils.NewConflictError(taskID))
		return
	}

	c.JSON(http.StatusAccepted, model.DeployResponse{
		Success: true,
		TaskID:  taskID,
		Message: "Deployment started",
	})
}

func (h *DeployHandler) Progress(c *gin.Context) {
	taskID := c.Param("taskId")
	progress, ok := h.deployService.Progress(taskID)
	if !ok {
		respondError(c, http.StatusNotFound, utils.NewNotFoundError("task", taskID))
		return
	}
	c.JSON(http.StatusOK, progress)
}

// Running reports the deployment in progress, 404 when idle.
func (h *DeployHandler) Running(c *gin.Context) {
	taskID := h.deployService.Running()
	progress, ok := h.deployService.Progress(taskID)
	if taskID == "" || !ok {
		respondError(c, http.StatusNotFound, utils.NewNotFoundError("running deployment", ""))
		return
	}
	c.JSON(http.StatusOK, progress)
}

// Stream sends the task's log lines over a websocket, backlog first, then
// the final progress, and closes when the task ends.
func (h *DeployHandler) Stream(c *gin.Context) {
	taskID := c.Param("taskId")
	backlog, lines, cancel, ok := h.deployService.Subscribe(taskID, streamBuffer)
	if !ok {
		respondError(c, http.StatusNotFound, utils.NewNotFoundError("task", taskID))
		return
	}
	defer cancel()

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("task", taskID), zap.Error(err))
		return
	}
	defer ws.Close()

	// Reads only to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, line := range backlog {
		if err := ws.WriteJSON(line); err != nil {
			return
		}
	}

	for {
		select {
		case <-gone:
			return
		case line, open := <-lines:
			if !open {
				if progress, ok := h.deployService.Progress(taskID); ok {
					_ = ws.WriteJSON(progress)
				}
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
					time.Now().Add(time.Second))
				return
			}
			if err := ws.WriteJSON(line); err != nil {
				h.logger.Debug("websocket write failed", zap.String("task", taskID), zap.Error(err))
				return
			}
		}
	}
}
