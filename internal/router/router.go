package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"static-deploy/internal/handler"
	"static-deploy/internal/pkg/logger"
)

type Handlers struct {
	Deploy   *handler.DeployHandler
	SSH      *handler.SSHHandler
	Diagnose *handler.DiagnoseHandler
}

// New builds the engine with request logging, recovery and CORS for
// allowOrigins.
func New(allowOrigins []string, log *logger.Logger, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(log))
	r.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowOrigins = allowOrigins
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	config.MaxAge = 12 * time.Hour
	r.Use(cors.New(config))

	RegisterRoutes(r, h)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func RegisterRoutes(r *gin.Engine, h Handlers) {
	api := r.Group("/api")
	{
		deploy := api.Group("/deploy")
		{
			deploy.POST("", h.Deploy.Deploy)
			deploy.GET("/running", h.Deploy.Running)
			deploy.GET("/progress/:taskId", h.Deploy.Progress)
			deploy.GET("/stream/:taskId", h.Deploy.Stream)
		}

		ssh := api.Group("/ssh")
		{
			ssh.POST("/test", h.SSH.TestConnection)
			ssh.GET("/target", h.SSH.Target)
		}

		diagnose := api.Group("/diagnose")
		{
			diagnose.GET("/deployment", h.Diagnose.Deployment)
			diagnose.GET("/domain", h.Diagnose.Domain)
		}
	}
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
