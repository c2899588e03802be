package server

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/notifly-go/pkg/config"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

var availableEndpoints = []string{
	"GET /",
	"GET /health",
	"GET /graphql",
	"POST /graphql",
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":     "notifly GraphQL API",
		"status":      "running",
		"environment": s.config.Environment,
		"timestamp":   timestamp(),
		"version":     config.Version,
		"endpoints": gin.H{
			"graphql": "/graphql",
			"health":  "/health",
		},
	})
}

func (s *Server) health(c *gin.Context) {
	info := s.Info()
	body := gin.H{
		"status":         "healthy",
		"timestamp":      timestamp(),
		"memory":         memoryUsage(),
		"port":           info.Port,
		"pid":            info.PID,
		"environment":    info.Environment,
		"uptime":         info.Uptime,
		"isListening":    info.IsListening,
		"isShuttingDown": info.IsShuttingDown,
		"state":          info.State,
	}
	if s.options.Database != nil {
		if status := s.options.Database.Status(); !status.CheckedAt.IsZero() {
			body["database"] = status
		}
	}
	c.JSON(http.StatusOK, body)
}

// memoryUsage reports process RSS next to Go heap figures. Sources that
// cannot be read are left out.
func memoryUsage() gin.H {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	usage := gin.H{
		"heapUsed":  ms.HeapAlloc,
		"heapTotal": ms.HeapSys,
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil {
			usage["rss"] = mi.RSS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		usage["systemUsedPercent"] = vm.UsedPercent
	}
	return usage
}

func (s *Server) notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":              "Not Found",
		"message":            fmt.Sprintf("Route %s %s not found", c.Request.Method, c.Request.URL.Path),
		"path":               c.Request.URL.Path,
		"method":             c.Request.Method,
		"timestamp":          timestamp(),
		"availableEndpoints": availableEndpoints,
	})
}
