package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/diag"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/kernel"
)

// Handlers serves the monitor's REST surface off the live kernel.
type Handlers struct {
	kernel *kernel.Kernel
	dumper *diag.Dumper
	log    *logging.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(k *kernel.Kernel, dumper *diag.Dumper, log *logging.Logger) *Handlers {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{kernel: k, dumper: dumper, log: log.Named("monitor")}
}

// Root identifies the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":        "kernel-monitor",
		"boot_id":        h.kernel.BootID(),
		"uptime_seconds": h.kernel.Uptime().Seconds(),
	})
}

// Health reports liveness plus headline statistics.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"boot_id":        h.kernel.BootID(),
		"uptime_seconds": h.kernel.Uptime().Seconds(),
		"stats":          h.kernel.Stats(),
	})
}

// Processes lists every context the process table knows.
func (h *Handlers) Processes(c *gin.Context) {
	procs := h.kernel.Processes()
	c.JSON(http.StatusOK, gin.H{
		"processes": procs,
		"count":     len(procs),
	})
}

// Process fetches one context by pid.
func (h *Handlers) Process(c *gin.Context) {
	pid, err := strconv.ParseUint(c.Param("pid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "pid must be an unsigned integer",
		})
		return
	}

	info, ok := h.kernel.Process(uint32(pid))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "no such process",
		})
		return
	}
	c.JSON(http.StatusOK, info)
}

// Memory reports the physical frame pool.
func (h *Handlers) Memory(c *gin.Context) {
	c.JSON(http.StatusOK, h.kernel.MemoryStats())
}

// Channels lists the named channels.
func (h *Handlers) Channels(c *gin.Context) {
	channels := h.kernel.Channels()
	c.JSON(http.StatusOK, gin.H{
		"channels": channels,
		"count":    len(channels),
	})
}

// Devices lists the registered devices.
func (h *Handlers) Devices(c *gin.Context) {
	devices := h.kernel.Devices()
	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}

// Snapshot returns the full live state capture.
func (h *Handlers) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.kernel.Snapshot())
}

// Dump writes a compressed snapshot to disk and returns its path.
func (h *Handlers) Dump(c *gin.Context) {
	path, err := h.dumper.Dump(h.kernel.Snapshot())
	if err != nil {
		h.log.Error("State dump failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"path":    path,
	})
}
