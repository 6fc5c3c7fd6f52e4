package adminapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/routewarden/routewarden/internal/statsstore"
)

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status string `json:"status"`
}

// MemoryStats reports host memory usage.
type MemoryStats struct {
	TotalMB     float64 `json:"totalMb"`
	FreeMB      float64 `json:"freeMb"`
	UsedMB      float64 `json:"usedMb"`
	UsedPercent float64 `json:"usedPercent"`
}

// CPUStats reports host CPU usage.
type CPUStats struct {
	NumCPU      int     `json:"numCpu"`
	UsedPercent float64 `json:"usedPercent"`
	IdlePercent float64 `json:"idlePercent"`
}

// StatsResponse is the /stats body.
type StatsResponse struct {
	Uptime        string              `json:"uptime"`
	UptimeSeconds int64               `json:"uptimeSeconds"`
	StartTime     time.Time           `json:"startTime"`
	CPU           CPUStats            `json:"cpu"`
	Memory        MemoryStats         `json:"memory"`
	QueryCounters []statsstore.Counter `json:"queryCounters"`
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStats(c *gin.Context, stats StatsSource) {
	uptime := time.Since(s.startTime)

	memStats := MemoryStats{}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		memStats.TotalMB = float64(vmStat.Total) / 1024 / 1024
		memStats.FreeMB = float64(vmStat.Available) / 1024 / 1024
		memStats.UsedMB = float64(vmStat.Used) / 1024 / 1024
		memStats.UsedPercent = vmStat.UsedPercent
	}

	cpuStats := CPUStats{NumCPU: runtime.NumCPU()}
	if pct, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pct) > 0 {
		cpuStats.UsedPercent = pct[0]
		cpuStats.IdlePercent = 100.0 - pct[0]
	}

	resp := StatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     s.startTime,
		CPU:           cpuStats,
		Memory:        memStats,
	}

	if stats != nil {
		if counters, err := stats.Totals(); err == nil {
			resp.QueryCounters = counters
		} else {
			s.logger.Warn("adminapi: reading query counters failed", "error", err)
		}
	}

	c.JSON(http.StatusOK, resp)
}
