package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/stonksbot/stonks/internal/database"
	"github.com/stonksbot/stonks/internal/modules/broker"
)

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	stateDB     *database.DB
	cacheDB     *database.DB
	broker      *broker.Service
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, dataDir string, stateDB, cacheDB *database.DB, brokerSvc *broker.Service) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		stateDB:     stateDB,
		cacheDB:     cacheDB,
		broker:      brokerSvc,
	}
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeHours   float64 `json:"uptime_hours"`
	Balance       float64 `json:"balance"`
	PositionCount int     `json:"position_count"`
	QueuedOrders  int     `json:"queued_orders"`
	HistoryDays   int     `json:"history_days"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	DiskFreeMB    float64 `json:"disk_free_mb,omitempty"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// HandleSystemStatus returns ledger and host status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	status := "healthy"
	for _, db := range []*database.DB{h.stateDB, h.cacheDB} {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Database health check failed")
			status = "unhealthy"
		}
	}

	cpuPercent, ramPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        status,
		UptimeHours:   time.Since(h.startupTime).Hours(),
		Balance:       h.broker.Balance(),
		PositionCount: len(h.broker.Positions()),
		QueuedOrders:  len(h.broker.Queue()),
		HistoryDays:   len(h.broker.HistoryRecords()),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
	}

	if usage, err := disk.Usage(h.dataDir); err == nil {
		response.DiskFreeMB = float64(usage.Free) / 1024 / 1024
	} else {
		h.log.Warn().Err(err).Msg("Failed to get disk usage")
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode system status")
	}
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	databases := []DBInfo{}
	totalSizeMB := 0.0

	for _, name := range []string{"state.db", "cache.db"} {
		path := filepath.Join(h.dataDir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		sizeMB := float64(info.Size()) / 1024 / 1024
		totalSizeMB += sizeMB
		databases = append(databases, DBInfo{Name: name, Path: path, SizeMB: sizeMB})
	}

	response := DatabaseStatsResponse{
		Databases:   databases,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode database stats")
	}
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a short sampling interval so the endpoint stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
