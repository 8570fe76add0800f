package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yuresilva1/inss-study-hub/internal/config"
	"github.com/yuresilva1/inss-study-hub/internal/response"
	"github.com/yuresilva1/inss-study-hub/internal/service"
)

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

// SystemHandler reports liveness and runtime status.
type SystemHandler struct {
	dbPing      PingFunc
	rdb         *redis.Client
	examService *service.ExamService
	startTime   time.Time
	log         zerolog.Logger
}

// NewSystemHandler creates a SystemHandler. rdb may be nil when Redis is off.
func NewSystemHandler(dbPing PingFunc, rdb *redis.Client, examService *service.ExamService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		dbPing:      dbPing,
		rdb:         rdb,
		examService: examService,
		startTime:   time.Now(),
		log:         log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
// 200 when storage (and Redis, if enabled) answer, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok"}
	healthy := true
	if err := h.dbPing(ctx); err != nil {
		h.log.Warn().Err(err).Msg("database ping failed")
		checks["database"] = "down"
		healthy = false
	}
	if h.rdb != nil {
		checks["redis"] = "ok"
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			h.log.Warn().Err(err).Msg("redis ping failed")
			checks["redis"] = "down"
			healthy = false
		}
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

type systemStatus struct {
	Uptime       string `json:"uptime"`
	GoVersion    string `json:"go_version"`
	Goroutines   int    `json:"goroutines"`
	HeapAlloc    uint64 `json:"heap_alloc"`
	LiveSessions int    `json:"live_sessions"`
	// Worker queue, only with Redis.
	QueueSlotWrites *int64 `json:"queue_slot_writes,omitempty"`
}

// Status godoc
// GET /api/v1/system/status
func (h *SystemHandler) Status(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := systemStatus{
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		Goroutines:   runtime.NumGoroutine(),
		HeapAlloc:    mem.HeapAlloc,
		LiveSessions: h.examService.LiveSessions(),
	}
	if h.rdb != nil {
		if n, err := h.rdb.LLen(c.Request.Context(), config.WorkerKey.PersistSlotWritesQueue).Result(); err == nil {
			st.QueueSlotWrites = &n
		}
	}

	response.Success(c, http.StatusOK, st)
}
