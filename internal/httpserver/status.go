package httpserver

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoadStatus registers the status monitoring route: per-RPC call counts
// for the chat collector plus overall engine uptime.
func (e *allRoutes) LoadStatus(r *Route) {
	statusLog := e.log.Named("Status")
	defer statusLog.Info("Loaded status route")
	r.Engine.GET("/status", getStatusRoute(e, statusLog))
}

type RPCStatus struct {
	RPC               string  `json:"rpc"`
	ActiveCalls       int32   `json:"active_calls"`
	TotalCalls        int64   `json:"total_calls"`
	FailedCalls       int64   `json:"failed_calls"`
	AverageResponseMs float64 `json:"average_response_ms"`
}

type StatusResponse struct {
	Uptime    string      `json:"uptime"`
	RPCs      []RPCStatus `json:"rpcs"`
	Timestamp time.Time   `json:"timestamp"`
}

func getStatusRoute(e *allRoutes, logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if e.chatMetrics == nil {
			ctx.JSON(http.StatusOK, gin.H{
				"message": "chat provider is disabled",
				"uptime":  humanize.Time(e.startTime),
			})
			return
		}

		_, snapshot := e.chatMetrics.Snapshot()
		rpcs := make([]RPCStatus, len(snapshot))
		for i, s := range snapshot {
			rpcs[i] = RPCStatus{
				RPC:               s.RPC,
				ActiveCalls:       s.ActiveCalls,
				TotalCalls:        s.TotalCalls,
				FailedCalls:       s.FailedCalls,
				AverageResponseMs: s.AverageResponseMs,
			}
		}

		ctx.JSON(http.StatusOK, StatusResponse{
			Uptime:    humanize.RelTime(e.startTime, time.Now(), "", ""),
			RPCs:      rpcs,
			Timestamp: time.Now(),
		})
	}
}
