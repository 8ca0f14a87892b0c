package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ChatConnections 当前实例上的 WebSocket 连接数。
	ChatConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hirehub",
			Subsystem: "chat",
			Name:      "connections",
			Help:      "当前 WebSocket 连接数量。",
		},
	)

	// ChatEvents 按方向与类型统计的实时事件数。
	ChatEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hirehub",
			Subsystem: "chat",
			Name:      "events_total",
			Help:      "实时事件总数。",
		},
		[]string{"direction", "type"},
	)

	// ChatThrottled 因超频被丢弃的客户端帧数。
	ChatThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hirehub",
			Subsystem: "chat",
			Name:      "throttled_frames_total",
			Help:      "因超频被丢弃的客户端帧数量。",
		},
	)
)

// Handler 暴露 /metrics。
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
