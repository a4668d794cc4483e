package server

import (
	"time"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/server/logs"
	"github.com/Trinoooo/eggie_reactor/utils"
	"github.com/bytedance/gopkg/util/gopool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

type MetricsHelper struct {
	ConnectionAcceptCounter prometheus.Counter
	ConnectionRejectCounter prometheus.Counter // 超过 maxclients 被拒绝
	ConnectedClients        prometheus.Gauge
	Keys                    prometheus.Gauge
	CommandsProcessed       *prometheus.CounterVec
	AOFPendingBytes         prometheus.Gauge
}

func NewMetricsHelper(registry *prometheus.Registry) *MetricsHelper {
	mh := &MetricsHelper{
		ConnectionAcceptCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eggie_reactor_connection_accept_counter",
		}),
		ConnectionRejectCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eggie_reactor_connection_reject_counter",
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eggie_reactor_connected_clients",
		}),
		Keys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eggie_reactor_keys",
		}),
		CommandsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eggie_reactor_commands_processed_total",
		}, []string{consts.LogFieldCmd}),
		AOFPendingBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eggie_reactor_aof_pending_bytes",
		}),
	}
	registry.MustRegister(
		mh.ConnectionAcceptCounter,
		mh.ConnectionRejectCounter,
		mh.ConnectedClients,
		mh.Keys,
		mh.CommandsProcessed,
		mh.AOFPendingBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return mh
}

func (mh *MetricsHelper) incCommands(name string) {
	if mh == nil {
		return
	}
	mh.CommandsProcessed.WithLabelValues(name).Inc()
}

// pusher 定期把 registry 推到 Pushgateway，stop 关闭后退出
type pusher struct {
	pusher   *push.Pusher
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func startPusher(addr string, intervalMs int, registry *prometheus.Registry) *pusher {
	p := &pusher{
		pusher:   push.New(addr, consts.AppName).Gatherer(registry),
		interval: time.Duration(intervalMs) * time.Millisecond,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	gopool.Go(func() {
		defer utils.HandlePanic(logs.Logger(), func() { close(p.done) })
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				if err := p.pusher.Add(); err != nil {
					logs.Warn("prometheus pusher push failed", zap.String(consts.LogFieldAddr, addr), zap.Error(err))
				}
			}
		}
	})
	logs.Info("metrics pusher started", zap.String(consts.LogFieldAddr, addr), zap.Duration(consts.LogFieldValue, p.interval))
	return p
}

func (p *pusher) Close() {
	close(p.stop)
	<-p.done
}
