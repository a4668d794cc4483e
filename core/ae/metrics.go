package ae

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsHelper 事件循环的运行指标，nil 时所有方法都是空操作
type MetricsHelper struct {
	Iterations        prometheus.Counter
	FileEventsHandled prometheus.Counter
	TimeEventsFired   prometheus.Counter
	PollErrors        prometheus.Counter
	PollWait          prometheus.Histogram // 一次 Poll 实际阻塞的时长
	RegisteredFds     prometheus.Gauge
	TimeEvents        prometheus.Gauge
}

func NewMetricsHelper(registerer prometheus.Registerer) *MetricsHelper {
	mh := &MetricsHelper{
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eggie_reactor_ae_iterations_total",
			Help: "number of event loop iterations",
		}),
		FileEventsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eggie_reactor_ae_file_events_total",
			Help: "number of dispatched file events",
		}),
		TimeEventsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eggie_reactor_ae_time_events_total",
			Help: "number of fired time events",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eggie_reactor_ae_poll_errors_total",
			Help: "number of failed polls",
		}),
		PollWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eggie_reactor_ae_poll_wait_seconds",
			Help:    "time spent blocked in poll",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		RegisteredFds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eggie_reactor_ae_registered_fds",
			Help: "number of descriptors with a non-empty mask",
		}),
		TimeEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eggie_reactor_ae_time_events",
			Help: "number of live time events",
		}),
	}
	registerer.MustRegister(
		mh.Iterations,
		mh.FileEventsHandled,
		mh.TimeEventsFired,
		mh.PollErrors,
		mh.PollWait,
		mh.RegisteredFds,
		mh.TimeEvents,
	)
	return mh
}

func (mh *MetricsHelper) incIterations() {
	if mh == nil {
		return
	}
	mh.Iterations.Inc()
}

func (mh *MetricsHelper) observePoll(wait time.Duration, err error) {
	if mh == nil {
		return
	}
	if err != nil {
		mh.PollErrors.Inc()
		return
	}
	mh.PollWait.Observe(wait.Seconds())
}

func (mh *MetricsHelper) addFileEvents(n int) {
	if mh == nil || n == 0 {
		return
	}
	mh.FileEventsHandled.Add(float64(n))
}

func (mh *MetricsHelper) addTimeEvents(n int) {
	if mh == nil || n == 0 {
		return
	}
	mh.TimeEventsFired.Add(float64(n))
}

func (mh *MetricsHelper) setRegisteredFds(n int) {
	if mh == nil {
		return
	}
	mh.RegisteredFds.Set(float64(n))
}

func (mh *MetricsHelper) setTimeEvents(n int) {
	if mh == nil {
		return
	}
	mh.TimeEvents.Set(float64(n))
}
