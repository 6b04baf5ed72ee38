package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-mcmcan/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxNodes bounds the node label and the local per-node mirrors.
const MaxNodes = 4

// Bus states reported by the node_bus_state gauge.
const (
	BusActive = iota
	BusWarning
	BusPassive
	BusOff
)

// Prometheus collectors
var (
	NodeRxFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "node_rx_frames_total",
		Help: "Frames read from a node's RX FIFO 0.",
	}, []string{"node"})
	NodeTxFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "node_tx_frames_total",
		Help: "Transmissions requested on a node's dedicated TX buffers.",
	}, []string{"node"})
	NodeTxBusy = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "node_tx_busy_total",
		Help: "Transmit attempts that found every dedicated buffer pending or held.",
	}, []string{"node"})
	NodeFifoOverruns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "node_rx_fifo_overruns_total",
		Help: "Polls that found the RX FIFO 0 message lost flag set.",
	}, []string{"node"})
	NodeFifoFill = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "node_rx_fifo_fill",
		Help: "RX FIFO 0 fill level at the last poll.",
	}, []string{"node"})
	NodeTEC = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "node_transmit_error_count",
		Help: "Transmit error counter (ECR.TEC).",
	}, []string{"node"})
	NodeREC = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "node_receive_error_count",
		Help: "Receive error counter (ECR.REC).",
	}, []string{"node"})
	NodeBusState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "node_bus_state",
		Help: "0 error active, 1 warning, 2 error passive, 3 bus-off.",
	}, []string{"node"})
	MsgRAMUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "msgram_used_bytes",
		Help: "Message RAM bytes handed out by the allocator.",
	})
	MsgRAMSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "msgram_size_bytes",
		Help: "Message RAM size.",
	})
	BackendRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_rx_frames_total",
		Help: "Frames read from the external backend (serial or SocketCAN).",
	})
	BackendTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_tx_frames_total",
		Help: "Frames written to the external backend.",
	})
	BackendReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_reconnects_total",
		Help: "Backend open attempts after the first.",
	})
	WSRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_rx_frames_total",
		Help: "Frames submitted by websocket clients and the HTTP API.",
	})
	WSTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_tx_frames_total",
		Help: "Frames sent to websocket clients.",
	})
	HubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_frames_total",
		Help: "Total frames dropped by hub due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total clients disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total client connection attempts rejected (max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of subscribed clients.",
	})
	HubBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Number of clients targeted in the most recent broadcast.",
	})
	HubQueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_max",
		Help: "Observed max queued items among clients in the last broadcast.",
	})
	HubQueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_avg",
		Help: "Approximate average queued items per client in the last broadcast.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Rejected malformed frames (bad SLCAN line, invalid id or length).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrWSRead         = "ws_read"
	ErrWSWrite        = "ws_write"
	ErrSerialWrite    = "serial_write"
	ErrSerialOverflow = "serial_tx_overflow"
	ErrSerialRead     = "serial_read"
	ErrSocketCANWrite = "socketcan_write"
	ErrSocketCANOver  = "socketcan_tx_overflow"
	ErrSocketCANRead  = "socketcan_read"
	ErrBackendOpen    = "backend_open"
	ErrTxQueueFull    = "tx_queue_full"
)

// Handler serves /metrics and /ready.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", ReadyHandler)
	return mux
}

// ReadyHandler answers 200 when ready and 503 otherwise.
func ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if IsReady() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready\n"))
}

// StartHTTP serves Handler on addr in the background.
func StartHTTP(addr string) *http.Server {
	srv := &http.Server{
		Addr:    addr,
		Handler: Handler(),
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localNodeRx     [MaxNodes]uint64
	localNodeTx     [MaxNodes]uint64
	localNodeBusy   [MaxNodes]uint64
	localOverruns   [MaxNodes]uint64
	localBackendRx  uint64
	localBackendTx  uint64
	localReconnects uint64
	localWSRx       uint64
	localWSTx       uint64
	localHubDrop    uint64
	localHubKick    uint64
	localHubReject  uint64
	localErrors     uint64
	localHubClients uint64
	localFanout     uint64
	localMalformed  uint64
	localQDMax      uint64
	localQDAvg      uint64
	localRAMUsed    uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	NodeRx        [MaxNodes]uint64
	NodeTx        [MaxNodes]uint64
	NodeTxBusy    [MaxNodes]uint64
	Overruns      [MaxNodes]uint64
	BackendRx     uint64
	BackendTx     uint64
	Reconnects    uint64
	WSRx          uint64
	WSTx          uint64
	HubDrops      uint64
	HubKicks      uint64
	HubRejects    uint64
	Errors        uint64 // sum across error labels
	HubClients    uint64
	Fanout        uint64
	Malformed     uint64
	QueueDepthMax uint64
	QueueDepthAvg uint64
	MsgRAMUsed    uint64
}

func Snap() Snapshot {
	var s Snapshot
	for i := 0; i < MaxNodes; i++ {
		s.NodeRx[i] = atomic.LoadUint64(&localNodeRx[i])
		s.NodeTx[i] = atomic.LoadUint64(&localNodeTx[i])
		s.NodeTxBusy[i] = atomic.LoadUint64(&localNodeBusy[i])
		s.Overruns[i] = atomic.LoadUint64(&localOverruns[i])
	}
	s.BackendRx = atomic.LoadUint64(&localBackendRx)
	s.BackendTx = atomic.LoadUint64(&localBackendTx)
	s.Reconnects = atomic.LoadUint64(&localReconnects)
	s.WSRx = atomic.LoadUint64(&localWSRx)
	s.WSTx = atomic.LoadUint64(&localWSTx)
	s.HubDrops = atomic.LoadUint64(&localHubDrop)
	s.HubKicks = atomic.LoadUint64(&localHubKick)
	s.HubRejects = atomic.LoadUint64(&localHubReject)
	s.Errors = atomic.LoadUint64(&localErrors)
	s.HubClients = atomic.LoadUint64(&localHubClients)
	s.Fanout = atomic.LoadUint64(&localFanout)
	s.Malformed = atomic.LoadUint64(&localMalformed)
	s.QueueDepthMax = atomic.LoadUint64(&localQDMax)
	s.QueueDepthAvg = atomic.LoadUint64(&localQDAvg)
	s.MsgRAMUsed = atomic.LoadUint64(&localRAMUsed)
	return s
}

func label(node int) string { return strconv.Itoa(node) }

// IncNodeRx counts a frame read from node's FIFO.
func IncNodeRx(node int) {
	NodeRxFrames.WithLabelValues(label(node)).Inc()
	if node < MaxNodes {
		atomic.AddUint64(&localNodeRx[node], 1)
	}
}

// IncNodeTx counts a transmission request on node.
func IncNodeTx(node int) {
	NodeTxFrames.WithLabelValues(label(node)).Inc()
	if node < MaxNodes {
		atomic.AddUint64(&localNodeTx[node], 1)
	}
}

func IncNodeTxBusy(node int) {
	NodeTxBusy.WithLabelValues(label(node)).Inc()
	if node < MaxNodes {
		atomic.AddUint64(&localNodeBusy[node], 1)
	}
}

func IncFifoOverrun(node int) {
	NodeFifoOverruns.WithLabelValues(label(node)).Inc()
	if node < MaxNodes {
		atomic.AddUint64(&localOverruns[node], 1)
	}
}

// SetNodeStatus records the sampled FIFO fill and error state of node.
func SetNodeStatus(node, fill int, tec, rec uint8, state int) {
	l := label(node)
	NodeFifoFill.WithLabelValues(l).Set(float64(fill))
	NodeTEC.WithLabelValues(l).Set(float64(tec))
	NodeREC.WithLabelValues(l).Set(float64(rec))
	NodeBusState.WithLabelValues(l).Set(float64(state))
}

// SetMsgRAM records allocator usage.
func SetMsgRAM(used, size uintptr) {
	MsgRAMUsed.Set(float64(used))
	MsgRAMSize.Set(float64(size))
	atomic.StoreUint64(&localRAMUsed, uint64(used))
}

func IncBackendRx() {
	BackendRxFrames.Inc()
	atomic.AddUint64(&localBackendRx, 1)
}

func IncBackendTx() {
	BackendTxFrames.Inc()
	atomic.AddUint64(&localBackendTx, 1)
}

func IncBackendReconnect() {
	BackendReconnects.Inc()
	atomic.AddUint64(&localReconnects, 1)
}

func IncWSRx() {
	WSRxFrames.Inc()
	atomic.AddUint64(&localWSRx, 1)
}

func AddWSTx(n int) {
	WSTxFrames.Add(float64(n))
	atomic.AddUint64(&localWSTx, uint64(n))
}

func IncHubDrop() {
	HubDroppedFrames.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func SetBroadcastFanout(n int) {
	HubBroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// SetQueueDepth records a snapshot of max and avg queue depth.
func SetQueueDepth(max, avg int) {
	HubQueueDepthMax.Set(float64(max))
	HubQueueDepthAvg.Set(float64(avg))
	atomic.StoreUint64(&localQDMax, uint64(max))
	atomic.StoreUint64(&localQDAvg, uint64(avg))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrWSRead, ErrWSWrite,
		ErrSerialWrite, ErrSerialOverflow, ErrSerialRead,
		ErrSocketCANWrite, ErrSocketCANOver, ErrSocketCANRead,
		ErrBackendOpen, ErrTxQueueFull,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
