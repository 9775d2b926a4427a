package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/leonelquinteros/gotext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"

	"volspike/config"
	"volspike/internal/alert"
	"volspike/internal/database"
	"volspike/internal/exchange"
	"volspike/internal/market"
	"volspike/internal/notify"
	"volspike/internal/scheduler"
	"volspike/internal/server"
	"volspike/internal/types"
)

type DashboardMetrics struct {
	RefreshCycles  prometheus.Counter
	ScansCompleted prometheus.Counter
	AlertsEmitted  *prometheus.CounterVec
	SnapshotAssets prometheus.Gauge
	Mutex          sync.Mutex
}

var (
	metrics = NewDashboardMetrics()
)

func init() {
	config.InitConfig()
	setupLogging()
}

func NewDashboardMetrics() *DashboardMetrics {
	metrics := &DashboardMetrics{
		RefreshCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "volspike",
			Subsystem: "dashboard",
			Name:      "refresh_cycles",
			Help:      "The total number of snapshot refresh cycles",
		}),
		ScansCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "volspike",
			Subsystem: "dashboard",
			Name:      "scans_completed",
			Help:      "The total number of alert scan cycles",
		}),
		AlertsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "volspike",
				Subsystem: "dashboard",
				Name:      "alerts_emitted",
				Help:      "The total number of emitted alerts per kind",
			},
			[]string{"kind"},
		),
		SnapshotAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "volspike",
			Subsystem: "dashboard",
			Name:      "snapshot_assets",
			Help:      "The current number of assets in the basic snapshot",
		}),
	}

	prometheus.MustRegister(metrics.RefreshCycles)
	prometheus.MustRegister(metrics.ScansCompleted)
	prometheus.MustRegister(metrics.AlertsEmitted)
	prometheus.MustRegister(metrics.SnapshotAssets)

	return metrics
}

func main() {
	gotext.Configure("locales", strings.ToLower(config.GetString("lang")), "default")

	err := database.InitDB(config.GetString("db_path"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.CloseDB()

	LoadMetricsFromDB()

	client := exchange.NewClient(exchange.Config{
		Mirrors:  config.GetStringSlice("api_mirrors"),
		Interval: config.GetString("kline_interval"),
	})

	cache := market.NewCache(client, market.Config{
		MinQuoteVolume:      config.GetFloat("min_quote_volume"),
		OpenInterestWorkers: config.GetInt("oi_workers"),
	})

	dispatcher := notify.NewMultiDispatcher(database.Store{}, database.Store{}, buildChannels()...)

	engine := alert.NewEngine(client, cache, &countingDispatcher{next: dispatcher}, alert.Config{
		VolumeMultiple: config.GetFloat("volume_multiple"),
		MinQuoteVolume: config.GetFloat("alert_min_quote_volume"),
		LogLimit:       config.GetInt("alert_log_limit"),
	})

	cacheInterval := time.Duration(config.GetInt("cache_interval_minutes")) * time.Minute
	alertInterval := time.Duration(config.GetInt("alert_interval_seconds")) * time.Second

	sched := scheduler.New(
		&countingCache{next: cache},
		&countingScanner{next: engine},
		cacheInterval,
		alertInterval,
	)
	sched.Start()

	go func() {
		for {
			time.Sleep(5 * time.Minute)
			metrics.SnapshotAssets.Set(float64(cache.Size(false)))
			SaveMetricsToDB()
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		sched.Stop()
		SaveMetricsToDB()
		log.Println("Metrics saved, shutting down...")
		os.Exit(0)
	}()

	go func() {
		if err := launchMetricsAndHealthServer(config.GetInt("metrics_port")); err != nil {
			log.Fatalf("Failed to start metrics and health server: %v", err)
		}
	}()

	api := server.New(cache, engine, database.Store{}, client, cacheInterval)
	port := config.GetInt("http_port")
	log.Infof("Launching dashboard API on :%d", port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), api.Handler()); err != nil {
		log.Fatalf("Failed to start dashboard API: %v", err)
	}
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting volume spike dashboard...")
}

// buildChannels assembles every delivery channel that is configured.
// Email needs an SMTP host, telegram needs a bot token; discord and sms
// have no process-level configuration.
func buildChannels() []notify.Channel {
	var channels []notify.Channel

	if host := config.GetString("smtp_host"); host != "" {
		channels = append(channels, notify.NewEmailChannel(notify.EmailConfig{
			Host:     host,
			Port:     config.GetInt("smtp_port"),
			User:     config.GetString("smtp_user"),
			Password: config.GetString("smtp_password"),
			From:     config.GetString("smtp_from"),
		}))
	} else {
		log.Warn("SMTP host not configured, email alerts disabled")
	}

	if token := config.GetString("telegram_bot_token"); token != "" {
		telegram, err := notify.NewTelegramChannel(token)
		if err != nil {
			log.Errorf("Failed to create telegram channel: %v", err)
		} else {
			channels = append(channels, telegram)
		}
	}

	channels = append(channels, notify.NewDiscordChannel())
	channels = append(channels, notify.NewSMSChannel())
	return channels
}

// countingCache increments the refresh counter around the real cache.
type countingCache struct {
	next *market.Cache
}

func (c *countingCache) RefreshSymbols(ctx context.Context) {
	c.next.RefreshSymbols(ctx)
}

func (c *countingCache) RefreshBothBackground(ctx context.Context) {
	metrics.RefreshCycles.Inc()
	c.next.RefreshBothBackground(ctx)
}

type countingScanner struct {
	next *alert.Engine
}

func (s *countingScanner) Scan(ctx context.Context) {
	s.next.Scan(ctx)
	metrics.ScansCompleted.Inc()
}

type countingDispatcher struct {
	next *notify.MultiDispatcher
}

func (d *countingDispatcher) Dispatch(event types.AlertEvent, extra types.AlertContext) {
	metrics.AlertsEmitted.WithLabelValues(string(event.Kind)).Inc()
	d.next.Dispatch(event, extra)
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func launchMetricsAndHealthServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthCheckHandler)

	log.Infof("Launching metrics and health endpoint on :%d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

func LoadMetricsFromDB() {
	metrics.Mutex.Lock()
	defer metrics.Mutex.Unlock()

	// Load non-labeled metrics
	refreshCycles, _ := database.GetMetric("refresh_cycles")
	scansCompleted, _ := database.GetMetric("scans_completed")
	snapshotAssets, _ := database.GetMetric("snapshot_assets")

	metrics.RefreshCycles.Add(refreshCycles)
	metrics.ScansCompleted.Add(scansCompleted)
	metrics.SnapshotAssets.Set(snapshotAssets)

	// Load labeled metrics
	labeled, _ := database.GetMetricsWithLabels("alerts_emitted")
	for _, kinds := range labeled {
		for kind, value := range kinds {
			metrics.AlertsEmitted.WithLabelValues(kind).Add(value)
		}
	}

	log.Println("Metrics loaded from database.")
}

func SaveMetricsToDB() {
	metrics.Mutex.Lock()
	defer metrics.Mutex.Unlock()

	// Save non-labeled metrics
	database.SaveMetric("refresh_cycles", "", "", GetMetricValue(metrics.RefreshCycles))
	database.SaveMetric("scans_completed", "", "", GetMetricValue(metrics.ScansCompleted))
	database.SaveMetric("snapshot_assets", "", "", GetMetricValue(metrics.SnapshotAssets))

	// Save labeled metrics: alerts_emitted
	metricChan := make(chan prometheus.Metric, 1)
	go func() {
		metrics.AlertsEmitted.Collect(metricChan)
		close(metricChan)
	}()

	for metric := range metricChan {
		metricProto := &dto.Metric{}
		if err := metric.Write(metricProto); err != nil {
			log.Printf("Failed to read AlertsEmitted metric: %v", err)
			continue
		}
		var kind string
		for _, label := range metricProto.Label {
			if label.GetName() == "kind" {
				kind = label.GetValue()
			}
		}
		database.SaveMetric("alerts_emitted", "kind", kind, metricProto.Counter.GetValue())
	}

	log.Println("Metrics saved to database.")
}

func GetMetricValue(metric prometheus.Collector) float64 {
	var metricValue float64
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Printf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		metricValue = metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		metricValue = metricProto.Gauge.GetValue()
	}
	return metricValue
}
