package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const storeQueryTimeout = 2 * time.Second

// storeGauge is a row count sampled from Postgres on every scrape.
type storeGauge struct {
	name  string
	help  string
	query string
}

var storeGauges = []storeGauge{
	{
		name:  "active_alerts",
		help:  "Active alert rows in the durable store",
		query: "SELECT COUNT(*) FROM alerts WHERE is_active",
	},
	{
		name:  "unread_notifications",
		help:  "Recipient rows not yet read",
		query: "SELECT COUNT(*) FROM notification_recipients WHERE NOT is_read",
	},
	{
		name:  "dead_letter_count",
		help:  "Distinct dropped payloads",
		query: "SELECT COUNT(*) FROM dead_letter_messages",
	},
}

func registerDBMetrics(db *sql.DB, logger *slog.Logger) {
	// Pool saturation shows up here before units of work start timing out.
	prometheus.MustRegister(collectors.NewDBStatsCollector(db, "signal_alerts"))

	for _, gauge := range storeGauges {
		query := gauge.query
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: metricPrefix + gauge.name, Help: gauge.help},
			func() float64 { return queryCount(db, logger, query) },
		))
	}
}

func queryCount(db *sql.DB, logger *slog.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeQueryTimeout)
	defer cancel()
	var count int64
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		if logger != nil {
			logger.Warn("metrics query failed", "query", query, "error", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
