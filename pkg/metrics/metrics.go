package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "educ_auth_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// OTPVerifications counts second-factor verifications by result (success|failure).
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "educ_otp_verifications_total",
			Help: "Total number of one-time code verifications",
		},
		[]string{"result"},
	)

	// RateLimited counts requests rejected by the rate limiter, per route.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "educ_rate_limited_total",
			Help: "Total number of rate-limited requests",
		},
		[]string{"path"},
	)

	// MailQueueDepth tracks the number of messages waiting for delivery.
	MailQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "educ_mail_queue_depth",
			Help: "Number of queued outbound emails",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "educ_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
