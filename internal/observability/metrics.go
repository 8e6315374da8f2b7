package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sorter_messages_scanned_total",
		Help: "The total number of source messages examined",
	}, []string{"source"})

	VideosForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sorter_videos_forwarded_total",
		Help: "The total number of videos forwarded into destination topics",
	}, []string{"topic"})

	DuplicatesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sorter_duplicates_detected_total",
		Help: "The total number of candidates recognized as duplicates",
	}, []string{"topic"})

	MessagesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sorter_messages_deleted_total",
		Help: "The total number of destination messages deleted",
	})

	FloodWaitSecondsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sorter_flood_wait_seconds_total",
		Help: "Total time in seconds spent waiting for flood control",
	})

	FloodWaitCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sorter_flood_wait_total",
		Help: "Total number of flood wait events",
	})
)
