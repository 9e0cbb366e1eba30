package models

import "time"

// SystemMetrics is a lightweight snapshot of process and workflow counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	NominationsAccepted      uint64    `json:"nominations_accepted"`
	NominationsRejected      uint64    `json:"nominations_rejected"`
	ScheduleConflicts        uint64    `json:"schedule_conflicts"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
