package usecase

import (
	"sync/atomic"

	"github.com/Brownie44l1/smile-api/internal/model"
)

// Stats combines pipeline timings with request counters.
type Stats struct {
	Pipeline   model.Statistics `json:"pipeline"`
	Detections uint64           `json:"detections"`
	CacheHits  uint64           `json:"cache_hits"`
	Failures   uint64           `json:"failures"`
	HitRate    float64          `json:"cache_hit_rate"`
}

func (uc *DetectionUseCase) Statistics() Stats {
	stats := Stats{
		Pipeline:   uc.pipeline.Statistics(),
		Detections: atomic.LoadUint64(&uc.detections),
		CacheHits:  atomic.LoadUint64(&uc.cacheHits),
		Failures:   atomic.LoadUint64(&uc.failures),
	}
	if stats.Detections > 0 {
		stats.HitRate = float64(stats.CacheHits) / float64(stats.Detections)
	}
	return stats
}
