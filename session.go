package main

import (
	"fmt"
	"sort"
	"sync"

	"signcap/log"
	"signcap/remote"
	"signcap/workflow"
)

type TranslationRecord struct {
	ClipSeconds float64
	ClipSizeKB  float64
	UploadMs    float64
	PredictMs   float64
	TLSMs       float64
	TotalMs     float64
}

type PercentileStats struct {
	TotalMs   [5]float64 // min, p50, p90, p95, max
	UploadMs  [5]float64
	PredictMs [5]float64
	SizeKB    [5]float64
}

// sessionStats keeps the translations of this run for the percentile table.
type sessionStats struct {
	mu      sync.Mutex
	records []TranslationRecord
	pct     PercentileStats
}

func recordFrom(s workflow.Snapshot) TranslationRecord {
	var r TranslationRecord
	if s.Clip != nil {
		r.ClipSeconds = s.Clip.Duration.Seconds()
		r.ClipSizeKB = float64(s.Clip.Size()) / 1024
	}
	if m := s.UploadStats; m != nil {
		r.UploadMs = float64(m.Total.Milliseconds())
		r.TLSMs = float64(m.TLS.Milliseconds())
	}
	if m := s.PredictStats; m != nil {
		r.PredictMs = float64(m.Total.Milliseconds())
	}
	r.TotalMs = r.UploadMs + r.PredictMs
	return r
}

func (s *sessionStats) add(r TranslationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	s.update()
}

func (s *sessionStats) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *sessionStats) update() {
	n := len(s.records)
	if n == 0 {
		return
	}

	extract := func(fn func(TranslationRecord) float64) []float64 {
		vals := make([]float64, n)
		for i, r := range s.records {
			vals[i] = fn(r)
		}
		sort.Float64s(vals)
		return vals
	}

	percentile := func(sorted []float64, p float64) float64 {
		idx := int(float64(len(sorted)-1) * p)
		return sorted[idx]
	}

	calcStats := func(sorted []float64) [5]float64 {
		return [5]float64{
			sorted[0],
			percentile(sorted, 0.50),
			percentile(sorted, 0.90),
			percentile(sorted, 0.95),
			sorted[len(sorted)-1],
		}
	}

	s.pct.TotalMs = calcStats(extract(func(r TranslationRecord) float64 { return r.TotalMs }))
	s.pct.UploadMs = calcStats(extract(func(r TranslationRecord) float64 { return r.UploadMs }))
	s.pct.PredictMs = calcStats(extract(func(r TranslationRecord) float64 { return r.PredictMs }))
	s.pct.SizeKB = calcStats(extract(func(r TranslationRecord) float64 { return r.ClipSizeKB }))
}

// table renders the percentiles, or "" before the first translation.
func (s *sessionStats) table() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return ""
	}

	ts := s.pct.TotalMs
	us := s.pct.UploadMs
	ps := s.pct.PredictMs
	ks := s.pct.SizeKB

	return fmt.Sprintf(
		"        %5s %5s %5s %5s %5s\n"+
			"total   %5.0f %5.0f %5.0f %5.0f %5.0f\n"+
			"upload  %5.0f %5.0f %5.0f %5.0f %5.0f\n"+
			"predict %5.0f %5.0f %5.0f %5.0f %5.0f\n"+
			"size kB %5.0f %5.0f %5.0f %5.0f %5.0f",
		"min", "p50", "p90", "p95", "max",
		ts[0], ts[1], ts[2], ts[3], ts[4],
		us[0], us[1], us[2], us[3], us[4],
		ps[0], ps[1], ps[2], ps[3], ps[4],
		ks[0], ks[1], ks[2], ks[3], ks[4],
	)
}

// metricLines lists the network timings of the last translation.
func metricLines(s workflow.Snapshot) []string {
	var lines []string
	if s.UploadStats != nil {
		lines = append(lines, s.UploadStats.Lines("upload")...)
	}
	if s.PredictStats != nil {
		lines = append(lines, s.PredictStats.Lines("predict")...)
	}
	return lines
}

func stageMetrics(stage string, m *remote.NetworkMetrics, bytes int) log.StageMetrics {
	return log.StageMetrics{
		Stage:      stage,
		Bytes:      bytes,
		DNSMs:      float64(m.DNS.Milliseconds()),
		TCPMs:      float64(m.TCP.Milliseconds()),
		TLSMs:      float64(m.TLS.Milliseconds()),
		ServerMs:   float64(m.Server.Milliseconds()),
		TotalMs:    float64(m.Total.Milliseconds()),
		ConnReused: m.ConnReused,
		Attempts:   m.Attempts,
	}
}
