package core

import (
	"testing"
	"time"

	"github.com/mioym/homeval/internal/models"
)

func outcomeWithTotal(status models.JobStatus, total time.Duration) models.JobOutcome {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return models.JobOutcome{
		Status: status,
		Marks: models.TimingMarks{
			Start:  start,
			DoneAt: start.Add(total),
		},
	}
}

func TestTelemetryCounts(t *testing.T) {
	tel := NewTelemetry(0)

	tel.Observe(outcomeWithTotal(models.StatusEstimate, 2*time.Second))
	tel.Observe(outcomeWithTotal(models.StatusEstimate, 5*time.Second))
	tel.Observe(outcomeWithTotal(models.StatusNoData, time.Second))
	tel.Observe(outcomeWithTotal(models.StatusBlocked, time.Second))
	tel.Observe(outcomeWithTotal(models.StatusTimeout, 95*time.Second))
	tel.Observe(outcomeWithTotal(models.StatusError, time.Second))

	processed, succeeded, failedLike := tel.Counts()
	if processed != 6 {
		t.Fatalf("已处理 = %d, 期望 6", processed)
	}
	if succeeded != 2 {
		t.Fatalf("成功 = %d, 期望 2", succeeded)
	}
	// 无数据不算失败类
	if failedLike != 3 {
		t.Fatalf("失败类 = %d, 期望 3", failedLike)
	}
}

func TestTelemetryRetriedCounter(t *testing.T) {
	tel := NewTelemetry(0)

	o := outcomeWithTotal(models.StatusEstimate, 2*time.Second)
	o.Retried = true
	tel.Observe(o)
	tel.Observe(outcomeWithTotal(models.StatusEstimate, 2*time.Second))

	if tel.retried != 1 {
		t.Fatalf("重试计数 = %d, 期望 1", tel.retried)
	}
}

func TestHistogramBuckets(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		bucket   int
	}{
		{"亚秒", 500 * time.Millisecond, 0},
		{"零值落入首桶", 0, 0},
		{"2秒", 2 * time.Second, 1},
		{"5秒", 5 * time.Second, 2},
		{"8秒", 8 * time.Second, 3},
		{"15秒", 15 * time.Second, 4},
		{"30秒", 30 * time.Second, 5},
		{"超过40秒落入溢出桶", 95 * time.Second, 6},
		{"边界值归入上一桶", time.Second, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h histogram
			h.observe(tt.duration)
			if h.counts[tt.bucket] != 1 {
				t.Fatalf("耗时 %v 未落入桶 %d: %+v", tt.duration, tt.bucket, h.counts)
			}
		})
	}
}

func TestHistogramRender(t *testing.T) {
	var h histogram
	if h.render() != "-" {
		t.Fatalf("空直方图渲染 = %q, 期望 \"-\"", h.render())
	}
	h.observe(500 * time.Millisecond)
	h.observe(2 * time.Second)
	h.observe(2 * time.Second)
	got := h.render()
	expected := "<1s:1 1-3s:2"
	if got != expected {
		t.Fatalf("直方图渲染 = %q, 期望 %q", got, expected)
	}
}
