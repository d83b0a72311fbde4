package engine

import (
	"context"
	"testing"
	"time"

	"github.com/mioym/homeval/internal/extract"
	"github.com/mioym/homeval/internal/models"
)

func TestRunWithCeilingCompletes(t *testing.T) {
	outcome := runWithCeiling(context.Background(), time.Second, func(_ context.Context) models.JobOutcome {
		return models.JobOutcome{Status: models.StatusEstimate, Value: 100000}
	})
	if outcome.Status != models.StatusEstimate || outcome.Value != 100000 {
		t.Errorf("结果 = %+v", outcome)
	}
}

func TestRunWithCeilingTimeout(t *testing.T) {
	start := time.Now()
	outcome := runWithCeiling(context.Background(), 50*time.Millisecond, func(ctx context.Context) models.JobOutcome {
		<-ctx.Done()
		time.Sleep(time.Second) // 模拟不响应取消的慢步骤
		return models.JobOutcome{Status: models.StatusEstimate}
	})
	if outcome.Status != models.StatusTimeout {
		t.Fatalf("状态 = %s, 期望 timeout", outcome.Status)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("硬上限到期后应立即返回,不等待任务体")
	}
}

func TestRunWithCeilingTimeoutMarksIsolation(t *testing.T) {
	bodyDone := make(chan models.TimingMarks, 1)
	start := time.Now()

	outcome := runWithCeiling(context.Background(), 50*time.Millisecond, func(ctx context.Context) models.JobOutcome {
		marks := models.TimingMarks{Start: start}
		<-ctx.Done()
		// 被放弃的任务体继续打自己的标记
		marks.TypedAt = time.Now()
		marks.ResultsAt = time.Now()
		marks.DoneAt = time.Now()
		bodyDone <- marks
		return models.JobOutcome{Status: models.StatusEstimate, Marks: marks}
	})

	if outcome.Status != models.StatusTimeout {
		t.Fatalf("状态 = %s, 期望 timeout", outcome.Status)
	}
	if !outcome.Marks.TypedAt.IsZero() || !outcome.Marks.ResultsAt.IsZero() {
		t.Error("被放弃任务体的标记不应出现在超时结果中")
	}

	late := <-bodyDone
	if late.TypedAt.IsZero() || late.DoneAt.IsZero() {
		t.Error("任务体应持有自己的完整标记")
	}
}

func TestRunWithCeilingRecoversPanic(t *testing.T) {
	outcome := runWithCeiling(context.Background(), time.Second, func(_ context.Context) models.JobOutcome {
		panic("页面句柄失效")
	})
	if outcome.Status != models.StatusError {
		t.Fatalf("状态 = %s, 期望 error", outcome.Status)
	}
}

func TestRunWithCeilingParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := runWithCeiling(ctx, time.Second, func(ctx context.Context) models.JobOutcome {
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		return models.JobOutcome{Status: models.StatusEstimate}
	})
	if outcome.Status != models.StatusError {
		t.Fatalf("取消后状态 = %s, 期望 error", outcome.Status)
	}
}

func TestClassifyPageHTML(t *testing.T) {
	chain := extract.NewChain(extract.NewSelectorStrategy("est", []string{".estimate"}))

	tests := []struct {
		name string
		html string
		want pageState
	}{
		{"风控拦截页", `<html><body><h1>Access Denied</h1></body></html>`, stateBotWall},
		{"人机验证", `<div>Please verify you are human to continue</div>`, stateBotWall},
		{"查无数据", `<div>We couldn't find that address. Try another search.</div>`, stateNoData},
		{"出现估值", `<div class="estimate">$750,000</div>`, stateResults},
		{"加载中", `<div class="spinner"></div>`, statePending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyPageHTML(tt.html, chain); got != tt.want {
				t.Errorf("classifyPageHTML = %d, 期望 %d", got, tt.want)
			}
		})
	}
}

func TestSuggestionMatches(t *testing.T) {
	tests := []struct {
		name       string
		suggestion string
		address    string
		want       bool
	}{
		{"完全一致", "123 Main St, Austin, TX", "123 Main St", true},
		{"大小写与标点差异", "123 MAIN STREET, AUSTIN", "123 main st.", true},
		{"门牌号不同", "125 Main St", "123 Main St", false},
		{"空联想", "", "123 Main St", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := suggestionMatches(tt.suggestion, tt.address); got != tt.want {
				t.Errorf("suggestionMatches(%q, %q) = %v, 期望 %v", tt.suggestion, tt.address, got, tt.want)
			}
		})
	}
}
