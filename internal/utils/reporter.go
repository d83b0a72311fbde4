package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mioym/homeval/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 运行报告生成器
type Reporter struct {
	outputDir string
	vendor    string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string, vendor string) *Reporter {
	return &Reporter{
		outputDir: outputDir,
		vendor:    vendor,
	}
}

// GenerateReport 落盘本次运行的完整报告
// 主报告之外单独落盘失败清单,便于下次运行直接重投
func (r *Reporter) GenerateReport(report models.RunReport) error {
	reportsDir := filepath.Join(r.outputDir, r.vendor, "reports")
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}

	if err := r.saveJSONReport(reportsDir, "run_report.json", report); err != nil {
		return err
	}

	// 失败清单: 除成功和查无数据外的所有条目
	failed := make([]models.ItemResult, 0)
	for _, item := range report.Items {
		if !item.Outcome.Success() && item.Outcome.Status != models.StatusNoData {
			failed = append(failed, item)
		}
	}
	if err := r.saveJSONReport(reportsDir, "failed_items.json", failed); err != nil {
		return err
	}

	Infof("✅ 报告已生成: %s", reportsDir)
	return nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(dir string, filename string, data interface{}) error {
	filepath := filepath.Join(dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(filepath, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", filepath)
	return nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
