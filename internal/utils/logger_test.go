package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestInitLoggerCreatesFiles(t *testing.T) {
	tempDir := t.TempDir()

	cfg := LogConfig{
		Level:      "debug",
		LogDir:     tempDir,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   false,
	}

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Info("信息日志测试")
	Infof("格式化信息日志: %s", "测试")
	Warnf("格式化警告日志: %d", 123)
	Debug("调试日志测试")
	Errorf("格式化错误日志: %v", os.ErrNotExist)

	// lumberjack异步落盘, 稍等
	time.Sleep(100 * time.Millisecond)

	mainLog := filepath.Join(tempDir, "homeval.log")
	content, err := os.ReadFile(mainLog)
	if err != nil {
		t.Fatalf("读取主日志文件失败: %v", err)
	}
	if len(content) == 0 {
		t.Error("主日志文件为空")
	}
	if !bytes.Contains(content, []byte("信息日志测试")) {
		t.Error("主日志文件缺少中文日志内容")
	}

	errLog := filepath.Join(tempDir, "homeval_error.log")
	errContent, err := os.ReadFile(errLog)
	if err != nil {
		t.Fatalf("读取错误日志文件失败: %v", err)
	}
	if bytes.Contains(errContent, []byte("信息日志测试")) {
		t.Error("错误日志文件不应包含info级别日志")
	}
	if !bytes.Contains(errContent, []byte("格式化错误日志")) {
		t.Error("错误日志文件缺少error级别日志")
	}
}

func TestInitLoggerBadLevelFallsBack(t *testing.T) {
	tempDir := t.TempDir()

	cfg := DefaultLogConfig()
	cfg.Level = "不存在的级别"
	cfg.LogDir = tempDir

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("非法级别应回退到info而不是报错: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("全局级别错误: 期望 info, 得到 %s", zerolog.GlobalLevel())
	}
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()

	if cfg.Level != "info" {
		t.Errorf("默认日志级别错误: 期望 'info', 得到 '%s'", cfg.Level)
	}
	if cfg.LogDir != "logs" {
		t.Errorf("默认日志目录错误: 期望 'logs', 得到 '%s'", cfg.LogDir)
	}
	if cfg.MaxSize != 10 || cfg.MaxBackups != 3 || cfg.MaxAge != 28 {
		t.Errorf("默认轮转参数错误: %+v", cfg)
	}
	if !cfg.Compress {
		t.Error("默认应该启用压缩")
	}
}

func TestLevelWriterRouting(t *testing.T) {
	var buf bytes.Buffer
	w := &levelWriter{w: &buf, min: zerolog.ErrorLevel}

	if n, err := w.WriteLevel(zerolog.InfoLevel, []byte("info行")); err != nil || n != len("info行") {
		t.Fatalf("低级别日志应被吞掉且假装写入成功: n=%d err=%v", n, err)
	}
	if buf.Len() != 0 {
		t.Errorf("低级别日志不应写入底层: %q", buf.String())
	}

	if _, err := w.WriteLevel(zerolog.ErrorLevel, []byte("error行")); err != nil {
		t.Fatalf("error级别写入失败: %v", err)
	}
	if buf.String() != "error行" {
		t.Errorf("error级别应透传: %q", buf.String())
	}
}
