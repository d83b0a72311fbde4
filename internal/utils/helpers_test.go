package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadListFile(t *testing.T) {
	t.Run("跳过空行和注释", func(t *testing.T) {
		content := `# 代理列表
10.0.0.1:8080

# 备用出口
10.0.0.2:8080
  10.0.0.3:8080
`
		path := filepath.Join(t.TempDir(), "list.txt")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("写入测试文件失败: %v", err)
		}

		lines, err := ReadListFile(path)
		if err != nil {
			t.Fatalf("读取列表失败: %v", err)
		}
		expected := []string{"10.0.0.1:8080", "10.0.0.2:8080", "10.0.0.3:8080"}
		if len(lines) != len(expected) {
			t.Fatalf("条目数 = %d, 期望 %d", len(lines), len(expected))
		}
		for i := range expected {
			if lines[i] != expected[i] {
				t.Errorf("条目[%d] = %q, 期望 %q", i, lines[i], expected[i])
			}
		}
	})

	t.Run("全部是注释视为空文件", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.txt")
		if err := os.WriteFile(path, []byte("# 只有注释\n\n"), 0644); err != nil {
			t.Fatalf("写入测试文件失败: %v", err)
		}
		if _, err := ReadListFile(path); err == nil {
			t.Fatal("无有效条目应返回错误")
		}
	})

	t.Run("文件不存在", func(t *testing.T) {
		if _, err := ReadListFile(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
			t.Fatal("缺失文件应返回错误")
		}
	})
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		expectError bool
	}{
		{"合法https", "https://www.estately.com", false},
		{"合法http带端口", "http://10.0.0.1:8080", false},
		{"缺少协议", "www.estately.com", true},
		{"不支持的协议", "ftp://example.com", true},
		{"缺少主机", "https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.expectError {
				t.Errorf("ValidateURL(%q) = %v, 期望出错 %v", tt.url, err, tt.expectError)
			}
		})
	}
}
