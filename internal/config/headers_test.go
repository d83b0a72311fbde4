package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHeaderProfileLoaderLoad(t *testing.T) {
	t.Run("首次运行自动生成配置文件", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		loader := NewHeaderProfileLoader(configPath)

		if _, err := os.Stat(configPath); !os.IsNotExist(err) {
			t.Fatal("配置文件不应该存在")
		}

		profile, err := loader.Load()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}

		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			t.Fatal("配置文件应该被自动生成")
		}
		if profile.Headers == nil {
			t.Fatal("Headers map应该被初始化")
		}
		// 内置模板带有浏览器User-Agent
		if _, ok := profile.Headers["user-agent"]; !ok {
			t.Error("模板应包含User-Agent头部")
		}
	})

	t.Run("加载已存在的配置文件", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		content := `headers:
  User-Agent: "Test Browser/1.0"
  Accept-Language: "en-US"
`
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("写入测试配置失败: %v", err)
		}

		profile, err := NewHeaderProfileLoader(configPath).Load()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}

		// viper将键名转换为小写
		if profile.Headers["user-agent"] != "Test Browser/1.0" {
			t.Errorf("期望 user-agent='Test Browser/1.0', 实际='%s'", profile.Headers["user-agent"])
		}
		if profile.Headers["accept-language"] != "en-US" {
			t.Errorf("期望 accept-language='en-US', 实际='%s'", profile.Headers["accept-language"])
		}
	})

	t.Run("YAML格式错误返回错误", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		bad := `headers:
  User-Agent: "missing quote
`
		if err := os.WriteFile(configPath, []byte(bad), 0644); err != nil {
			t.Fatalf("写入错误配置失败: %v", err)
		}
		if _, err := NewHeaderProfileLoader(configPath).Load(); err == nil {
			t.Fatal("期望返回错误,但成功了")
		}
	})

	t.Run("空配置文件处理", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		if err := os.WriteFile(configPath, []byte("headers:"), 0644); err != nil {
			t.Fatalf("写入空配置失败: %v", err)
		}

		profile, err := NewHeaderProfileLoader(configPath).Load()
		if err != nil {
			t.Fatalf("加载空配置失败: %v", err)
		}
		if profile.Headers == nil {
			t.Fatal("Headers map应该被初始化为空map")
		}
	})

	t.Run("超大配置文件被拒绝", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		large := make([]byte, MaxConfigFileSize+1)
		if err := os.WriteFile(configPath, large, 0644); err != nil {
			t.Fatalf("写入大配置失败: %v", err)
		}
		if _, err := NewHeaderProfileLoader(configPath).Load(); err == nil {
			t.Fatal("期望超大配置文件被拒绝,但成功了")
		}
	})

	t.Run("禁止头部被拒绝", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		content := `headers:
  Host: "evil.example.com"
`
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("写入测试配置失败: %v", err)
		}
		if _, err := NewHeaderProfileLoader(configPath).Load(); err == nil {
			t.Fatal("Host头部应被校验拒绝")
		}
	})
}

func TestHeaderProfileConversions(t *testing.T) {
	profile := &HeaderProfile{Headers: map[string]string{
		"user-agent": "Test Browser/1.0",
		"accept":     "*/*",
	}}

	m := profile.AsMap()
	if len(m) != 2 || m["user-agent"] != "Test Browser/1.0" {
		t.Fatalf("AsMap = %v", m)
	}
	// 副本修改不影响原画像
	m["user-agent"] = "tampered"
	if profile.Headers["user-agent"] != "Test Browser/1.0" {
		t.Fatal("AsMap应返回副本")
	}

	h := profile.AsHTTPHeader()
	if h.Get("User-Agent") != "Test Browser/1.0" {
		t.Fatalf("AsHTTPHeader缺少头部: %v", h)
	}
}
