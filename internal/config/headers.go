package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/viper"

	"github.com/mioym/homeval/internal/utils"
)

const (
	// DefaultHeadersFile 默认头部配置文件路径
	DefaultHeadersFile = "configs/headers.yaml"

	// MaxConfigFileSize 配置文件最大大小 (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024
)

//go:embed headers_template.yaml
var defaultHeaderTemplate string

// HeaderProfile 请求头画像
// 浏览器通道经请求拦截注入,HTTP探测通道直接设置
type HeaderProfile struct {
	Headers map[string]string `mapstructure:"headers"`
}

// AsMap 返回头部map副本
func (p *HeaderProfile) AsMap() map[string]string {
	out := make(map[string]string, len(p.Headers))
	for k, v := range p.Headers {
		out[k] = v
	}
	return out
}

// AsHTTPHeader 转换为http.Header
func (p *HeaderProfile) AsHTTPHeader() http.Header {
	h := make(http.Header, len(p.Headers))
	for k, v := range p.Headers {
		h.Set(k, v)
	}
	return h
}

// HeaderProfileLoader 头部配置文件加载器
// 负责加载、校验和脱敏记录HTTP头部配置
type HeaderProfileLoader struct {
	configPath string
	validator  *utils.HeaderValidator
	redactor   *utils.HeaderRedactor
}

// NewHeaderProfileLoader 创建配置文件加载器
func NewHeaderProfileLoader(configPath string) *HeaderProfileLoader {
	if configPath == "" {
		configPath = DefaultHeadersFile
	}
	return &HeaderProfileLoader{
		configPath: configPath,
		validator:  utils.NewHeaderValidator(),
		redactor:   utils.NewHeaderRedactor(),
	}
}

// EnsureConfigExists 确保配置文件存在,如不存在则自动生成模板
func (hl *HeaderProfileLoader) EnsureConfigExists() error {
	if _, err := os.Stat(hl.configPath); os.IsNotExist(err) {
		dir := filepath.Dir(hl.configPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("无法创建配置目录 [%s]: %w", dir, err)
		}

		if err := os.WriteFile(hl.configPath, []byte(defaultHeaderTemplate), 0644); err != nil {
			return fmt.Errorf("无法生成配置文件 [%s]: %w", hl.configPath, err)
		}
	}
	return nil
}

// ValidateFileSize 验证配置文件大小是否在限制内
func (hl *HeaderProfileLoader) ValidateFileSize() error {
	info, err := os.Stat(hl.configPath)
	if err != nil {
		return fmt.Errorf("无法读取配置文件信息 [%s]: %w", hl.configPath, err)
	}

	if info.Size() > MaxConfigFileSize {
		return fmt.Errorf("配置文件过大 [%s]: %d 字节 (最大 %d 字节)",
			hl.configPath, info.Size(), MaxConfigFileSize)
	}

	return nil
}

// Load 加载并校验头部画像
// 执行流程:
//  1. 确保配置文件存在 (不存在则自动创建模板)
//  2. 验证文件大小是否在限制内
//  3. 使用Viper解析YAML
//  4. 逐项执行RFC 7230校验
//  5. 脱敏记录生效的头部
func (hl *HeaderProfileLoader) Load() (*HeaderProfile, error) {
	if err := hl.EnsureConfigExists(); err != nil {
		return nil, err
	}

	if err := hl.ValidateFileSize(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(hl.configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		// 配置文件被其他进程占用时,优雅降级使用空画像
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			utils.Warnf("配置文件被锁定 [%s], 使用默认头部", hl.configPath)
			return &HeaderProfile{Headers: make(map[string]string)}, nil
		}
		return nil, fmt.Errorf("读取头部配置失败 [%s]: %w", hl.configPath, err)
	}

	var profile HeaderProfile
	if err := v.Unmarshal(&profile); err != nil {
		return nil, fmt.Errorf("头部配置绑定失败 [%s]: %w", hl.configPath, err)
	}
	if profile.Headers == nil {
		profile.Headers = make(map[string]string)
	}

	// 逐项校验,任一非法项视为配置错误
	for name, value := range profile.Headers {
		if err := hl.validator.ValidateHeader(name, value); err != nil {
			return nil, err
		}
	}

	if len(profile.Headers) > 0 {
		utils.Infof("请求头画像已加载 (%d 项): %s",
			len(profile.Headers), hl.redactor.RedactToString(profile.AsHTTPHeader()))
	}

	return &profile, nil
}
