package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mioym/homeval/internal/engine"
	"github.com/mioym/homeval/internal/models"
	"github.com/mioym/homeval/internal/store"
)

// Config 应用程序配置
type Config struct {
	Store     StoreConfig         `mapstructure:"store"`
	Proxy     ProxyConfig         `mapstructure:"proxy"`
	Browser   BrowserConfig       `mapstructure:"browser"`
	Engine    models.EngineConfig `mapstructure:"engine"`
	Run       models.RunConfig    `mapstructure:"run"`
	Dedup     models.DedupConfig  `mapstructure:"dedup"`
	Resource  ResourceConfig      `mapstructure:"resource"`
	Telemetry TelemetryConfig     `mapstructure:"telemetry"`
	Debug     DebugConfig         `mapstructure:"debug"`
	Logging   LoggingConfig       `mapstructure:"logging"`
}

// ResourceConfig 资源监控配置
type ResourceConfig struct {
	SafetyReserveMemoryMB int     `mapstructure:"safety_reserve_memory_mb"` // 不可触碰的保留内存
	SafetyThresholdMB     int     `mapstructure:"safety_threshold_mb"`      // 低于该可用内存视为环境性故障
	CPULoadThreshold      int     `mapstructure:"cpu_load_threshold"`       // CPU负载阈值(%)
	MaxTabsLimit          int     `mapstructure:"max_tabs_limit"`           // 绝对最大标签页数
	TabMemoryUsageMB      int     `mapstructure:"tab_memory_usage_mb"`      // 单标签页平均内存消耗
	FDHeadroomRatio       float64 `mapstructure:"fd_headroom_ratio"`        // 文件描述符余量比例
	SampleIntervalSec     int     `mapstructure:"sample_interval_sec"`      // 后台采样周期
}

// StoreConfig 条目存储配置
type StoreConfig struct {
	MongoURI   string `mapstructure:"mongo_uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// ProxyConfig 代理来源配置
type ProxyConfig struct {
	VendorListFiles map[string]string `mapstructure:"vendor_list_files"` // 厂商名 -> 列表文件
	GlobalListFile  string            `mapstructure:"global_list_file"`
	SingleURL       string            `mapstructure:"single_url"`
	GatewayHost     string            `mapstructure:"gateway_host"`
	GatewayPorts    []int             `mapstructure:"gateway_ports"`
	GatewayUser     string            `mapstructure:"gateway_user"`
	GatewayPass     string            `mapstructure:"gateway_pass"`
	AllowedPorts    []int             `mapstructure:"allowed_ports"`
	Preflight       bool              `mapstructure:"preflight"`
	MaxCandidates   int               `mapstructure:"max_candidates"`
}

// BrowserConfig 浏览器会话配置
type BrowserConfig struct {
	BaseDir       string `mapstructure:"base_dir"`
	LaunchWaitSec int    `mapstructure:"launch_wait_sec"`
	HeadersFile   string `mapstructure:"headers_file"`
}

// TelemetryConfig 耗时遥测配置
type TelemetryConfig struct {
	SummaryEvery int `mapstructure:"summary_every"`
}

// DebugConfig 调试配置
type DebugConfig struct {
	DumpDir     string `mapstructure:"dump_dir"`    // 非空时失败任务落盘页面HTML
	Screenshots bool   `mapstructure:"screenshots"` // 配合dump_dir使用, 额外落盘截图
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// LoadConfig 加载配置文件
// 环境变量以HOMEVAL_前缀覆盖同名配置项 (如 HOMEVAL_STORE_MONGO_URI)
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".homeval"))
		}
	}

	v.SetEnvPrefix("HOMEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 存储配置默认值
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.database", "homeval")
	v.SetDefault("store.collection", "listings")
	v.SetDefault("store.timeout_sec", 10)

	// 代理配置默认值
	v.SetDefault("proxy.preflight", false)
	v.SetDefault("proxy.max_candidates", 5)

	// 浏览器配置默认值
	v.SetDefault("browser.base_dir", ".homeval")
	v.SetDefault("browser.launch_wait_sec", 30)
	v.SetDefault("browser.headers_file", "configs/headers.yaml")

	// 引擎配置默认值
	v.SetDefault("engine.page_pool_size", 4)
	v.SetDefault("engine.pages_per_proxy", 20)
	v.SetDefault("engine.nav_timeout_sec", 30)
	v.SetDefault("engine.results_timeout_sec", 20)
	v.SetDefault("engine.hard_timeout_sec", 90)
	v.SetDefault("engine.retry_submit", true)
	v.SetDefault("engine.headless", true)
	v.SetDefault("engine.keep_alive", false)

	// 运行配置默认值
	v.SetDefault("run.vendor", "estately")
	v.SetDefault("run.entry_url", "https://www.estately.com")
	v.SetDefault("run.canary_url", "https://www.estately.com")
	v.SetDefault("run.concurrency", 2)
	v.SetDefault("run.batch_size", 500)
	v.SetDefault("run.chunk_size", 25)
	v.SetDefault("run.cooldown_sec", 2)
	v.SetDefault("run.max_tries", 3)

	// 去重配置默认值
	v.SetDefault("dedup.enabled", true)
	v.SetDefault("dedup.ttl_minutes", 720)
	v.SetDefault("dedup.capacity", 100000)
	v.SetDefault("dedup.remember_failures", false)
	v.SetDefault("dedup.checkpoint_file", "")

	// 资源监控默认值
	v.SetDefault("resource.safety_reserve_memory_mb", 512)
	v.SetDefault("resource.safety_threshold_mb", 256)
	v.SetDefault("resource.cpu_load_threshold", 80)
	v.SetDefault("resource.max_tabs_limit", 16)
	v.SetDefault("resource.tab_memory_usage_mb", 100)
	v.SetDefault("resource.fd_headroom_ratio", 0.9)
	v.SetDefault("resource.sample_interval_sec", 5)

	// 遥测配置默认值
	v.SetDefault("telemetry.summary_every", 50)

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)
}

// Validate 校验整份配置
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Run.Validate(); err != nil {
		return err
	}
	if err := c.Dedup.Validate(); err != nil {
		return err
	}
	if c.Telemetry.SummaryEvery < 0 {
		return fmt.Errorf("telemetry.summary_every 不可为负数: %d", c.Telemetry.SummaryEvery)
	}
	return nil
}

// MonitorConfig 转换为资源监控器配置
func (c *Config) MonitorConfig() engine.MonitorConfig {
	const mb = 1024 * 1024
	return engine.MonitorConfig{
		SafetyReserveMemory: int64(c.Resource.SafetyReserveMemoryMB) * mb,
		SafetyThreshold:     int64(c.Resource.SafetyThresholdMB) * mb,
		CPULoadThreshold:    c.Resource.CPULoadThreshold,
		MaxTabsLimit:        c.Resource.MaxTabsLimit,
		TabMemoryUsage:      int64(c.Resource.TabMemoryUsageMB) * mb,
		FDHeadroomRatio:     c.Resource.FDHeadroomRatio,
	}
}

// MongoConfig 转换为存储层连接配置
func (c *Config) MongoConfig() store.MongoConfig {
	return store.MongoConfig{
		URI:        c.Store.MongoURI,
		Database:   c.Store.Database,
		Collection: c.Store.Collection,
		Timeout:    time.Duration(c.Store.TimeoutSec) * time.Second,
	}
}

// MergeCLIFlags 合并命令行参数到配置,命令行优先
// headless带默认值,只有用户显式传入(headlessSet)时才覆盖配置文件
func (c *Config) MergeCLIFlags(vendor string, concurrency, batchSize int, headless, headlessSet bool, singleItem string, logLevel string) {
	if vendor != "" {
		c.Run.Vendor = vendor
	}
	if concurrency > 0 {
		c.Run.Concurrency = concurrency
	}
	if batchSize > 0 {
		c.Run.BatchSize = batchSize
	}
	if headlessSet {
		c.Engine.Headless = headless
	}
	if singleItem != "" {
		c.Run.SingleItem = singleItem
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
}
