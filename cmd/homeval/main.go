package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mioym/homeval/internal/config"
	"github.com/mioym/homeval/internal/core"
	"github.com/mioym/homeval/internal/engine"
	"github.com/mioym/homeval/internal/extract"
	"github.com/mioym/homeval/internal/models"
	"github.com/mioym/homeval/internal/proxy"
	"github.com/mioym/homeval/internal/store"
	"github.com/mioym/homeval/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// 运行参数
	vendor      string
	singleItem  string
	addressFile string
	batchSize   int
	concurrency int
	headless    bool
	outputDir   string

	// 配置验证
	validateConfig bool
)

var rootCmd = &cobra.Command{
	Use:   "homeval",
	Short: "房产估值批量采集引擎",
	Long: `homeval - 代理感知的房产估值批量采集引擎 (Go版本)

按地址在估值站点上查询房产估值,并回写到条目存储,支持:
  • 粘性代理供给与健康轮换
  • 浏览器会话跨进程复用(描述文件+启动锁)
  • 标签页池与单代理用量配额
  • TTL去重缓存与断点快照
  • 单项调试模式与地址文件试运行

使用示例:
  # 从存储拉取待处理条目批量采集
  homeval --vendor estately

  # 单地址调试(绕过存储)
  homeval --single "123 Main St, Austin, TX"

  # 从地址文件试运行(不连接存储)
  homeval --address-file addresses.txt

  # 验证HTTP头部配置
  homeval --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env仅用于本地开发注入代理凭证等敏感项
		_ = godotenv.Load()

		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := utils.LogConfig{
			Level:      cfg.Logging.Level,
			LogDir:     cfg.Logging.LogDir,
			MaxSize:    cfg.Logging.Rotation.MaxSize,
			MaxBackups: cfg.Logging.Rotation.MaxBackups,
			MaxAge:     cfg.Logging.Rotation.MaxAge,
			Compress:   cfg.Logging.Rotation.Compress,
		}

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		cfg.MergeCLIFlags(vendor, concurrency, batchSize, headless, cmd.Flags().Changed("headless"), singleItem, logLevel)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("配置校验失败: %w", err)
		}

		// 如果用户请求验证头部配置
		if validateConfig {
			return runValidateConfig(cfg)
		}

		// Ctrl+C优雅退出: 取消运行上下文,等调度器收尾
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runApp(ctx, cfg)
	},
}

// runValidateConfig 加载并展示脱敏后的HTTP头部配置
func runValidateConfig(cfg *core.Config) error {
	utils.Info("🔍 验证HTTP头部配置...")

	loader := config.NewHeaderProfileLoader(cfg.Browser.HeadersFile)
	profile, err := loader.Load()
	if err != nil {
		return fmt.Errorf("头部配置验证失败: %w", err)
	}

	redactor := utils.NewHeaderRedactor()
	utils.Info("✅ 配置验证通过!")
	utils.Infof("当前有效的HTTP头部 (%d个):", len(profile.Headers))
	for name, value := range profile.Headers {
		utils.Infof("  %s: %s", name, redactor.RedactHeaderValue(name, value))
	}
	return nil
}

// runApp 组装全部组件并执行一轮调度
func runApp(ctx context.Context, cfg *core.Config) error {
	profile, err := siteProfile(cfg.Run.Vendor)
	if err != nil {
		return err
	}
	applyProfileDefaults(cfg, profile)

	// HTTP头部画像: 加载失败降级为无自定义头部
	headerLoader := config.NewHeaderProfileLoader(cfg.Browser.HeadersFile)
	headers, err := headerLoader.Load()
	if err != nil {
		utils.Warnf("加载HTTP头部配置失败,使用浏览器默认头部: %v", err)
		headers = &config.HeaderProfile{}
	}

	// 代理池与粘性供给
	sources, err := buildProxySources(cfg)
	if err != nil {
		return err
	}
	pool, err := proxy.BuildPool(cfg.Run.Vendor, sources)
	if err != nil {
		return fmt.Errorf("构建代理池失败 (检查proxy配置段): %w", err)
	}
	utils.Infof("🌐 代理池就绪: %d 个端点 (来源=%s)", pool.Size(), pool.Source)

	runSalt := uuid.New().String()
	supplier := proxy.NewSticky(pool, runSalt)

	// 资源监控、会话注册表和代理健康轮换器
	monitor := engine.NewMonitor(cfg.MonitorConfig())
	registry := engine.NewSessionRegistry(engine.SessionConfig{
		BaseDir:    cfg.Browser.BaseDir,
		Headless:   cfg.Engine.Headless,
		KeepAlive:  cfg.Engine.KeepAlive,
		LaunchWait: time.Duration(cfg.Browser.LaunchWaitSec) * time.Second,
	})
	defer registry.Shutdown()

	rotator := engine.NewRotator(supplier, registry, monitor, engine.RotatorConfig{
		MaxCandidates: cfg.Run.MaxTries,
		CanaryURL:     cfg.Run.CanaryURL,
		Preflight:     cfg.Proxy.Preflight,
		PrecheckURL:   cfg.Run.CanaryURL,
	})

	// 估值提取链: CSS选择器优先,标签邻近兜底
	chain := extract.NewChain(
		extract.NewSelectorStrategy("css选择器", profile.ValueSelectors),
		extract.NewLabelProximityStrategy(profile.ValueLabel),
	)

	executor := engine.NewExecutor(chain, engine.ExecutorConfig{
		EntryURL:           cfg.Run.EntryURL,
		InputSelectors:     profile.InputSelectors,
		SuggestionSelector: profile.SuggestionSelector,
		BannerSelectors:    profile.BannerSelectors,
		NavTimeout:         time.Duration(cfg.Engine.NavTimeout) * time.Second,
		ResultsTimeout:     time.Duration(cfg.Engine.ResultsTimeout) * time.Second,
		HardTimeout:        time.Duration(cfg.Engine.HardTimeout) * time.Second,
		RetrySubmit:        cfg.Engine.RetrySubmit,
		DebugDir:           cfg.Debug.DumpDir,
		DebugScreenshots:   cfg.Debug.Screenshots,
		Headers:            headers.AsMap(),
		BlockResources:     true,
	})

	// 条目存储: 地址文件试运行走内存存储,常规运行连MongoDB
	st, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			utils.Warnf("关闭条目存储失败: %v", err)
		}
	}()

	// 去重缓存: 有快照则先恢复
	dedup := core.NewDedupCache(cfg.Dedup)
	if cfg.Dedup.CheckpointFile != "" {
		if err := dedup.LoadFrom(cfg.Dedup.CheckpointFile); err != nil {
			utils.Warnf("加载去重快照失败,从空缓存开始: %v", err)
		} else if dedup.Size() > 0 {
			utils.Infof("🗄️ 去重快照已恢复: %d 个条目", dedup.Size())
		}
	}

	scheduler := core.NewScheduler(
		st,
		rotator,
		core.NewEngineRunnerFactory(executor, cfg.Engine.PagePoolSize, monitor),
		dedup,
		core.NewTelemetry(cfg.Telemetry.SummaryEvery),
		utils.NewReporter(outputDir, cfg.Run.Vendor),
		cfg,
	)

	// 后台资源采样贯穿整轮调度,标签页池容量依赖其读数
	monitor.StartMonitoring(time.Duration(cfg.Resource.SampleIntervalSec) * time.Second)
	defer monitor.StopMonitoring()

	report, runErr := scheduler.Run(ctx)
	printRunSummary(report)

	if runErr != nil {
		return fmt.Errorf("采集运行失败: %w", runErr)
	}
	utils.Info("✨ 采集任务完成!")
	return nil
}

// buildProxySources 从配置组装代理来源
func buildProxySources(cfg *core.Config) (proxy.Sources, error) {
	sources := proxy.Sources{
		SingleURL:    cfg.Proxy.SingleURL,
		GatewayHost:  cfg.Proxy.GatewayHost,
		GatewayPorts: cfg.Proxy.GatewayPorts,
		GatewayUser:  cfg.Proxy.GatewayUser,
		GatewayPass:  cfg.Proxy.GatewayPass,
		AllowedPorts: cfg.Proxy.AllowedPorts,
	}

	if len(cfg.Proxy.VendorListFiles) > 0 {
		sources.VendorLists = make(map[string][]string, len(cfg.Proxy.VendorListFiles))
		for name, file := range cfg.Proxy.VendorListFiles {
			lines, err := utils.ReadListFile(file)
			if err != nil {
				return proxy.Sources{}, fmt.Errorf("读取厂商代理列表失败 [%s]: %w", name, err)
			}
			sources.VendorLists[name] = lines
		}
	}

	if cfg.Proxy.GlobalListFile != "" {
		lines, err := utils.ReadListFile(cfg.Proxy.GlobalListFile)
		if err != nil {
			return proxy.Sources{}, fmt.Errorf("读取全局代理列表失败: %w", err)
		}
		sources.GlobalList = lines
	}

	return sources, nil
}

// buildStore 按运行模式选择条目存储实现
func buildStore(ctx context.Context, cfg *core.Config) (store.Store, error) {
	if addressFile != "" {
		addresses, err := utils.ReadListFile(addressFile)
		if err != nil {
			return nil, fmt.Errorf("读取地址文件失败: %w", err)
		}
		items := make([]models.WorkItem, 0, len(addresses))
		for i, addr := range addresses {
			items = append(items, models.WorkItem{
				ID:      fmt.Sprintf("file-%d", i+1),
				Address: addr,
			})
		}
		utils.Infof("📥 地址文件试运行: %d 个地址 (结果不回写存储)", len(items))
		return store.NewMemoryStore(items), nil
	}

	st, err := store.NewMongoStore(ctx, cfg.MongoConfig())
	if err != nil {
		return nil, fmt.Errorf("连接条目存储失败: %w", err)
	}
	return st, nil
}

// printRunSummary 终端输出本轮统计
func printRunSummary(report *models.RunReport) {
	if report == nil {
		return
	}
	s := report.Stats
	fmt.Println("\n==================================================")
	fmt.Println("📊 采集统计")
	fmt.Println("==================================================")
	fmt.Printf("✅ 拉取条目数: %d\n", s.Fetched)
	fmt.Printf("✅ 取得估值: %d\n", s.Succeeded)
	fmt.Printf("ℹ️  查无数据: %d\n", s.NoData)
	fmt.Printf("🔁 去重跳过: %d\n", s.Deduped)
	fmt.Printf("🚫 风控拦截: %d\n", s.Blocked)
	fmt.Printf("⏱️  硬超时: %d\n", s.TimedOut)
	fmt.Printf("❌ 其他失败: %d\n", s.Failed)
	fmt.Printf("🔗 代理轮换: %d 次\n", s.Rotations)
	fmt.Printf("⏱️  总耗时: %.2f秒\n", s.Duration)
	fmt.Println("==================================================")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("homeval %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
		fmt.Println("Go实现版本 - 代理感知房产估值采集引擎")
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&validateConfig, "validate-config", false, "验证HTTP头部配置文件")

	// 运行参数
	rootCmd.Flags().StringVar(&vendor, "vendor", "", "估值站点键名 (默认: estately)")
	rootCmd.Flags().StringVarP(&singleItem, "single", "s", "", "单地址调试模式,绕过存储批处理")
	rootCmd.Flags().StringVarP(&addressFile, "address-file", "f", "", "地址列表文件,试运行模式(不连接存储)")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 0, "单轮最多拉取的条目数")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "并行worker数 (1-16)")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "output", "报告输出目录")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
