package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mioym/homeval/internal/config"
	"github.com/mioym/homeval/internal/core"
	"github.com/mioym/homeval/internal/extract"
	"github.com/mioym/homeval/internal/proxy"
	"github.com/mioym/homeval/internal/utils"
)

var (
	probeURL    string
	probeDirect bool
)

// probeCmd 纯HTTP通道的估值提取试探
// 不启动浏览器,用于快速验证提取链和代理链路;
// 只对不强制JS渲染的厂商结果页有效
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "HTTP通道试探结果页 (不启动浏览器)",
	Long: `经代理直接抓取结果页HTML并执行估值提取链。

用于站点改版后快速验证选择器,或排查代理链路问题:
  homeval probe --url "https://www.estately.com/.../123-main-st"
  homeval probe --url "..." --direct   # 跳过代理直连`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if probeURL == "" {
			return fmt.Errorf("必须通过 --url 指定结果页URL")
		}
		if err := utils.ValidateURL(probeURL); err != nil {
			return fmt.Errorf("结果页URL无效: %w", err)
		}

		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		cfg.MergeCLIFlags(vendor, 0, 0, true, true, "", logLevel)

		profile, err := siteProfile(cfg.Run.Vendor)
		if err != nil {
			return err
		}

		headers, err := config.NewHeaderProfileLoader(cfg.Browser.HeadersFile).Load()
		if err != nil {
			return fmt.Errorf("加载HTTP头部配置失败: %w", err)
		}

		// --direct 或代理配置为空时直连
		var ep *proxy.Endpoint
		if !probeDirect {
			sources, err := buildProxySources(cfg)
			if err != nil {
				return err
			}
			pool, err := proxy.BuildPool(cfg.Run.Vendor, sources)
			if err == nil && pool.Size() > 0 {
				ep = &pool.Endpoints[0]
				utils.Infof("🌐 试探经由代理: %s", ep.Label)
			} else {
				utils.Warn("无可用代理,试探改为直连")
			}
		}

		chain := extract.NewChain(
			extract.NewSelectorStrategy("css选择器", profile.ValueSelectors),
			extract.NewLabelProximityStrategy(profile.ValueLabel),
		)
		prober := extract.NewProber(chain, headers.AsHTTPHeader(),
			time.Duration(cfg.Engine.NavTimeout)*time.Second, ep)

		fields, err := prober.Probe(probeURL)
		if err != nil {
			return fmt.Errorf("试探失败: %w", err)
		}

		fmt.Printf("✅ 提取成功 (策略=%s)\n", fields.Strategy)
		fmt.Printf("   原始文本: %s\n", fields.RawValue)
		fmt.Printf("   估值: %d\n", fields.Value)
		return nil
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeURL, "url", "", "结果页URL (必需)")
	probeCmd.Flags().StringVar(&vendor, "vendor", "", "估值站点键名 (默认: estately)")
	probeCmd.Flags().BoolVar(&probeDirect, "direct", false, "跳过代理直连")

	rootCmd.AddCommand(probeCmd)
}
