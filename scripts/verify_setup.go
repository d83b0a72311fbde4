package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  homeval 运行环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	// 检查Go版本
	goVersion := runtime.Version()
	fmt.Printf("✅ Go版本: %s\n", goVersion)
	if !strings.HasPrefix(goVersion, "go1.23") &&
		!strings.HasPrefix(goVersion, "go1.24") {
		fmt.Println("⚠️  警告: 建议使用Go 1.23+版本")
	}

	// 检查操作系统
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查Chrome/Chromium (rod优先附着系统浏览器,找不到时自动下载)
	browser := findBrowser()
	if browser != "" {
		fmt.Printf("✅ 浏览器已安装: %s\n", browser)
	} else {
		fmt.Println("⚠️  未找到Chrome/Chromium - 首次运行时将自动下载受控浏览器")
	}

	// 检查MongoDB客户端工具 (可选,仅排查用)
	if checkCommand("mongosh", "--version") {
		fmt.Println("✅ mongosh已安装")
	} else {
		fmt.Println("⚠️  mongosh未安装 - 不影响运行,仅影响手工排查")
	}

	// 检查项目依赖
	fmt.Println()
	fmt.Println("检查Go模块依赖...")
	if _, err := os.Stat("go.mod"); err == nil {
		fmt.Println("✅ go.mod文件存在")

		fmt.Println("正在下载依赖...")
		cmd := exec.Command("go", "mod", "download")
		if err := cmd.Run(); err != nil {
			fmt.Printf("❌ go mod download失败: %v\n", err)
			allOK = false
		} else {
			fmt.Println("✅ 依赖下载完成")
		}
	} else {
		fmt.Println("❌ go.mod文件不存在")
		allOK = false
	}

	// 检查项目结构
	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/homeval",
		"internal/core",
		"internal/engine",
		"internal/extract",
		"internal/proxy",
		"internal/store",
		"internal/utils",
		"internal/models",
		"configs",
		"scripts",
	}

	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	// 检查运行配置
	fmt.Println()
	fmt.Println("检查运行配置...")
	if _, err := os.Stat("configs/config.yaml"); err == nil {
		fmt.Println("✅ configs/config.yaml 存在")
	} else {
		fmt.Println("⚠️  configs/config.yaml 不存在 - 将使用内置默认值")
	}
	if os.Getenv("HOMEVAL_STORE_MONGO_URI") != "" {
		fmt.Println("✅ HOMEVAL_STORE_MONGO_URI 已设置")
	} else {
		fmt.Println("⚠️  HOMEVAL_STORE_MONGO_URI 未设置 - 默认连接 mongodb://localhost:27017")
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build ./cmd/homeval' 构建项目")
		fmt.Println("  2. 运行 './homeval --validate-config' 验证头部配置")
		fmt.Println("  3. 运行 './homeval --single \"123 Main St\"' 单项调试")
		os.Exit(0)
	} else {
		fmt.Println("❌ 环境验证失败,请解决上述问题。")
		os.Exit(1)
	}
}

// findBrowser 查找系统Chrome/Chromium可执行文件
func findBrowser() string {
	candidates := []string{
		"google-chrome",
		"google-chrome-stable",
		"chromium",
		"chromium-browser",
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// checkCommand 检查命令是否可用
func checkCommand(name string, args ...string) bool {
	cmd := exec.Command(name, args...)
	err := cmd.Run()
	return err == nil
}
