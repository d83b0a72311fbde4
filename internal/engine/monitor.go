package engine

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Monitor 系统资源监控器
// 职责: 实时监控内存、CPU和文件描述符,计算标签页上限,识别环境性故障
type Monitor struct {
	config MonitorConfig

	totalMemory uint64

	mu           sync.RWMutex
	lastMemStats runtime.MemStats

	cpuMu        sync.RWMutex
	lastCPUUsage float64

	fdMu       sync.RWMutex
	lastNumFDs int32
	fdLimit    int32

	cacheMu       sync.RWMutex
	cachedMaxTabs int
	lastCacheTime time.Time

	cancelFunc context.CancelFunc
	isRunning  bool
	runMu      sync.Mutex
}

// MonitorConfig 资源监控器配置
type MonitorConfig struct {
	SafetyReserveMemory int64   // 安全保留内存(字节)
	SafetyThreshold     int64   // 安全阈值(字节)
	CPULoadThreshold    int     // CPU负载阈值(%)
	MaxTabsLimit        int     // 绝对最大标签页数
	TabMemoryUsage      int64   // 单个标签页平均内存消耗(字节)
	FDHeadroomRatio     float64 // 文件描述符余量比例,占用超过该比例视为环境性故障
}

// NewMonitor 创建资源监控器实例
func NewMonitor(config MonitorConfig) *Monitor {
	if config.TabMemoryUsage == 0 {
		config.TabMemoryUsage = 100 * 1024 * 1024 // 100MB
	}
	if config.FDHeadroomRatio <= 0 || config.FDHeadroomRatio >= 1 {
		config.FDHeadroomRatio = 0.9
	}

	vmStat, err := mem.VirtualMemory()
	var totalMem uint64
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,使用默认值")
		totalMem = 4 * 1024 * 1024 * 1024 // 默认4GB
	} else {
		totalMem = vmStat.Total
		log.Info().Msgf("系统总内存: %.2f GB", float64(totalMem)/(1024*1024*1024))
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m := &Monitor{
		config:       config,
		totalMemory:  totalMem,
		lastMemStats: memStats,
	}
	m.sampleFDs()
	return m
}

// StartMonitoring 启动后台采样goroutine,幂等
func (m *Monitor) StartMonitoring(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFunc = cancel
	m.isRunning = true

	go m.monitoringLoop(ctx, interval)
}

// StopMonitoring 停止资源监控
func (m *Monitor) StopMonitoring() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.isRunning && m.cancelFunc != nil {
		m.cancelFunc()
		m.isRunning = false
		m.cancelFunc = nil
	}
}

func (m *Monitor) monitoringLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)

			m.mu.Lock()
			m.lastMemStats = memStats
			m.mu.Unlock()

			usage := m.sampleCPU()
			m.cpuMu.Lock()
			m.lastCPUUsage = usage
			m.cpuMu.Unlock()

			m.sampleFDs()
		}
	}
}

// sampleCPU 获取系统CPU平均使用率(百分比)
func (m *Monitor) sampleCPU() float64 {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(percentages) == 0 {
		return 0.0
	}
	return percentages[0]
}

// sampleFDs 采样当前进程的文件描述符占用
func (m *Monitor) sampleFDs() {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}
	numFDs, err := proc.NumFDs()
	if err != nil {
		// 非Linux平台可能不支持,跳过本项检查
		return
	}

	var limit int32
	if limits, err := proc.RlimitUsage(false); err == nil {
		for _, r := range limits {
			if r.Resource == process.RLIMIT_NOFILE {
				limit = int32(r.Soft)
				break
			}
		}
	}

	m.fdMu.Lock()
	m.lastNumFDs = numFDs
	if limit > 0 {
		m.fdLimit = limit
	}
	m.fdMu.Unlock()
}

// CalculateMaxTabs 动态计算当前允许的最大标签页数
// 结果缓存1秒,避免高频调用带来的开销
func (m *Monitor) CalculateMaxTabs() int {
	m.cacheMu.RLock()
	if time.Since(m.lastCacheTime) < time.Second && m.cachedMaxTabs > 0 {
		cached := m.cachedMaxTabs
		m.cacheMu.RUnlock()
		return cached
	}
	m.cacheMu.RUnlock()

	m.mu.RLock()
	memStats := m.lastMemStats
	m.mu.RUnlock()

	availableMemory := int64(m.totalMemory) - int64(memStats.Alloc) - m.config.SafetyReserveMemory

	maxTabsByMemory := 1
	if availableMemory > m.config.SafetyThreshold {
		surplus := availableMemory - m.config.SafetyThreshold
		maxTabsByMemory = int(surplus / m.config.TabMemoryUsage)
		if maxTabsByMemory < 1 {
			maxTabsByMemory = 1
		}
	}

	result := maxTabsByMemory
	if n := runtime.NumCPU(); n < result {
		result = n
	}
	if m.config.MaxTabsLimit > 0 && m.config.MaxTabsLimit < result {
		result = m.config.MaxTabsLimit
	}
	if result < 1 {
		result = 1
	}

	m.cacheMu.Lock()
	m.cachedMaxTabs = result
	m.lastCacheTime = time.Now()
	m.cacheMu.Unlock()

	return result
}

// CheckEnvironment 检查宿主环境是否允许继续运行
// 内存与文件描述符耗尽属于环境性故障,换代理无济于事,应直接终止
func (m *Monitor) CheckEnvironment() error {
	m.mu.RLock()
	memStats := m.lastMemStats
	m.mu.RUnlock()

	availableMemory := int64(m.totalMemory) - int64(memStats.Alloc) - m.config.SafetyReserveMemory
	if availableMemory < m.config.SafetyThreshold {
		return fmt.Errorf("%w: 可用内存不足(当前%dMB)", ErrEnvironment, availableMemory/(1024*1024))
	}

	m.fdMu.RLock()
	numFDs, limit := m.lastNumFDs, m.fdLimit
	m.fdMu.RUnlock()

	if limit > 0 && float64(numFDs) > float64(limit)*m.config.FDHeadroomRatio {
		return fmt.Errorf("%w: 文件描述符即将耗尽(%d/%d)", ErrEnvironment, numFDs, limit)
	}

	return nil
}

// CheckResourceAvailability 检查当前资源是否允许创建新标签页
func (m *Monitor) CheckResourceAvailability() (canCreate bool, reason string) {
	if err := m.CheckEnvironment(); err != nil {
		return false, err.Error()
	}

	if m.config.CPULoadThreshold > 0 && m.config.CPULoadThreshold < 200 {
		m.cpuMu.RLock()
		cpuUsage := m.lastCPUUsage
		m.cpuMu.RUnlock()

		if cpuUsage > float64(m.config.CPULoadThreshold) {
			return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", cpuUsage)
		}
	}

	return true, ""
}
