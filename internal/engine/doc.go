// Package engine 提供浏览器会话、标签页池与单任务执行能力
//
// # 概述
//
// engine包围绕go-rod实现代理感知的浏览器任务执行:每个代理出口绑定
// 一个浏览器会话,会话内维护固定容量的标签页池,单任务在标签页上
// 完成 输入地址 -> 提交 -> 等待结果 -> 提取估值 的状态机。
//
// # 核心组件
//
// ## SessionRegistry (会话注册表)
//
// 同一代理标签只维护一个浏览器实例。先到者抢占启动锁(O_CREATE|O_EXCL)
// 并把控制URL写入描述文件,后到者按描述文件附着;描述文件先写临时文件
// 再rename,附着方不会读到半截内容。
//
//	registry := NewSessionRegistry(SessionConfig{BaseDir: workDir, Headless: true})
//	session, err := registry.Obtain("gw-10001", "http://gw.example.com:10001")
//	defer registry.Shutdown()
//
// ## PagePool (标签页池)
//
// 固定容量、懒创建的标签页池。
// 不变量: 空闲数+占用数+创建中数 <= 容量。
// 获取顺序: 空闲复用 > 懒创建 > FIFO排队等待;归还时优先直接交接给
// 最早的排队者;重复归还被忽略。
//
//	pool := NewPagePool(4, BrowserPageFactory(session.Browser))
//	defer pool.Close()
//
//	handle, err := pool.Acquire(ctx)
//	if err != nil { /* 处理错误 */ }
//	defer pool.Release(handle)
//
// ## Rotator (代理健康轮换器)
//
// 产出"已验证可用"的浏览器会话: 逐候选代理、逐连接串编码尝试,
// 每个候选用金丝雀导航验证。隧道类失败换下一个候选并做随机化退避,
// 环境性故障(无显示、描述符耗尽)立即上抛终止本次运行。
//
//	rotator := NewRotator(supplier, registry, monitor, RotatorConfig{
//	    CanaryURL: "https://www.estately.com",
//	})
//	session, endpoint, err := rotator.OpenHealthy(ctx, chunkKey)
//
// ## Executor (任务执行器)
//
// 单任务状态机,永不panic,总是返回可归档的结果。硬上限到期时放弃
// 执行中的步骤并以timeout状态收尾;结果超时且开启RetrySubmit时
// 原地重试提交一次(更短的等待窗口)。
//
//	executor := NewExecutor(chain, ExecutorConfig{EntryURL: entry})
//	outcome := executor.Execute(ctx, handle, item)
//
// ## Monitor (资源监控器)
//
// 实时监控内存、CPU和文件描述符占用。内存与描述符耗尽被归为
// 环境性故障(ErrEnvironment),轮换器在获取会话前检查。
//
// # 错误分类
//
//   - ErrTunnel: 代理隧道不可用,更换出口后可恢复
//   - ErrEnvironment: 宿主环境性故障,更换代理无济于事
//   - ErrBotWall: 目标站点返回风控拦截页
//   - ErrLaunchTimeout: 等待他人完成浏览器启动超时
//
// 浏览器把底层网络错误塞进字符串,ClassifyNavError按特征片段归类。
//
// # 并发安全
//
// 所有核心组件都是并发安全的:
//   - PagePool: sync.Mutex + FIFO等待队列
//   - SessionRegistry: sync.Mutex + 文件系统锁
//   - Monitor: sync.RWMutex + 后台采样goroutine
package engine
