package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xpak/pkg/pak/xcatalog"
	"github.com/omeyang/xpak/pkg/pak/xloader"
	"github.com/omeyang/xpak/pkg/pak/xpak"
)

// exitError 表示需要非零退出码但已完成输出的场景。
// 命令内部已完成所有输出，main 只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// usageError 表示命令参数错误（退出码 2）。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createVerifyCommand(),
		createResolveCommand(),
		createInspectCommand(),
		createWarmCommand(),
	}
}

// createVerifyCommand 创建 verify 子命令。
func createVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:    "verify",
		Aliases: []string{"v"},
		Usage:   "校验清单完整性（未知依赖、循环依赖、包文件与摘要）",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			manifest, err := loadManifest(cmd)
			if err != nil {
				return err
			}
			return cmdVerify(ctx, manifest, cmd.String("root"), cmd.Duration("timeout"))
		},
	}
}

// createResolveCommand 创建 resolve 子命令。
func createResolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Aliases:   []string{"r"},
		Usage:     "打印包的依赖闭包（拓扑序）",
		ArgsUsage: "<key>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			manifest, err := loadManifest(cmd)
			if err != nil {
				return err
			}
			key := cmd.Args().First()
			if key == "" {
				return &usageError{msg: "resolve 命令需要指定包 key"}
			}
			return cmdResolve(manifest, key)
		},
	}
}

// createInspectCommand 创建 inspect 子命令。
func createInspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Aliases:   []string{"i"},
		Usage:     "查看包的元数据（直接依赖、大小、摘要）",
		ArgsUsage: "<key>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			manifest, err := loadManifest(cmd)
			if err != nil {
				return err
			}
			key := cmd.Args().First()
			if key == "" {
				return &usageError{msg: "inspect 命令需要指定包 key"}
			}
			return cmdInspect(manifest, key)
		},
	}
}

// createWarmCommand 创建 warm 子命令。
func createWarmCommand() *cli.Command {
	return &cli.Command{
		Name:      "warm",
		Aliases:   []string{"w"},
		Usage:     "预热缓存并打印统计信息",
		ArgsUsage: "<key>...",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "concurrency",
				Aliases: []string{"c"},
				Usage:   "并发加载数",
				Value:   4,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			manifest, err := loadManifest(cmd)
			if err != nil {
				return err
			}
			keys := cmd.Args().Slice()
			if len(keys) == 0 {
				return &usageError{msg: "warm 命令需要指定至少一个包 key"}
			}
			return cmdWarm(ctx, manifest, cmd.String("root"), keys,
				cmd.Int("concurrency"), cmd.Duration("timeout"))
		},
	}
}

// loadManifest 读取全局 --manifest 指定的清单。
func loadManifest(cmd *cli.Command) (*xcatalog.Manifest, error) {
	path := cmd.String("manifest")
	if path == "" {
		return nil, &usageError{msg: "缺少 --manifest 参数"}
	}
	manifest, err := xcatalog.NewManifest(path)
	if err != nil {
		return nil, fmt.Errorf("读取清单失败: %w", err)
	}
	return manifest, nil
}

// dirLoader 在 root 上创建目录加载器，摘要校验来自清单。
func dirLoader(root string, manifest *xcatalog.Manifest) (*xloader.Dir, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("获取根目录绝对路径失败: %w", err)
	}
	return xloader.NewDir(absRoot,
		xloader.WithZstdExt(".zst"),
		xloader.WithDigests(manifest),
	)
}

// cmdVerify 校验清单完整性。
//
// 结构校验：每个包的依赖闭包可解析（无未知依赖、无循环依赖）。
// 若指定了 --root，再逐包加载文件并校验摘要。
// 发现任何问题时打印明细并返回退出码 1。
func cmdVerify(ctx context.Context, manifest *xcatalog.Manifest, root string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resolver, err := xcatalog.NewResolver(manifest)
	if err != nil {
		return err
	}

	problems := 0
	keys := manifest.Keys()

	for _, key := range keys {
		if _, err := resolver.Resolve(key); err != nil {
			fmt.Printf("包 %s: %v\n", key, err)
			problems++
		}
	}

	if root != "" {
		loader, err := dirLoader(root, manifest)
		if err != nil {
			return err
		}
		defer loader.Close()

		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := loader.Load(ctx, key); err != nil {
				fmt.Printf("包 %s: %v\n", key, err)
				problems++
			}
		}
	}

	if problems > 0 {
		fmt.Printf("校验失败: %d 个包存在问题（共 %d 个包）\n", problems, len(keys))
		return &exitError{code: 1}
	}

	fmt.Printf("校验通过: %d 个包\n", len(keys))
	return nil
}

// cmdResolve 打印包的依赖闭包。
func cmdResolve(manifest *xcatalog.Manifest, key string) error {
	resolver, err := xcatalog.NewResolver(manifest)
	if err != nil {
		return err
	}

	closure, err := resolver.Resolve(key)
	if err != nil {
		return err
	}

	for _, dep := range closure {
		fmt.Println(dep)
	}
	fmt.Printf("共 %d 个依赖\n", len(closure))
	return nil
}

// cmdInspect 查看包的元数据。
func cmdInspect(manifest *xcatalog.Manifest, key string) error {
	deps, err := manifest.DependenciesOf(key)
	if err != nil {
		return err
	}

	fmt.Printf("包: %s\n", key)

	if len(deps) == 0 {
		fmt.Println("直接依赖: 无")
	} else {
		fmt.Printf("直接依赖: %d 个\n", len(deps))
		for _, dep := range deps {
			fmt.Printf("  %s\n", dep)
		}
	}

	if size, ok := manifest.SizeOf(key); ok {
		fmt.Printf("大小: %d 字节\n", size)
	} else {
		fmt.Println("大小: 未记录")
	}

	if digest, ok := manifest.Digest(key); ok {
		fmt.Printf("摘要: %016x\n", digest)
	} else {
		fmt.Println("摘要: 未记录")
	}

	return nil
}

// cmdWarm 预热缓存并打印统计信息。
func cmdWarm(ctx context.Context, manifest *xcatalog.Manifest, root string, keys []string, concurrency int, timeout time.Duration) error {
	if root == "" {
		return &usageError{msg: "warm 命令需要 --root 参数"}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	loader, err := dirLoader(root, manifest)
	if err != nil {
		return err
	}
	defer loader.Close()

	manager, err := xpak.New(manifest, loader,
		xpak.WithPrefetchConcurrency(concurrency),
	)
	if err != nil {
		return err
	}
	defer manager.Close()

	start := time.Now()
	if err := manager.Prefetch(ctx, keys...); err != nil {
		return fmt.Errorf("预热失败: %w", err)
	}

	stats := manager.Stats()
	fmt.Printf("预热完成: %d 个包, 耗时 %v\n", len(keys), time.Since(start).Round(time.Millisecond))
	fmt.Printf("常驻条目: %d\n", stats.Resident)
	fmt.Printf("常驻大小: %d 字节\n", stats.ResidentBytes)
	fmt.Printf("命中/未命中: %d/%d\n", stats.Hits, stats.Misses)
	return nil
}

// setupSignalHandler 设置信号处理。
// 设计决策: 第一次信号优雅取消，第二次信号强制退出（退出码 130 = 128 + SIGINT）。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
