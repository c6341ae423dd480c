// xpakctl 是内容包清单与缓存的命令行工具。
//
// 用法:
//
//	xpakctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-m, --manifest  清单文件路径 (YAML 或 JSON，必需)
//	-r, --root      包文件根目录（verify/warm 需要）
//	-t, --timeout   命令超时时间 (默认: 30s)
//
// 命令:
//
//	verify          校验清单完整性（未知依赖、循环依赖、包文件与摘要）
//	resolve <key>   打印包的依赖闭包（拓扑序）
//	inspect <key>   查看包的元数据（直接依赖、大小、摘要）
//	warm <key>...   预热缓存并打印统计信息
//	help            显示帮助信息
//
// 退出码:
//
//	0: 命令执行成功（verify 命令: 清单完整）
//	1: 命令执行失败或清单存在问题（verify 命令）
//	2: 参数错误（缺少必需参数、未知命令等）
//
// 示例:
//
//	xpakctl -m manifest.yaml verify                   # 仅校验目录结构
//	xpakctl -m manifest.yaml -r /data/paks verify     # 连同包文件与摘要一起校验
//	xpakctl -m manifest.yaml resolve level01          # 打印 level01 的依赖闭包
//	xpakctl -m manifest.yaml inspect textures         # 查看 textures 的元数据
//	xpakctl -m manifest.yaml -r /data/paks warm level01 level02
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
)

// defaultTimeout 默认超时时间。
const defaultTimeout = 30 * time.Second

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xpakctl",
		Usage:   "内容包清单与缓存命令行工具",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "manifest",
				Aliases: []string{"m"},
				Usage:   "清单文件路径 (YAML 或 JSON)",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "包文件根目录",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "命令超时时间",
				Value:   defaultTimeout,
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		Authors: []any{
			"xpak Team",
		},
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandler(cancel)

	if err := app.Run(ctx, os.Args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr.msg)
			return 2
		}
		// CLI 框架产生的参数错误（如未知 flag、未知命令）也返回退出码 2，
		// 与文档契约"参数错误 → 退出码 2"保持一致。
		if _, ok := err.(cli.ExitCoder); ok {
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	return 0
}
