// Package main 提供 slptool 命令行入口
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	slp "github.com/dep2p/go-slp"
	"github.com/dep2p/go-slp/internal/util/logger"
)

var log = logger.Logger("slp.cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//	命令行参数：这次查询的 scope、DA、语言与超时
//	JSON 配置文件：长期使用的 net.slp.* 属性与 KnownDA 持久化目录
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile = flag.String("config", "", "JSON 配置文件路径")
	scopes     = flag.String("s", "", "scope 列表（默认 net.slp.useScopes）")
	daAddrs    = flag.String("da", "", "DA 地址列表（net.slp.DAAddresses）")
	language   = flag.String("l", "", "语言标签（默认 net.slp.locale）")
	timeout    = flag.Duration("timeout", 30*time.Second, "整个操作的超时")

	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	flag.Usage = func() { printHelp(os.Stderr) }
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(slp.VersionInfo())
		return nil
	}
	args := flag.Args()
	if len(args) == 0 {
		printHelp(os.Stderr)
		return errors.New("缺少命令")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	dc, err := slp.New(ctx, buildOptions()...)
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer func() { _ = dc.Close() }()

	log.Debug("执行命令", "command", args[0], "version", slp.Version)
	t := &tool{dc: dc, out: os.Stdout, scopes: *scopes, lang: *language}
	return t.run(ctx, args[0], args[1:])
}

// buildOptions 构建选项
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 配置文件
//  3. 默认值
func buildOptions() []slp.Option {
	var opts []slp.Option
	if *configFile != "" {
		opts = append(opts, slp.WithConfigFile(*configFile))
	}
	if *daAddrs != "" {
		opts = append(opts, slp.WithDAAddresses(*daAddrs))
	}
	return opts
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, `用法: slptool [选项] <命令> [参数]

命令:
  findsrvs <服务类型> [过滤器]        查找服务
  findattrs <URL|服务类型> [标签]      查找属性
  findsrvtypes [命名权威|*]           查找服务类型
  findscopes                          列出可用 scope
  unicastfindsrvs <IP> <服务类型> [过滤器]
                                      直接向一个节点查找服务
  unicastfindattrs <IP> <URL|服务类型> [标签]
                                      直接向一个节点查找属性
  unicastfindsrvtypes <IP> [命名权威|*]
                                      直接向一个节点查找服务类型
  findsrvsusingiflist <地址列表> <服务类型> [过滤器]
                                      在指定接口上多播查找服务
  findattrsusingiflist <地址列表> <URL|服务类型> [标签]
                                      在指定接口上多播查找属性
  findsrvtypesusingiflist <地址列表> [命名权威|*]
                                      在指定接口上多播查找服务类型
  getproperty <属性名>                显示属性值
  register [-lifetime 秒] [-type 类型] <URL> [属性]
                                      注册服务
  deregister <URL>                    注销服务
  delattrs <URL> <标签>               删除属性

选项:
`)
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
}
