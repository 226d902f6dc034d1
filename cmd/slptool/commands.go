package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/netip"
	"strings"

	slp "github.com/dep2p/go-slp"
	"github.com/dep2p/go-slp/internal/slp/session"
	"github.com/dep2p/go-slp/internal/slp/transport"
	"github.com/dep2p/go-slp/pkg/types"
)

// errUsage 命令参数错误
var errUsage = errors.New("参数错误")

// tool 一次命令执行
type tool struct {
	dc     *slp.DiscoveryContext
	out    io.Writer
	scopes string
	lang   string
}

func (t *tool) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "findsrvs":
		return t.findSrvs(ctx, args)
	case "findattrs":
		return t.findAttrs(ctx, args)
	case "findsrvtypes":
		return t.findSrvTypes(ctx, args)
	case "findscopes":
		return t.findScopes(ctx)
	case "unicastfindsrvs", "unicastfindattrs", "unicastfindsrvtypes":
		return t.unicast(ctx, cmd, args)
	case "findsrvsusingiflist", "findattrsusingiflist", "findsrvtypesusingiflist":
		return t.usingIfList(ctx, cmd, args)
	case "getproperty":
		return t.getProperty(args)
	case "register":
		return t.register(ctx, args)
	case "deregister":
		return t.deregister(ctx, args)
	case "delattrs":
		return t.delAttrs(ctx, args)
	}
	return fmt.Errorf("%w: 未知命令 %q", errUsage, cmd)
}

func (t *tool) open(extra ...session.Option) (*session.Handle, error) {
	opts := append([]session.Option(nil), extra...)
	if t.lang != "" {
		opts = append(opts, session.WithLanguage(t.lang))
	}
	return t.dc.Open(append(opts, session.WithAsync(false))...)
}

// emitOr 成功结果交给 emit；同步句柄的终止失败由操作本身返回，这里只记录对端错误
func emitOr(err error, emit func()) transport.Verdict {
	switch {
	case err == nil:
		emit()
	case !types.IsLastCall(err):
		log.Debug("查询返回错误", "err", err)
	}
	return transport.Continue
}

// ============================================================================
//                              查询命令
// ============================================================================

func (t *tool) findSrvs(ctx context.Context, args []string, opts ...session.Option) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: findsrvs <服务类型> [过滤器]", errUsage)
	}
	filter := ""
	if len(args) == 2 {
		filter = args[1]
	}
	h, err := t.open(opts...)
	if err != nil {
		return err
	}
	defer h.Close()

	err = h.FindSrvs(ctx, args[0], t.scopes, filter, func(url string, lifetime uint16, err error) transport.Verdict {
		return emitOr(err, func() { fmt.Fprintf(t.out, "%s,%d\n", url, lifetime) })
	})
	return err
}

func (t *tool) findAttrs(ctx context.Context, args []string, opts ...session.Option) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: findattrs <URL|服务类型> [标签]", errUsage)
	}
	tags := ""
	if len(args) == 2 {
		tags = args[1]
	}
	h, err := t.open(opts...)
	if err != nil {
		return err
	}
	defer h.Close()

	err = h.FindAttrs(ctx, args[0], t.scopes, tags, func(attrs string, err error) transport.Verdict {
		return emitOr(err, func() { fmt.Fprintln(t.out, attrs) })
	})
	return err
}

func (t *tool) findSrvTypes(ctx context.Context, args []string, opts ...session.Option) error {
	if len(args) > 1 {
		return fmt.Errorf("%w: findsrvtypes [命名权威|*]", errUsage)
	}
	authority := "*"
	if len(args) == 1 {
		authority = args[0]
	}
	h, err := t.open(opts...)
	if err != nil {
		return err
	}
	defer h.Close()

	err = h.FindSrvTypes(ctx, authority, t.scopes, func(srvType string, err error) transport.Verdict {
		return emitOr(err, func() { fmt.Fprintln(t.out, srvType) })
	})
	return err
}

func (t *tool) findScopes(ctx context.Context) error {
	h, err := t.open()
	if err != nil {
		return err
	}
	defer h.Close()

	scopes, err := h.FindScopes(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(t.out, scopes)
	return nil
}

// unicast 把查询直接发往一个节点：unicastfindsrvs <IP> <服务类型> [过滤器] 等
func (t *tool) unicast(ctx context.Context, cmd string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: %s <IP地址> ...", errUsage, cmd)
	}
	addr, err := netip.ParseAddr(args[0])
	if err != nil {
		return fmt.Errorf("%w: 无效的 IP 地址 %q", errUsage, args[0])
	}
	opt := session.WithUnicast(netip.AddrPortFrom(addr, types.ReservedPort))
	return t.dispatchFind(ctx, strings.TrimPrefix(cmd, "unicast"), args[1:], opt)
}

// usingIfList 在指定接口上多播查询：findsrvsusingiflist <地址列表> <服务类型> [过滤器] 等
func (t *tool) usingIfList(ctx context.Context, cmd string, args []string) error {
	if len(args) < 1 || args[0] == "" {
		return fmt.Errorf("%w: %s <接口地址列表> ...", errUsage, cmd)
	}
	for _, item := range strings.Split(args[0], ",") {
		if _, err := netip.ParseAddr(strings.TrimSpace(item)); err != nil {
			return fmt.Errorf("%w: 无效的接口地址 %q", errUsage, item)
		}
	}
	return t.dispatchFind(ctx, strings.TrimSuffix(cmd, "usingiflist"), args[1:], session.WithInterfaces(args[0]))
}

func (t *tool) dispatchFind(ctx context.Context, find string, args []string, opt session.Option) error {
	switch find {
	case "findsrvs":
		return t.findSrvs(ctx, args, opt)
	case "findattrs":
		return t.findAttrs(ctx, args, opt)
	default:
		return t.findSrvTypes(ctx, args, opt)
	}
}

func (t *tool) getProperty(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: getproperty <属性名>", errUsage)
	}
	fmt.Fprintf(t.out, "%s = %s\n", args[0], t.dc.Properties().Get(args[0]))
	return nil
}

// ============================================================================
//                              注册命令
// ============================================================================

func (t *tool) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	lifetime := fs.Uint("lifetime", uint(types.LifetimeDefault), "注册生存期（秒，1..65535）")
	srvType := fs.String("type", "", "服务类型（默认取自 URL）")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	rest := fs.Args()
	if len(rest) < 1 || len(rest) > 2 {
		return fmt.Errorf("%w: register [-lifetime 秒] [-type 类型] <URL> [属性]", errUsage)
	}
	if *lifetime == 0 || *lifetime > types.LifetimeMaximum {
		return fmt.Errorf("%w: lifetime 必须在 1..%d 之间", errUsage, types.LifetimeMaximum)
	}
	attrs := ""
	if len(rest) == 2 {
		attrs = rest[1]
	}
	h, err := t.open()
	if err != nil {
		return err
	}
	defer h.Close()

	return h.Reg(ctx, rest[0], uint16(*lifetime), *srvType, attrs, true, t.report("已注册", rest[0]))
}

func (t *tool) deregister(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: deregister <URL>", errUsage)
	}
	h, err := t.open()
	if err != nil {
		return err
	}
	defer h.Close()

	return h.Dereg(ctx, args[0], t.report("已注销", args[0]))
}

func (t *tool) delAttrs(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: delattrs <URL> <标签>", errUsage)
	}
	h, err := t.open()
	if err != nil {
		return err
	}
	defer h.Close()

	return h.DelAttrs(ctx, args[0], args[1], t.report("已删除属性", args[0]))
}

func (t *tool) report(done, url string) session.RegCallback {
	return func(err error) {
		if err == nil {
			fmt.Fprintln(t.out, done, url)
		}
	}
}
