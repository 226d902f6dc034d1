package session

import (
	"context"
	"strings"

	"github.com/dep2p/go-slp/internal/slp/compare"
	"github.com/dep2p/go-slp/internal/slp/transport"
	"github.com/dep2p/go-slp/internal/slp/wire"
	"github.com/dep2p/go-slp/pkg/types"
)

// SrvURLCallback 服务 URL 回调
//
// 终止调用时 url 为空，err 为 types.ErrLastCall 或失败原因；
// 对端返回的错误码以 err 投递，url 同样为空。
type SrvURLCallback func(url string, lifetime uint16, err error) transport.Verdict

// AttrCallback 属性列表回调
type AttrCallback func(attrs string, err error) transport.Verdict

// SrvTypeCallback 服务类型回调，每个类型调用一次
type SrvTypeCallback func(srvType string, err error) transport.Verdict

// ============================================================================
//                              FindSrvs
// ============================================================================

// FindSrvs 查找 scopes 中类型为 srvType 且满足 filter 的服务
//
// service:directory-agent 由 KnownDA 缓存应答，单播句柄除外。
func (h *Handle) FindSrvs(ctx context.Context, srvType, scopes, filter string, cb SrvURLCallback) error {
	const op = "findsrvs"
	switch {
	case srvType == "":
		return usage(op, ErrEmptyServiceType)
	case cb == nil:
		return usage(op, ErrNilCallback)
	}

	if compare.Equal(srvType, types.DirectoryAgentType) && !h.unicast.IsValid() {
		return h.start(ctx, op, func(ctx context.Context) error {
			h.cache.ProcessSrvRqst(ctx, scopes, func(url string, lifetime uint16, err error) bool {
				return cb(url, lifetime, err) == transport.Continue
			})
			return nil
		})
	}

	body := &wire.SrvRqst{
		ServiceType: srvType,
		ScopeList:   h.scopesOr(scopes),
		Predicate:   filter,
	}
	return h.start(ctx, op, func(ctx context.Context) error {
		seen := h.newCollateSet()
		return h.query(ctx, body.ScopeList, body, func(reply *wire.Message, err error) transport.Verdict {
			if reply == nil {
				cb("", 0, err)
				return transport.Stop
			}
			rply, ok := reply.Body.(*wire.SrvRply)
			if !ok {
				return transport.Continue
			}
			if rply.ErrorCode != types.WireOK {
				return cb("", 0, peerError(op, reply.Peer, rply.ErrorCode))
			}
			for _, u := range rply.URLs {
				if !seen.first(u.URL) {
					continue
				}
				if cb(u.URL, u.Lifetime, nil) == transport.Stop {
					return transport.Stop
				}
			}
			return transport.Continue
		})
	})
}

// ============================================================================
//                              FindAttrs
// ============================================================================

// FindAttrs 查找服务 URL 或服务类型的属性；tags 为空时返回全部属性
func (h *Handle) FindAttrs(ctx context.Context, urlOrType, scopes, tags string, cb AttrCallback) error {
	const op = "findattrs"
	switch {
	case urlOrType == "":
		return usage(op, ErrInvalidURL)
	case cb == nil:
		return usage(op, ErrNilCallback)
	}

	body := &wire.AttrRqst{
		URL:       urlOrType,
		ScopeList: h.scopesOr(scopes),
		TagList:   tags,
	}
	return h.start(ctx, op, func(ctx context.Context) error {
		seen := h.newCollateSet()
		return h.query(ctx, body.ScopeList, body, func(reply *wire.Message, err error) transport.Verdict {
			if reply == nil {
				cb("", err)
				return transport.Stop
			}
			rply, ok := reply.Body.(*wire.AttrRply)
			if !ok {
				return transport.Continue
			}
			if rply.ErrorCode != types.WireOK {
				return cb("", peerError(op, reply.Peer, rply.ErrorCode))
			}
			if rply.AttrList == "" || !seen.first(rply.AttrList) {
				return transport.Continue
			}
			return cb(rply.AttrList, nil)
		})
	})
}

// ============================================================================
//                              FindSrvTypes
// ============================================================================

// FindSrvTypes 查找命名权威下的服务类型
//
// namingAuthority 为 "*" 时查找所有命名权威，为空时查找 IANA 类型。
func (h *Handle) FindSrvTypes(ctx context.Context, namingAuthority, scopes string, cb SrvTypeCallback) error {
	const op = "findsrvtypes"
	if cb == nil {
		return usage(op, ErrNilCallback)
	}

	body := &wire.SrvTypeRqst{ScopeList: h.scopesOr(scopes)}
	if namingAuthority == "*" {
		body.AllAuthorities = true
	} else {
		body.NamingAuthority = namingAuthority
	}
	return h.start(ctx, op, func(ctx context.Context) error {
		seen := h.newCollateSet()
		return h.query(ctx, body.ScopeList, body, func(reply *wire.Message, err error) transport.Verdict {
			if reply == nil {
				cb("", err)
				return transport.Stop
			}
			rply, ok := reply.Body.(*wire.SrvTypeRply)
			if !ok {
				return transport.Continue
			}
			if rply.ErrorCode != types.WireOK {
				return cb("", peerError(op, reply.Peer, rply.ErrorCode))
			}
			for _, t := range compare.Split(rply.SrvTypeList) {
				if !seen.first(t) {
					continue
				}
				if cb(t, nil) == transport.Stop {
					return transport.Stop
				}
			}
			return transport.Continue
		})
	})
}

// ============================================================================
//                              FindScopes
// ============================================================================

// FindScopes 返回可用的 scope 列表：已知 DA 的 scope 与 net.slp.useScopes 的并集
func (h *Handle) FindScopes(ctx context.Context) (string, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return "", usage("findscopes", ErrClosed)
	}
	return strings.TrimSpace(h.cache.Scopes(ctx)), nil
}

// RefreshInterval 返回全部已知 DA 可接受的最小重注册间隔（秒），没有 DA 声明时为 0
func (h *Handle) RefreshInterval(ctx context.Context) (uint16, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 0, usage("refreshinterval", ErrClosed)
	}
	return h.cache.RefreshInterval(ctx), nil
}
