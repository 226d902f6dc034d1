package session

import (
	"context"
	"os"

	"github.com/dep2p/go-slp/internal/slp/srvurl"
	"github.com/dep2p/go-slp/internal/slp/wire"
	"github.com/dep2p/go-slp/pkg/types"
)

// RegCallback 注册类操作的结果回调，恰好调用一次；nil 表示成功
type RegCallback func(err error)

// Reg 注册服务 URL
//
// srvType 为空时取 URL 的服务类型。只支持全新注册，fresh 为 false 时
// 返回 types.NotImplemented。
func (h *Handle) Reg(ctx context.Context, url string, lifetime uint16, srvType, attrs string, fresh bool, cb RegCallback) error {
	const op = "reg"
	switch {
	case !srvurl.Valid(url):
		return usage(op, ErrInvalidURL)
	case lifetime == 0:
		return usage(op, ErrLifetime)
	case cb == nil:
		return usage(op, ErrNilCallback)
	case !fresh:
		return types.NewError(types.NotImplemented, op, ErrIncremental)
	}
	if srvType == "" {
		u, err := srvurl.Parse(url)
		if err != nil {
			return usage(op, ErrInvalidURL)
		}
		srvType = u.Type
	}

	scopes := h.scopesOr("")
	body := &wire.SrvReg{
		URL:         wire.URLEntry{URL: url, Lifetime: lifetime},
		ServiceType: srvType,
		ScopeList:   scopes,
		AttrList:    attrs,
		PID:         uint32(os.Getpid()),
	}
	return h.start(ctx, op, func(ctx context.Context) error {
		err := h.register(ctx, op, scopes, body)
		cb(err)
		return err
	})
}

// Dereg 注销服务 URL
func (h *Handle) Dereg(ctx context.Context, url string, cb RegCallback) error {
	return h.deregister(ctx, "dereg", url, "", cb)
}

// DelAttrs 删除已注册服务的属性；attrs 为要删除的标签列表
func (h *Handle) DelAttrs(ctx context.Context, url, attrs string, cb RegCallback) error {
	if attrs == "" {
		return usage("delattrs", ErrEmptyTags)
	}
	return h.deregister(ctx, "delattrs", url, attrs, cb)
}

func (h *Handle) deregister(ctx context.Context, op, url, tags string, cb RegCallback) error {
	switch {
	case !srvurl.Valid(url):
		return usage(op, ErrInvalidURL)
	case cb == nil:
		return usage(op, ErrNilCallback)
	}

	scopes := h.scopesOr("")
	body := &wire.SrvDeReg{
		ScopeList: scopes,
		URL:       wire.URLEntry{URL: url},
		TagList:   tags,
	}
	return h.start(ctx, op, func(ctx context.Context) error {
		err := h.register(ctx, op, scopes, body)
		cb(err)
		return err
	})
}
