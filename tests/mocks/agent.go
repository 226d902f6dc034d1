package mocks

import (
	"strings"
	"sync"

	"github.com/dep2p/go-slp/internal/slp/compare"
	"github.com/dep2p/go-slp/internal/slp/wire"
	"github.com/dep2p/go-slp/pkg/types"
)

// Service 模拟代理上的一条注册
type Service struct {
	URL      string
	Type     string
	Scopes   string
	Attrs    string
	Lifetime uint16
}

// MockAgent 模拟 DA 或 SA，维护一个简单的注册表
type MockAgent struct {
	// DA 为 true 时应答 DA 发现并接受注册
	DA bool
	// URL DA 通告中的 URL
	URL string
	// Scopes 代理支持的 scope
	Scopes string
	// Boot DA 启动时间戳
	Boot uint32

	// HandleFunc 非空时优先处理请求
	HandleFunc Handler

	mu       sync.Mutex
	services []Service
}

// NewMockDA 创建 DA
func NewMockDA(addr, scopes string) *MockAgent {
	return &MockAgent{
		DA:     true,
		URL:    types.DirectoryAgentType + "://" + addr,
		Scopes: scopes,
		Boot:   1,
	}
}

// NewMockSA 创建 SA
func NewMockSA(scopes string, services ...Service) *MockAgent {
	return &MockAgent{Scopes: scopes, services: services}
}

// Services 返回当前注册表
func (a *MockAgent) Services() []Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Service(nil), a.services...)
}

// Add 添加注册
func (a *MockAgent) Add(s Service) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.services {
		if a.services[i].URL == s.URL {
			a.services[i] = s
			return
		}
	}
	a.services = append(a.services, s)
}

// Handle 实现 Handler
func (a *MockAgent) Handle(req *wire.Message) wire.Body {
	if a.HandleFunc != nil {
		if body := a.HandleFunc(req); body != nil {
			return body
		}
	}
	mcast := req.Header.Flags.Has(types.FlagMcast)

	switch r := req.Body.(type) {
	case *wire.SrvRqst:
		if compare.Equal(r.ServiceType, types.DirectoryAgentType) {
			if !a.DA || !a.inScope(r.ScopeList) {
				return nil
			}
			return &wire.DAAdvert{
				BootTimestamp: a.Boot,
				URL:           a.URL,
				ScopeList:     a.Scopes,
			}
		}
		if !a.inScope(r.ScopeList) {
			return a.scopeError(mcast, &wire.SrvRply{ErrorCode: types.WireScopeNotSupported})
		}
		var urls []wire.URLEntry
		for _, s := range a.Services() {
			if compare.SrvTypeMatch(r.ServiceType, s.Type) {
				urls = append(urls, wire.URLEntry{URL: s.URL, Lifetime: s.Lifetime})
			}
		}
		if len(urls) == 0 && mcast {
			return nil
		}
		return &wire.SrvRply{URLs: urls}

	case *wire.AttrRqst:
		if !a.inScope(r.ScopeList) {
			return a.scopeError(mcast, &wire.AttrRply{ErrorCode: types.WireScopeNotSupported})
		}
		var attrs []string
		for _, s := range a.Services() {
			if s.URL == r.URL || compare.SrvTypeMatch(r.URL, s.Type) {
				if s.Attrs != "" {
					attrs = append(attrs, s.Attrs)
				}
			}
		}
		if len(attrs) == 0 && mcast {
			return nil
		}
		return &wire.AttrRply{AttrList: strings.Join(attrs, ",")}

	case *wire.SrvTypeRqst:
		if !a.inScope(r.ScopeList) {
			return a.scopeError(mcast, &wire.SrvTypeRply{ErrorCode: types.WireScopeNotSupported})
		}
		var list []string
		for _, s := range a.Services() {
			if r.AllAuthorities || namingAuthority(s.Type) == strings.ToLower(r.NamingAuthority) {
				list = append(list, s.Type)
			}
		}
		if len(list) == 0 && mcast {
			return nil
		}
		return &wire.SrvTypeRply{SrvTypeList: compare.Union(strings.Join(list, ","), "")}

	case *wire.SrvReg:
		if !a.inScope(r.ScopeList) {
			return &wire.SrvAck{ErrorCode: types.WireScopeNotSupported}
		}
		a.Add(Service{
			URL:      r.URL.URL,
			Type:     r.ServiceType,
			Scopes:   r.ScopeList,
			Attrs:    r.AttrList,
			Lifetime: r.URL.Lifetime,
		})
		return &wire.SrvAck{}

	case *wire.SrvDeReg:
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, s := range a.services {
			if s.URL != r.URL.URL {
				continue
			}
			if r.TagList == "" {
				a.services = append(a.services[:i], a.services[i+1:]...)
			} else {
				a.services[i].Attrs = dropTags(s.Attrs, r.TagList)
			}
			return &wire.SrvAck{}
		}
		return &wire.SrvAck{ErrorCode: types.WireInvalidRegistration}
	}
	return nil
}

func (a *MockAgent) inScope(scopes string) bool {
	if scopes == "" {
		return true
	}
	return compare.Intersect(scopes, a.Scopes) > 0
}

// scopeError 多播请求不应答 scope 错误
func (a *MockAgent) scopeError(mcast bool, body wire.Body) wire.Body {
	if mcast {
		return nil
	}
	return body
}

// namingAuthority 服务类型的命名权威，IANA 为空串
func namingAuthority(srvType string) string {
	t := strings.TrimPrefix(strings.ToLower(srvType), "service:")
	if i := strings.IndexByte(t, ':'); i >= 0 {
		t = t[:i]
	}
	if i := strings.LastIndexByte(t, '.'); i >= 0 {
		return t[i+1:]
	}
	return ""
}

// dropTags 从 "(tag=value),(tag2=value)" 形式的属性列表中删除指定标签
func dropTags(attrs, tags string) string {
	drop := make(map[string]bool)
	for _, t := range compare.Split(tags) {
		drop[strings.ToLower(t)] = true
	}
	var keep []string
	for _, a := range compare.Split(attrs) {
		tag := strings.Trim(a, "()")
		if i := strings.IndexByte(tag, '='); i >= 0 {
			tag = tag[:i]
		}
		if !drop[strings.ToLower(strings.TrimSpace(tag))] {
			keep = append(keep, a)
		}
	}
	return strings.Join(keep, ",")
}
