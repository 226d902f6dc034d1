package session

import "strings"

// collateSet 同步操作内的结果去重集合，比较不区分大小写
//
// nil 集合不去重，异步句柄使用 nil。
type collateSet map[string]struct{}

func (h *Handle) newCollateSet() collateSet {
	if h.async {
		return nil
	}
	return make(collateSet)
}

// first 首次见到 s 时返回 true
func (c collateSet) first(s string) bool {
	if c == nil {
		return true
	}
	k := strings.ToLower(s)
	if _, ok := c[k]; ok {
		return false
	}
	c[k] = struct{}{}
	return true
}
