// Package compare 实现 SLP 字符串与字符串列表的比较
//
// SLP 中的作用域、标签、服务类型等都以逗号分隔的字符串列表传输，
// 比较时不区分大小写，首尾空白忽略，反斜杠转义的逗号不作为分隔符。
package compare

import "strings"

// Equal 按 SLP 规则比较两个字符串（不区分大小写，忽略首尾空白）
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// SrvTypeMatch 判断服务类型 have 是否满足请求的服务类型 want
//
// want 为具体类型（含 ':' 分隔的具体部分）时必须完全相等；
// want 为抽象类型时，have 的抽象部分相等即可。
//
//	SrvTypeMatch("service:printer", "service:printer:lpr") == true
func SrvTypeMatch(want, have string) bool {
	want = trimServicePrefix(want)
	have = trimServicePrefix(have)
	if strings.Contains(want, ":") {
		return strings.EqualFold(want, have)
	}
	if i := strings.IndexByte(have, ':'); i >= 0 {
		have = have[:i]
	}
	return strings.EqualFold(want, have)
}

func trimServicePrefix(t string) string {
	t = strings.TrimSpace(t)
	if len(t) >= 8 && strings.EqualFold(t[:8], "service:") {
		return t[8:]
	}
	return t
}

// Split 拆分字符串列表
//
// 空白项被丢弃；"\," 不作为分隔符，转义序列原样保留。
func Split(list string) []string {
	var (
		items []string
		start int
	)
	for i := 0; i <= len(list); i++ {
		if i < len(list) && (list[i] != ',' || (i > 0 && list[i-1] == '\\')) {
			continue
		}
		if item := strings.TrimSpace(list[start:i]); item != "" {
			items = append(items, item)
		}
		start = i + 1
	}
	return items
}

// Contains list 中是否包含 s
func Contains(list, s string) bool {
	for _, item := range Split(list) {
		if Equal(item, s) {
			return true
		}
	}
	return false
}

// Intersect 两个列表的公共项数
func Intersect(a, b string) int {
	n := 0
	for _, item := range Split(a) {
		if Contains(b, item) {
			n++
		}
	}
	return n
}

// Subset sub 的每一项都出现在 super 中时返回 true；空的 sub 是任何列表的子集
func Subset(sub, super string) bool {
	items := Split(sub)
	return Intersect(sub, super) == len(items)
}

// Union 合并两个列表，保留首次出现的写法，按 SLP 规则去重
func Union(a, b string) string {
	var out []string
	for _, item := range append(Split(a), Split(b)...) {
		if !containsItem(out, item) {
			out = append(out, item)
		}
	}
	return strings.Join(out, ",")
}

// ListEqual 两个列表包含相同的项（顺序与重复无关）
func ListEqual(a, b string) bool {
	return Subset(a, b) && Subset(b, a)
}

func containsItem(items []string, s string) bool {
	for _, item := range items {
		if Equal(item, s) {
			return true
		}
	}
	return false
}
