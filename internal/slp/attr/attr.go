// Package attr 处理 SLP 属性列表中的转义与取值
//
// 属性列表形如 "(color=red),(dpi=600),duplex"。保留字符与控制字符
// 在值中写作 '\' 加两位十六进制，例如 ',' 写作 "\2C"。
package attr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dep2p/go-slp/pkg/types"
)

const (
	// reserved 值中必须转义的字符
	reserved = "(),\\!<=>~"
	// badTag 标签中不允许出现的字符
	badTag = "\r\n\t_"

	hexDigits = "0123456789ABCDEF"
)

var (
	// ErrBadTag 标签含有不允许的字符
	ErrBadTag = errors.New("attr: illegal character in tag")

	// ErrBadEscape '\' 之后不是两位十六进制
	ErrBadEscape = errors.New("attr: malformed escape sequence")

	// ErrNotFound 属性列表中没有该属性
	ErrNotFound = errors.New("attr: attribute not found")
)

func needsEscape(c byte) bool {
	return c <= 0x1F || c == 0x7F || strings.IndexByte(reserved, c) >= 0
}

func checkTag(s string) error {
	if i := strings.IndexAny(s, badTag); i >= 0 {
		return types.NewError(types.ParseError, "escape", fmt.Errorf("%w: %q at %d", ErrBadTag, s[i], i))
	}
	return nil
}

// Escape 转义保留字符与控制字符；isTag 为真时拒绝含非法字符的标签
func Escape(s string, isTag bool) (string, error) {
	if isTag {
		if err := checkTag(s); err != nil {
			return "", err
		}
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if needsEscape(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !needsEscape(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('\\')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0F])
	}
	return b.String(), nil
}

// Unescape 还原 Escape 的结果；十六进制不区分大小写
func Unescape(s string, isTag bool) (string, error) {
	if isTag {
		if err := checkTag(s); err != nil {
			return "", err
		}
	}
	i := strings.IndexByte(s, '\\')
	if i < 0 {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(s[:i])
	for ; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			return "", types.NewError(types.ParseError, "unescape", fmt.Errorf("%w at %d", ErrBadEscape, i))
		}
		hi, ok1 := unhex(s[i+1])
		lo, ok2 := unhex(s[i+2])
		if !ok1 || !ok2 {
			return "", types.NewError(types.ParseError, "unescape", fmt.Errorf("%w at %d", ErrBadEscape, i))
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Lookup 返回属性列表中 id 的值，比较不区分大小写
//
// 值保持转义形式；"(id)" 或 "(id=)" 返回空串。只识别括号内的属性，
// 关键字属性（不带括号）不会被找到。
func Lookup(list, id string) (string, error) {
	rest := list
	for {
		open := strings.IndexByte(rest, '(')
		if open < 0 {
			return "", types.NewError(types.ParseError, "lookup", fmt.Errorf("%w: %q", ErrNotFound, id))
		}
		rest = rest[open+1:]

		end := strings.IndexAny(rest, "=)")
		if end < 0 {
			end = len(rest)
		}
		if !strings.EqualFold(rest[:end], id) {
			continue
		}
		val := rest[end:]
		val = strings.TrimPrefix(val, "=")
		if close := strings.IndexByte(val, ')'); close >= 0 {
			val = val[:close]
		}
		return val, nil
	}
}
