//go:build !unix

package addrutil

import "syscall"

// BroadcastControl 非 unix 平台不设置套接字选项
func BroadcastControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
