//go:build !linux

package server

import "syscall"

func reusePortAvailable() bool {
	return false
}

func reusePortControl(network, address string, rc syscall.RawConn) error {
	return ErrTransportUnavailable
}
