//go:build windows

package gofiber

import "golang.org/x/sys/windows"

// closeFD closes a handle on Windows.
func closeFD(fd int) error {
	return windows.CloseHandle(windows.Handle(fd))
}
