// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

//go:build unix

package router_test

import (
	"errors"
	"syscall"
)

func processExists(pid int) bool {
	return !errors.Is(syscall.Kill(pid, 0), syscall.ESRCH)
}
