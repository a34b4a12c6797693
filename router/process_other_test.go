// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

//go:build !unix

package router_test

import "os"

func processExists(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release()
	return true
}
