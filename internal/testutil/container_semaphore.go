// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"runtime"
	"strconv"
	"sync"
)

// containerSlots decides how many container operations may run at once:
// XEC_TEST_CONTAINER_PARALLEL when set to a positive integer, otherwise
// GOMAXPROCS capped at 2. The low cap keeps constrained CI runners from
// hanging when the container runtime is starved instead of erroring.
func containerSlots() int {
	if raw := os.Getenv("XEC_TEST_CONTAINER_PARALLEL"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	if procs := runtime.GOMAXPROCS(0); procs < 2 {
		return procs
	}
	return 2
}

// ContainerSemaphore returns the process-wide slot channel integration
// tests acquire around container start/stop work:
//
//	sem := testutil.ContainerSemaphore()
//	sem <- struct{}{}
//	defer func() { <-sem }()
var ContainerSemaphore = sync.OnceValue(func() chan struct{} {
	return make(chan struct{}, containerSlots())
})
