// Package testhelper holds small helpers shared by tests.
package testhelper

import (
	"sync"

	"github.com/phayes/freeport"
)

var (
	usedPortsMu sync.Mutex
	usedPorts   = map[int]struct{}{}
)

// GetFreePort hands out a free port at most once per process, so that
// parallel tests cannot race for the same one.
func GetFreePort() (int, error) {
	usedPortsMu.Lock()
	defer usedPortsMu.Unlock()
	for {
		port, err := freeport.GetFreePort()
		if err != nil {
			return 0, err
		}
		if _, used := usedPorts[port]; used {
			continue
		}
		usedPorts[port] = struct{}{}
		return port, nil
	}
}
