// Package dblock serializes integration tests that share one external
// backend across test binaries.
package dblock

import (
	"fmt"
	"hash/fnv"
	"net"
	"time"
)

const basePort = 45432

// Acquire blocks until this process holds the named lock and returns its
// release func. Each name maps to a loopback port; the listener is dropped if
// the process dies.
func Acquire(name string) func() {
	addr := lockAddr(name)
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func lockAddr(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return fmt.Sprintf("127.0.0.1:%d", basePort+int(h.Sum32()%64))
}
