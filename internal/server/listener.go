package server

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/pomdtr/assetpipe/internal/utils"
)

// Listen accepts "unix/<socket>", "tcp/<addr>" or a bare tcp address.
func Listen(addr string) (net.Listener, error) {
	if socketPath, ok := strings.CutPrefix(addr, "unix/"); ok {
		if utils.FileExists(socketPath) {
			if err := os.Remove(socketPath); err != nil {
				return nil, fmt.Errorf("failed to remove existing socket: %w", err)
			}
		}

		return net.Listen("unix", socketPath)
	}

	return net.Listen("tcp", strings.TrimPrefix(addr, "tcp/"))
}
