package protocol

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Common listen ports across supported terminal families.
var DefaultScanPorts = []int{4370, 5010, 8080}

// ScanMatch is one answering host. A port that accepts a TCP connection is
// a candidate terminal; protocol identification happens later via
// TestConnection.
type ScanMatch struct {
	IP   string
	Port int
}

// ScanNetwork probes every host of the CIDR on the given ports with
// independent, timeout-bounded dials. Absence of a response is a non-match,
// not an error.
func ScanNetwork(ctx context.Context, cidr string, ports []int, timeout time.Duration, parallel int) ([]ScanMatch, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		ports = DefaultScanPorts
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if parallel <= 0 {
		parallel = 64
	}

	var (
		mu      sync.Mutex
		matches []ScanMatch
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for host := ip.Mask(ipnet.Mask); ipnet.Contains(host); host = nextIP(host) {
		for _, port := range ports {
			addr := net.JoinHostPort(host.String(), strconv.Itoa(port))
			port := port
			hostIP := host.String()

			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				dialer := net.Dialer{Timeout: timeout}
				conn, err := dialer.DialContext(ctx, "tcp", addr)
				if err != nil {
					// Non-answer: not a terminal, move on.
					return nil
				}
				conn.Close()

				mu.Lock()
				matches = append(matches, ScanMatch{IP: hostIP, Port: port})
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return matches, err
	}
	return matches, nil
}

func nextIP(ip net.IP) net.IP {
	next := make(net.IP, len(ip))
	copy(next, ip)
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			break
		}
	}
	return next
}
