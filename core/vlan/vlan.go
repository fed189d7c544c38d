package vlan

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"
)

var ErrInvalidSubnet = errors.New("vlan: invalid subnet")

type Network struct {
	Name   string
	Subnet netip.Prefix
}

func ParseNetwork(name string, cidr string) (Network, error) {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return Network{}, fmt.Errorf("%w %q for %s: %v", ErrInvalidSubnet, cidr, name, err)
	}
	return Network{Name: name, Subnet: prefix.Masked()}, nil
}

// Count returns how many addresses fall inside subnet. Missing and
// unparsable addresses are skipped.
func Count(subnet netip.Prefix, ips []string) int {
	count := 0
	for _, ip := range ips {
		addr, err := netip.ParseAddr(strings.TrimSpace(ip))
		if err != nil {
			continue
		}
		if subnet.Contains(addr.Unmap()) {
			count++
		}
	}
	return count
}

// Counter remembers the last count of a network so it can be republished.
type Counter struct {
	mu      sync.Mutex
	network Network
	last    int
	counted bool
}

func NewCounter(network Network) *Counter {
	return &Counter{network: network}
}

func (c *Counter) Network() Network {
	return c.network
}

// Update recounts and reports whether the count differs from the previous
// one. The first update always reports a change.
func (c *Counter) Update(ips []string) (int, bool) {
	count := Count(c.network.Subnet, ips)

	c.mu.Lock()
	defer c.mu.Unlock()
	changed := !c.counted || count != c.last
	c.last = count
	c.counted = true
	return count, changed
}

func (c *Counter) Last() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.counted
}
