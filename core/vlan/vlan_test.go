package vlan

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	subnet := netip.MustParsePrefix("192.168.1.0/24")
	ips := []string{"192.168.1.5", "192.168.2.5", "192.168.1.200"}

	assert.Equal(t, 2, Count(subnet, ips))
}

func TestCountSkipsBadAddresses(t *testing.T) {
	subnet := netip.MustParsePrefix("10.1.0.0/16")
	ips := []string{"", "not-an-ip", "10.1.4.4", "::ffff:10.1.9.9", "10.2.0.1"}

	assert.Equal(t, 2, Count(subnet, ips))
}

func TestParseNetwork(t *testing.T) {
	network, err := ParseNetwork("Guest", "192.168.10.7/24")
	require.NoError(t, err)
	assert.Equal(t, "192.168.10.0/24", network.Subnet.String())

	_, err = ParseNetwork("Broken", "192.168.10.0/33")
	assert.True(t, errors.Is(err, ErrInvalidSubnet))
}

func TestCounterReportsChanges(t *testing.T) {
	network, err := ParseNetwork("Default", "192.168.1.0/24")
	require.NoError(t, err)
	counter := NewCounter(network)

	_, ok := counter.Last()
	assert.False(t, ok)

	count, changed := counter.Update(nil)
	assert.Equal(t, 0, count)
	assert.True(t, changed)

	count, changed = counter.Update([]string{"192.168.1.2"})
	assert.Equal(t, 1, count)
	assert.True(t, changed)

	_, changed = counter.Update([]string{"192.168.1.3"})
	assert.False(t, changed)

	last, ok := counter.Last()
	assert.True(t, ok)
	assert.Equal(t, 1, last)
}
