package unifi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/core/vlan"
	"github.com/yob/home-energy/pubsub"
	"github.com/yob/home-energy/unifi"
)

type fakeSource struct {
	mu      sync.Mutex
	devices []unifi.ClientDevice
	err     error
}

func (s *fakeSource) Clients(ctx context.Context) ([]unifi.ClientDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]unifi.ClientDevice(nil), s.devices...), s.err
}

func (s *fakeSource) set(devices ...unifi.ClientDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = devices
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func device(id string, mac string, ip string) unifi.ClientDevice {
	return unifi.ClientDevice{Id: id, Name: id, MacAddress: mac, IpAddress: ip}
}

func testConfig(t *testing.T) configData {
	t.Helper()
	home, err := vlan.ParseNetwork("Default", "192.168.1.0/24")
	require.NoError(t, err)
	guest, err := vlan.ParseNetwork("Guest", "192.168.10.0/24")
	require.NoError(t, err)
	return configData{
		networks: []vlan.Network{home, guest},
		trackers: []trackerConfig{{name: "Phone", mac: "3c:6d:89:86:ba:a6"}},
	}
}

type updates struct {
	sub *pubsub.Subscription
}

func (u *updates) drain() map[string][]string {
	seen := make(map[string][]string)
	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case event := <-u.sub.Ch:
			seen[event.Key] = append(seen[event.Key], event.Value)
		case <-timeout:
			return seen
		}
	}
}

func newTestApp(t *testing.T, source Source, c *clock) (*app, *updates) {
	t.Helper()
	bus := pubsub.NewPubsub()
	go bus.Run()
	t.Cleanup(bus.Close)

	sub, err := bus.Subscribe("state:update")
	require.NoError(t, err)
	return newApp(bus, logging.NewLogger(bus), source, testConfig(t), c.Now), &updates{sub: sub}
}

func TestTrackerIsDebounced(t *testing.T) {
	source := &fakeSource{}
	c := &clock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	a, u := newTestApp(t, source, c)

	source.set(device("a", "3C:6D:89:86:BA:A6", "192.168.1.23"))
	a.poll()
	assert.Equal(t, []string{"home"}, u.drain()["device_tracker.unifi_phone"])

	source.set()
	c.now = c.now.Add(30 * time.Second)
	a.poll()
	assert.Empty(t, u.drain()["device_tracker.unifi_phone"])

	c.now = c.now.Add(30 * time.Second)
	a.poll()
	assert.Equal(t, []string{"not_home"}, u.drain()["device_tracker.unifi_phone"])

	c.now = c.now.Add(5 * time.Second)
	a.poll()
	assert.Empty(t, u.drain()["device_tracker.unifi_phone"])
}

func TestNetworksAreCountedOnChangedSnapshots(t *testing.T) {
	source := &fakeSource{}
	c := &clock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	a, u := newTestApp(t, source, c)

	source.set(
		device("a", "aa:aa:aa:aa:aa:01", "192.168.1.10"),
		device("b", "aa:aa:aa:aa:aa:02", "192.168.1.11"),
		device("c", "aa:aa:aa:aa:aa:03", "192.168.10.5"),
		device("d", "aa:aa:aa:aa:aa:04", "not-an-ip"),
	)
	a.poll()
	seen := u.drain()
	assert.Equal(t, []string{"2"}, seen["sensor.unifi_default_devices"])
	assert.Equal(t, []string{"1"}, seen["sensor.unifi_guest_devices"])

	a.poll()
	seen = u.drain()
	assert.Equal(t, []string{"2"}, seen["sensor.unifi_default_devices"], "unchanged snapshot republishes the last count")
	assert.Equal(t, []string{"1"}, seen["sensor.unifi_guest_devices"])

	source.set(
		device("a", "aa:aa:aa:aa:aa:01", "192.168.1.10"),
		device("c", "aa:aa:aa:aa:aa:03", "192.168.10.5"),
	)
	a.poll()
	seen = u.drain()
	assert.Equal(t, []string{"1"}, seen["sensor.unifi_default_devices"])
	assert.Empty(t, seen["sensor.unifi_guest_devices"])
}

func TestFailedPollChangesNothing(t *testing.T) {
	source := &fakeSource{}
	c := &clock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	a, u := newTestApp(t, source, c)

	source.set(device("a", "3c:6d:89:86:ba:a6", "192.168.1.23"))
	a.poll()
	u.drain()

	source.mu.Lock()
	source.err = errors.New("connection refused")
	source.mu.Unlock()
	c.now = c.now.Add(5 * time.Minute)
	a.poll()
	assert.Empty(t, u.drain())
}

func TestEntityIDs(t *testing.T) {
	assert.Equal(t, "device_tracker.unifi_phone", TrackerID("Phone"))
	assert.Equal(t, "device_tracker.unifi_james_s_phone", TrackerID("James's Phone"))
	assert.Equal(t, "sensor.unifi_iot_vlan_devices", NetworkSensorID(" IoT / VLAN "))
}

func TestNewConfigFromSection(t *testing.T) {
	file, err := conf.NewConfigFromString(`
[unifi]
base_url = "https://10.1.1.2/proxy/network/integration/"
api_key = "secret"

[[unifi.networks]]
name = "Default"
vlan = "192.168.1.0/24"

[[unifi.trackers]]
name = "Phone"
mac_address = "3C:6D:89:86:BA:A6"

[legacy]
address = "10.1.1.2"
user = "admin"
pass = "hunter2"
port = "8443"
site = "default"
poll_interval_seconds = 20

[[legacy.networks]]
name = "Default"
vlan = "192.168.1.0/33"

[empty]
api_key = "secret"
base_url = "https://10.1.1.2/"
`)
	require.NoError(t, err)

	section, err := file.Section("unifi")
	require.NoError(t, err)
	config, err := newConfigFromSection(section)
	require.NoError(t, err)
	assert.False(t, config.usesController())
	assert.Equal(t, 5*time.Second, config.pollInterval)
	require.Len(t, config.networks, 1)
	require.Len(t, config.trackers, 1)
	assert.Equal(t, "3c:6d:89:86:ba:a6", config.trackers[0].mac)

	section, err = file.Section("legacy")
	require.NoError(t, err)
	_, err = newConfigFromSection(section)
	assert.Error(t, err)

	section, err = file.Section("empty")
	require.NoError(t, err)
	_, err = newConfigFromSection(section)
	assert.Error(t, err)
}
