// internal/link/manager_test.go
package link

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"accel-link-service/pkg/xlink"
)

type fakeHandle struct {
	closed bool
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

// fakePlatform implements xlink.Platform with programmable failures
type fakePlatform struct {
	devices []xlink.DeviceDescriptor

	connectCode xlink.PlatformCode
	resetCode   xlink.PlatformCode
	bootCode    xlink.PlatformCode
	findCode    xlink.PlatformCode

	connectCalls int
	resetCalls   int
	bootCalls    int
	cleanCalls   int
}

func (p *fakePlatform) Init() error { return nil }

func (p *fakePlatform) FindDevice(ctx context.Context, state xlink.DeviceState, req xlink.DeviceRequirements) (xlink.DeviceDescriptor, xlink.PlatformCode) {
	if p.findCode != xlink.PlatformSuccess {
		return xlink.DeviceDescriptor{}, p.findCode
	}
	for _, d := range p.devices {
		if req.Matches(d) && (state == xlink.DeviceStateAny || state == d.State) {
			return d, xlink.PlatformSuccess
		}
	}
	return xlink.DeviceDescriptor{}, xlink.PlatformDeviceNotFound
}

func (p *fakePlatform) FindAllDevices(ctx context.Context, state xlink.DeviceState, req xlink.DeviceRequirements) ([]xlink.DeviceDescriptor, xlink.PlatformCode) {
	if p.findCode != xlink.PlatformSuccess {
		return nil, p.findCode
	}
	var out []xlink.DeviceDescriptor
	for _, d := range p.devices {
		if req.Matches(d) && (state == xlink.DeviceStateAny || state == d.State) {
			out = append(out, d)
		}
	}
	return out, xlink.PlatformSuccess
}

func (p *fakePlatform) Boot(ctx context.Context, desc xlink.DeviceDescriptor, imagePath string) xlink.PlatformCode {
	p.bootCalls++
	return p.bootCode
}

func (p *fakePlatform) Connect(ctx context.Context, desc xlink.DeviceDescriptor) (xlink.DeviceHandle, xlink.PlatformCode) {
	p.connectCalls++
	if p.connectCode != xlink.PlatformSuccess {
		return nil, p.connectCode
	}
	return &fakeHandle{}, xlink.PlatformSuccess
}

func (p *fakePlatform) Reset(ctx context.Context, handle xlink.DeviceHandle) xlink.PlatformCode {
	p.resetCalls++
	if p.resetCode == xlink.PlatformSuccess {
		handle.Close()
	}
	return p.resetCode
}

func (p *fakePlatform) Clean(handle xlink.DeviceHandle) {
	p.cleanCalls++
	if handle != nil {
		handle.Close()
	}
}

func (p *fakePlatform) IsDescriptorValid(desc xlink.DeviceDescriptor, state xlink.DeviceState) bool {
	return desc.Name != ""
}

func testConfig(maxLinks int) Config {
	return Config{
		MaxLinks:       maxLinks,
		ConnectTimeout: time.Second,
		BootTimeout:    time.Second,
		ResetTimeout:   time.Second,
	}
}

func newTestManager(t *testing.T, cfg Config, platform *fakePlatform) *Manager {
	t.Helper()
	m, err := NewManager(cfg, platform, nil, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestManager_ConnectAndReset(t *testing.T) {
	platform := &fakePlatform{}
	m := newTestManager(t, testConfig(4), platform)

	id, err := m.Connect(context.Background(), testDevice("accel-0"))
	require.NoError(t, err)
	assert.NotEqual(t, xlink.InvalidLinkID, id)

	info, err := m.Registry().Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, xlink.StateUp, info.State)

	require.NoError(t, m.Reset(context.Background(), id))
	assert.Equal(t, 0, m.Registry().ActiveCount())
	assert.Equal(t, 1, platform.resetCalls)
}

func TestManager_ConnectValidatesDescriptor(t *testing.T) {
	m := newTestManager(t, testConfig(2), &fakePlatform{})

	_, err := m.Connect(context.Background(), xlink.DeviceDescriptor{})
	assert.ErrorIs(t, err, xlink.ErrInvalidArgument)
	assert.Equal(t, 0, m.Registry().ActiveCount())
}

func TestManager_NoLeakOnConnectFailure(t *testing.T) {
	platform := &fakePlatform{connectCode: xlink.PlatformDriverError}
	m := newTestManager(t, testConfig(2), platform)

	before := m.Registry().ActiveCount()
	_, err := m.Connect(context.Background(), testDevice("accel-0"))
	assert.ErrorIs(t, err, xlink.ErrCommunication)
	assert.Equal(t, before, m.Registry().ActiveCount(), "failed connect leaked a busy slot")

	// The pool recovers: a subsequent connect succeeds
	platform.connectCode = xlink.PlatformSuccess
	id, err := m.Connect(context.Background(), testDevice("accel-0"))
	require.NoError(t, err)
	assert.NotEqual(t, xlink.InvalidLinkID, id)
}

func TestManager_ConnectTimeoutUnwinds(t *testing.T) {
	platform := &fakePlatform{connectCode: xlink.PlatformTimeout}
	m := newTestManager(t, testConfig(2), platform)

	_, err := m.Connect(context.Background(), testDevice("accel-0"))
	assert.ErrorIs(t, err, xlink.ErrTimeout)
	assert.Equal(t, 0, m.Registry().ActiveCount())
}

func TestManager_IdempotentReset(t *testing.T) {
	platform := &fakePlatform{}
	m := newTestManager(t, testConfig(2), platform)

	id, err := m.Connect(context.Background(), testDevice("accel-0"))
	require.NoError(t, err)

	require.NoError(t, m.Reset(context.Background(), id))
	occupancy := m.Registry().ActiveCount()

	err = m.Reset(context.Background(), id)
	assert.ErrorIs(t, err, xlink.ErrLinkNotFound)
	assert.Equal(t, occupancy, m.Registry().ActiveCount(), "second reset changed occupancy")
}

func TestManager_ResetUnknownLink(t *testing.T) {
	m := newTestManager(t, testConfig(2), &fakePlatform{})

	err := m.Reset(context.Background(), 99)
	assert.ErrorIs(t, err, xlink.ErrLinkNotFound)
}

func TestManager_PoolScenario(t *testing.T) {
	// Capacity 4: connect four devices, IDs 0..3 in allocation order
	platform := &fakePlatform{}
	m := newTestManager(t, testConfig(4), platform)

	ids := make([]xlink.LinkID, 4)
	for i := range ids {
		id, err := m.Connect(context.Background(), testDevice("accel"))
		require.NoError(t, err)
		ids[i] = id
		assert.Equal(t, xlink.LinkID(i), id)
	}

	// A fifth connect before any reset is a resource-limit error
	_, err := m.Connect(context.Background(), testDevice("accel"))
	assert.ErrorIs(t, err, xlink.ErrResourceExhausted)

	// Reset ID 1, then connect again: the freed slot is reused but the
	// new link gets an ID outside the still-active set
	require.NoError(t, m.Reset(context.Background(), ids[1]))
	newID, err := m.Connect(context.Background(), testDevice("accel"))
	require.NoError(t, err)
	assert.NotContains(t, []xlink.LinkID{ids[0], ids[2], ids[3]}, newID)
	assert.Equal(t, 4, m.Registry().ActiveCount())
}

func TestManager_ResetAllBestEffort(t *testing.T) {
	platform := &fakePlatform{}
	m := newTestManager(t, testConfig(4), platform)

	for i := 0; i < 3; i++ {
		_, err := m.Connect(context.Background(), testDevice("accel"))
		require.NoError(t, err)
	}

	// Remote resets fail, but every slot is still torn down
	platform.resetCode = xlink.PlatformDriverError
	reset, failed := m.ResetAll(context.Background())
	assert.Equal(t, 0, reset)
	assert.Equal(t, 3, failed)
	assert.Equal(t, 0, m.Registry().ActiveCount(), "failed resets left busy slots behind")
}

func TestManager_ResetAllSkipsWhenDisabled(t *testing.T) {
	platform := &fakePlatform{}
	cfg := testConfig(4)
	cfg.SkipDeviceReset = true
	m := newTestManager(t, cfg, platform)

	_, err := m.Connect(context.Background(), testDevice("accel"))
	require.NoError(t, err)

	reset, failed := m.ResetAll(context.Background())
	assert.Equal(t, 0, reset)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 0, platform.resetCalls)
	assert.Equal(t, 1, m.Registry().ActiveCount())
}

func TestManager_BootDelegation(t *testing.T) {
	platform := &fakePlatform{}
	m := newTestManager(t, testConfig(2), platform)

	err := m.Boot(context.Background(), testDevice("accel-0"), "/firmware/image.mvcmd")
	require.NoError(t, err)
	assert.Equal(t, 1, platform.bootCalls)
	assert.Equal(t, 0, m.Registry().ActiveCount(), "boot must not hold a slot")

	platform.bootCode = xlink.PlatformDriverError
	err = m.Boot(context.Background(), testDevice("accel-0"), "/firmware/image.mvcmd")
	assert.ErrorIs(t, err, xlink.ErrCommunication)
}

func TestManager_BootValidatesArguments(t *testing.T) {
	m := newTestManager(t, testConfig(2), &fakePlatform{})

	err := m.Boot(context.Background(), testDevice("accel-0"), "")
	assert.ErrorIs(t, err, xlink.ErrInvalidArgument)

	err = m.Boot(context.Background(), xlink.DeviceDescriptor{}, "/firmware/image.mvcmd")
	assert.ErrorIs(t, err, xlink.ErrInvalidArgument)
}

func TestManager_FindFirst(t *testing.T) {
	platform := &fakePlatform{devices: []xlink.DeviceDescriptor{
		{Name: "accel-0", Protocol: xlink.ProtocolUSB, State: xlink.DeviceStateUnbooted},
		{Name: "accel-1", Protocol: xlink.ProtocolTCP, State: xlink.DeviceStateBooted},
	}}
	m := newTestManager(t, testConfig(2), platform)

	desc, err := m.FindFirst(context.Background(), xlink.DeviceStateBooted, xlink.DeviceRequirements{})
	require.NoError(t, err)
	assert.Equal(t, "accel-1", desc.Name)

	_, err = m.FindFirst(context.Background(), xlink.DeviceStateBooted, xlink.DeviceRequirements{Name: "missing"})
	assert.ErrorIs(t, err, xlink.ErrDeviceNotFound)
}

func TestManager_FindAllTruncates(t *testing.T) {
	platform := &fakePlatform{devices: []xlink.DeviceDescriptor{
		{Name: "accel-0", Protocol: xlink.ProtocolTCP, State: xlink.DeviceStateBooted},
		{Name: "accel-1", Protocol: xlink.ProtocolTCP, State: xlink.DeviceStateBooted},
		{Name: "accel-2", Protocol: xlink.ProtocolTCP, State: xlink.DeviceStateBooted},
	}}
	m := newTestManager(t, testConfig(2), platform)

	devices, total, err := m.FindAll(context.Background(), xlink.DeviceStateAny, xlink.DeviceRequirements{}, 2)
	require.NoError(t, err)
	assert.Len(t, devices, 2)
	assert.Equal(t, 3, total)

	_, _, err = m.FindAll(context.Background(), xlink.DeviceStateAny, xlink.DeviceRequirements{}, 0)
	assert.ErrorIs(t, err, xlink.ErrInvalidArgument)
}
