// internal/service/link_service_test.go
package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"accel-link-service/internal/link"
	"accel-link-service/internal/model"
	"accel-link-service/internal/repository"
	"accel-link-service/pkg/xlink"
)

type stubHandle struct{}

func (stubHandle) Close() error { return nil }

// stubPlatform answers every platform call with a programmable code
type stubPlatform struct {
	connectCode xlink.PlatformCode
	resetCode   xlink.PlatformCode
	bootCode    xlink.PlatformCode
}

func (p *stubPlatform) Init() error { return nil }

func (p *stubPlatform) FindDevice(ctx context.Context, state xlink.DeviceState, req xlink.DeviceRequirements) (xlink.DeviceDescriptor, xlink.PlatformCode) {
	return xlink.DeviceDescriptor{Name: "stub-0", Protocol: xlink.ProtocolTCP, State: xlink.DeviceStateBooted}, xlink.PlatformSuccess
}

func (p *stubPlatform) FindAllDevices(ctx context.Context, state xlink.DeviceState, req xlink.DeviceRequirements) ([]xlink.DeviceDescriptor, xlink.PlatformCode) {
	return []xlink.DeviceDescriptor{{Name: "stub-0", Protocol: xlink.ProtocolTCP, State: xlink.DeviceStateBooted}}, xlink.PlatformSuccess
}

func (p *stubPlatform) Boot(ctx context.Context, desc xlink.DeviceDescriptor, imagePath string) xlink.PlatformCode {
	return p.bootCode
}

func (p *stubPlatform) Connect(ctx context.Context, desc xlink.DeviceDescriptor) (xlink.DeviceHandle, xlink.PlatformCode) {
	if p.connectCode != xlink.PlatformSuccess {
		return nil, p.connectCode
	}
	return stubHandle{}, xlink.PlatformSuccess
}

func (p *stubPlatform) Reset(ctx context.Context, handle xlink.DeviceHandle) xlink.PlatformCode {
	return p.resetCode
}

func (p *stubPlatform) Clean(handle xlink.DeviceHandle) {}

func (p *stubPlatform) IsDescriptorValid(desc xlink.DeviceDescriptor, state xlink.DeviceState) bool {
	return desc.Name != ""
}

// memoryRepo collects audit records in memory
type memoryRepo struct {
	mu      sync.Mutex
	records []*model.LinkOperation
}

func (r *memoryRepo) Create(ctx context.Context, op *model.LinkOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, op)
	return nil
}

func (r *memoryRepo) List(ctx context.Context, filter *repository.OperationFilter) ([]*model.LinkOperation, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records, len(r.records), nil
}

func (r *memoryRepo) ListRecent(ctx context.Context, limit int) ([]*model.LinkOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > len(r.records) {
		limit = len(r.records)
	}
	return r.records[:limit], nil
}

func (r *memoryRepo) DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func (r *memoryRepo) byType(opType model.OperationType) []*model.LinkOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.LinkOperation
	for _, rec := range r.records {
		if rec.OperationType == opType {
			out = append(out, rec)
		}
	}
	return out
}

// memoryPublisher collects published events
type memoryPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *memoryPublisher) PublishLinkEvent(eventType string, data map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *memoryPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func newTestService(t *testing.T, platform *stubPlatform, repo repository.OperationRepository, publisher EventPublisher) *LinkService {
	t.Helper()
	manager, err := link.NewManager(link.Config{
		MaxLinks:       4,
		ConnectTimeout: time.Second,
		BootTimeout:    time.Second,
		ResetTimeout:   time.Second,
	}, platform, nil, zap.NewNop())
	require.NoError(t, err)
	return NewLinkService(manager, repo, publisher, zap.NewNop())
}

func testDescriptor() xlink.DeviceDescriptor {
	return xlink.DeviceDescriptor{
		Name:     "stub-0",
		Protocol: xlink.ProtocolTCP,
		State:    xlink.DeviceStateBooted,
	}
}

func TestLinkService_ConnectRecordsAuditAndEvent(t *testing.T) {
	repo := &memoryRepo{}
	publisher := &memoryPublisher{}
	svc := newTestService(t, &stubPlatform{}, repo, publisher)

	id, err := svc.Connect(context.Background(), testDescriptor())
	require.NoError(t, err)

	records := repo.byType(model.OperationTypeConnect)
	require.Len(t, records, 1)
	assert.Equal(t, model.OperationStatusSuccess, records[0].Status)
	require.NotNil(t, records[0].LinkID)
	assert.Equal(t, int64(id), *records[0].LinkID)
	assert.Equal(t, "stub-0", records[0].DeviceName)

	assert.Equal(t, []string{"link_up"}, publisher.types())
}

func TestLinkService_ConnectFailureRecordsFailedAudit(t *testing.T) {
	repo := &memoryRepo{}
	publisher := &memoryPublisher{}
	svc := newTestService(t, &stubPlatform{connectCode: xlink.PlatformDriverError}, repo, publisher)

	_, err := svc.Connect(context.Background(), testDescriptor())
	require.ErrorIs(t, err, xlink.ErrCommunication)

	records := repo.byType(model.OperationTypeConnect)
	require.Len(t, records, 1)
	assert.Equal(t, model.OperationStatusFailed, records[0].Status)
	require.NotNil(t, records[0].ErrorMessage)

	// No link came up, so no event
	assert.Empty(t, publisher.types())
}

func TestLinkService_ResetPublishesLinkDown(t *testing.T) {
	repo := &memoryRepo{}
	publisher := &memoryPublisher{}
	svc := newTestService(t, &stubPlatform{}, repo, publisher)

	id, err := svc.Connect(context.Background(), testDescriptor())
	require.NoError(t, err)

	require.NoError(t, svc.Reset(context.Background(), id))

	resets := repo.byType(model.OperationTypeReset)
	require.Len(t, resets, 1)
	assert.Equal(t, model.OperationStatusSuccess, resets[0].Status)
	assert.Equal(t, "stub-0", resets[0].DeviceName)

	assert.Equal(t, []string{"link_up", "link_down"}, publisher.types())
	assert.Empty(t, svc.Links())
}

func TestLinkService_NilRepoAndPublisherAreSafe(t *testing.T) {
	svc := newTestService(t, &stubPlatform{}, nil, nil)

	id, err := svc.Connect(context.Background(), testDescriptor())
	require.NoError(t, err)
	require.NoError(t, svc.Reset(context.Background(), id))

	ops, err := svc.RecentOperations(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestLinkService_BootRecordsAudit(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(t, &stubPlatform{}, repo, nil)

	desc := testDescriptor()
	desc.State = xlink.DeviceStateUnbooted
	require.NoError(t, svc.Boot(context.Background(), desc, "firmware.mvcmd"))

	boots := repo.byType(model.OperationTypeBoot)
	require.Len(t, boots, 1)
	assert.Equal(t, model.OperationStatusSuccess, boots[0].Status)
}

func TestLinkService_ResetAllAuditsSummary(t *testing.T) {
	repo := &memoryRepo{}
	publisher := &memoryPublisher{}
	svc := newTestService(t, &stubPlatform{}, repo, publisher)

	for i := 0; i < 3; i++ {
		_, err := svc.Connect(context.Background(), testDescriptor())
		require.NoError(t, err)
	}

	reset, failed := svc.ResetAll(context.Background())
	assert.Equal(t, 3, reset)
	assert.Zero(t, failed)

	summaries := repo.byType(model.OperationTypeResetAll)
	require.Len(t, summaries, 1)
	assert.Equal(t, model.OperationStatusSuccess, summaries[0].Status)
	assert.Contains(t, publisher.types(), "reset_all")
}

func newObservedService(t *testing.T, platform *stubPlatform) (*LinkService, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	manager, err := link.NewManager(link.Config{
		MaxLinks:       4,
		ConnectTimeout: time.Second,
		BootTimeout:    time.Second,
		ResetTimeout:   time.Second,
	}, platform, nil, zap.NewNop())
	require.NoError(t, err)
	return NewLinkService(manager, nil, nil, zap.New(core)), logs
}

func TestLinkService_LogsPerLinkOperations(t *testing.T) {
	svc, logs := newObservedService(t, &stubPlatform{})

	id, err := svc.Connect(context.Background(), testDescriptor())
	require.NoError(t, err)
	require.NoError(t, svc.Reset(context.Background(), id))

	completed := logs.FilterMessage("Link operation completed").All()
	require.Len(t, completed, 2)

	connectFields := completed[0].ContextMap()
	assert.Equal(t, string(model.OperationTypeConnect), connectFields["operation_type"])
	assert.Equal(t, uint32(id), connectFields["link_id"])
	assert.Equal(t, "stub-0", connectFields["device"])
	assert.Equal(t, true, connectFields["success"])

	resetFields := completed[1].ContextMap()
	assert.Equal(t, string(model.OperationTypeReset), resetFields["operation_type"])
	assert.Equal(t, uint32(id), resetFields["link_id"])
}

func TestLinkService_LogsFailedConnect(t *testing.T) {
	svc, logs := newObservedService(t, &stubPlatform{connectCode: xlink.PlatformDriverError})

	_, err := svc.Connect(context.Background(), testDescriptor())
	require.ErrorIs(t, err, xlink.ErrCommunication)

	failed := logs.FilterMessage("Link operation failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	assert.Equal(t, false, failed[0].ContextMap()["success"])
}

func TestLinkService_ProfilingRoundTrip(t *testing.T) {
	svc := newTestService(t, &stubPlatform{}, nil, nil)

	svc.ProfilingStart()
	assert.True(t, svc.ProfilingReport().Enabled)

	// A boot through the manager lands in the shared profiler
	require.NoError(t, svc.Boot(context.Background(), testDescriptor(), "firmware.mvcmd"))
	report := svc.ProfilingReport()
	assert.Equal(t, uint64(1), report.TotalBootCount)

	svc.ProfilingStop()
	assert.False(t, svc.ProfilingReport().Enabled)
}
