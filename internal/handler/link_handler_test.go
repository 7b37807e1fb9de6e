// internal/handler/link_handler_test.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"accel-link-service/internal/link"
	"accel-link-service/internal/service"
	"accel-link-service/internal/utils"
	"accel-link-service/pkg/xlink"
)

type testHandle struct{}

func (testHandle) Close() error { return nil }

// testPlatform answers every platform call with a programmable code
type testPlatform struct {
	resetCode xlink.PlatformCode
}

func (p *testPlatform) Init() error { return nil }

func (p *testPlatform) FindDevice(ctx context.Context, state xlink.DeviceState, req xlink.DeviceRequirements) (xlink.DeviceDescriptor, xlink.PlatformCode) {
	return xlink.DeviceDescriptor{Name: "accel-0", Protocol: xlink.ProtocolTCP, State: xlink.DeviceStateBooted}, xlink.PlatformSuccess
}

func (p *testPlatform) FindAllDevices(ctx context.Context, state xlink.DeviceState, req xlink.DeviceRequirements) ([]xlink.DeviceDescriptor, xlink.PlatformCode) {
	return nil, xlink.PlatformSuccess
}

func (p *testPlatform) Boot(ctx context.Context, desc xlink.DeviceDescriptor, imagePath string) xlink.PlatformCode {
	return xlink.PlatformSuccess
}

func (p *testPlatform) Connect(ctx context.Context, desc xlink.DeviceDescriptor) (xlink.DeviceHandle, xlink.PlatformCode) {
	return testHandle{}, xlink.PlatformSuccess
}

func (p *testPlatform) Reset(ctx context.Context, handle xlink.DeviceHandle) xlink.PlatformCode {
	return p.resetCode
}

func (p *testPlatform) Clean(handle xlink.DeviceHandle) {}

func (p *testPlatform) IsDescriptorValid(desc xlink.DeviceDescriptor, state xlink.DeviceState) bool {
	return desc.Name != ""
}

func newLinkRouter(t *testing.T, platform *testPlatform) (*gin.Engine, *service.LinkService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager, err := link.NewManager(link.Config{
		MaxLinks:       2,
		ConnectTimeout: time.Second,
		BootTimeout:    time.Second,
		ResetTimeout:   time.Second,
	}, platform, nil, zap.NewNop())
	require.NoError(t, err)

	svc := service.NewLinkService(manager, nil, nil, zap.NewNop())
	router := gin.New()
	NewLinkHandler(svc, zap.NewNop()).RegisterRoutes(router.Group("/api/v1"))
	return router, svc
}

func connectTestLink(t *testing.T, svc *service.LinkService) xlink.LinkID {
	t.Helper()
	id, err := svc.Connect(context.Background(), xlink.DeviceDescriptor{
		Name:     "accel-0",
		Protocol: xlink.ProtocolTCP,
		State:    xlink.DeviceStateBooted,
	})
	require.NoError(t, err)
	return id
}

func TestLinkHandler_ResetLink(t *testing.T) {
	router, svc := newLinkRouter(t, &testPlatform{})
	id := connectTestLink(t, svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/links/%d", id), nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.Links())
}

func TestLinkHandler_ResetLinkRemoteFailureConfirmsRelease(t *testing.T) {
	platform := &testPlatform{resetCode: xlink.PlatformDriverError}
	router, svc := newLinkRouter(t, platform)
	id := connectTestLink(t, svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/links/%d", id), nil))

	// The remote reset failed but the slot was freed; the response says so
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["released"])
	assert.Equal(t, float64(id), data["link_id"])
	assert.Empty(t, svc.Links())

	// The link is gone; a retry reports not found
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/links/%d", id), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
