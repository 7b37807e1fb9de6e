// internal/service/link_service.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"accel-link-service/internal/config"
	"accel-link-service/internal/link"
	"accel-link-service/internal/model"
	"accel-link-service/internal/repository"
	"accel-link-service/internal/utils"
	"accel-link-service/pkg/xlink"
)

// EventPublisher pushes link lifecycle events out to connected clients
type EventPublisher interface {
	PublishLinkEvent(eventType string, data map[string]interface{})
}

// LinkService drives the link manager and records the operation audit
// trail. The repository and publisher are optional; a nil repository
// disables auditing and a nil publisher disables event fan-out.
type LinkService struct {
	manager    *link.Manager
	operRepo   repository.OperationRepository
	publisher  EventPublisher
	logger     *utils.ServiceLogger
	baseLogger *zap.Logger
}

// NewLinkService creates the link service
func NewLinkService(
	manager *link.Manager,
	operRepo repository.OperationRepository,
	publisher EventPublisher,
	logger *zap.Logger,
) *LinkService {
	return &LinkService{
		manager:    manager,
		operRepo:   operRepo,
		publisher:  publisher,
		logger:     utils.NewServiceLogger(logger, "link-service"),
		baseLogger: logger,
	}
}

// ManagerConfig converts the loaded configuration into manager settings
func ManagerConfig(cfg *config.LinkConfig) link.Config {
	return link.Config{
		MaxLinks:        cfg.MaxLinks,
		ConnectTimeout:  cfg.ConnectTimeout,
		BootTimeout:     cfg.BootTimeout,
		ResetTimeout:    cfg.ResetTimeout,
		SkipDeviceReset: cfg.SkipDeviceReset,
	}
}

// Connect brings a link up against the given device
func (s *LinkService) Connect(ctx context.Context, desc xlink.DeviceDescriptor) (xlink.LinkID, error) {
	start := time.Now()
	id, err := s.manager.Connect(ctx, desc)

	utils.NewLinkLogger(s.baseLogger, uint32(id), desc.Name).
		LogOperation(string(model.OperationTypeConnect), time.Since(start), err)

	record := model.NewLinkOperation(model.OperationTypeConnect, desc, time.Since(start), err)
	if err == nil {
		record.WithLinkID(id)
		s.publishEvent("link_up", map[string]interface{}{
			"link_id": uint32(id),
			"device":  desc.Name,
		})
	}
	s.recordOperation(ctx, record)

	return id, err
}

// Reset tears one link down
func (s *LinkService) Reset(ctx context.Context, id xlink.LinkID) error {
	device := s.deviceFor(id)

	start := time.Now()
	err := s.manager.Reset(ctx, id)

	utils.NewLinkLogger(s.baseLogger, uint32(id), device.Name).
		LogOperation(string(model.OperationTypeReset), time.Since(start), err)

	record := model.NewLinkOperation(model.OperationTypeReset, device, time.Since(start), err).WithLinkID(id)
	s.recordOperation(ctx, record)

	if err == nil {
		s.publishEvent("link_down", map[string]interface{}{
			"link_id": uint32(id),
			"device":  device.Name,
		})
	}
	return err
}

// ResetAll tears all links down, best effort
func (s *LinkService) ResetAll(ctx context.Context) (reset int, failed int) {
	start := time.Now()
	reset, failed = s.manager.ResetAll(ctx)

	record := model.NewLinkOperation(model.OperationTypeResetAll, xlink.DeviceDescriptor{Name: "*"}, time.Since(start), nil)
	if failed > 0 {
		record.Status = model.OperationStatusFailed
	}
	s.recordOperation(ctx, record)

	s.publishEvent("reset_all", map[string]interface{}{
		"links_reset":  reset,
		"links_failed": failed,
	})
	return reset, failed
}

// Boot uploads firmware to a device without holding a link slot
func (s *LinkService) Boot(ctx context.Context, desc xlink.DeviceDescriptor, imagePath string) error {
	start := time.Now()
	err := s.manager.Boot(ctx, desc, imagePath)

	record := model.NewLinkOperation(model.OperationTypeBoot, desc, time.Since(start), err)
	s.recordOperation(ctx, record)

	if err == nil {
		s.publishEvent("device_booted", map[string]interface{}{
			"device": desc.Name,
			"image":  imagePath,
		})
	}
	return err
}

// FindFirst returns the first matching device
func (s *LinkService) FindFirst(ctx context.Context, state xlink.DeviceState, req xlink.DeviceRequirements) (xlink.DeviceDescriptor, error) {
	return s.manager.FindFirst(ctx, state, req)
}

// FindAll returns up to capacity matching devices plus the total count
func (s *LinkService) FindAll(ctx context.Context, state xlink.DeviceState, req xlink.DeviceRequirements, capacity int) ([]xlink.DeviceDescriptor, int, error) {
	return s.manager.FindAll(ctx, state, req, capacity)
}

// Links returns the active link table
func (s *LinkService) Links() []xlink.LinkInfo {
	return s.manager.Links()
}

// Lookup returns a snapshot of one active link
func (s *LinkService) Lookup(id xlink.LinkID) (xlink.LinkInfo, error) {
	return s.manager.Registry().Lookup(id)
}

// ProfilingStart enables and zeroes the profiling counters
func (s *LinkService) ProfilingStart() {
	s.manager.Profiler().Start()
	s.logger.Info("Profiling started")
}

// ProfilingStop disables profiling, leaving the counters readable
func (s *LinkService) ProfilingStop() {
	s.manager.Profiler().Stop()
	s.logger.Info("Profiling stopped")
}

// ProfilingReport returns the aggregated counters and derived rates
func (s *LinkService) ProfilingReport() xlink.ProfilingSummary {
	return s.manager.Profiler().Report()
}

// RecentOperations returns the most recent audit records
func (s *LinkService) RecentOperations(ctx context.Context, limit int) ([]*model.LinkOperation, error) {
	if s.operRepo == nil {
		return []*model.LinkOperation{}, nil
	}
	return s.operRepo.ListRecent(ctx, limit)
}

// Shutdown tears all links down on service exit
func (s *LinkService) Shutdown(ctx context.Context) {
	s.manager.Shutdown(ctx)
}

func (s *LinkService) deviceFor(id xlink.LinkID) xlink.DeviceDescriptor {
	info, err := s.manager.Registry().Lookup(id)
	if err != nil {
		return xlink.DeviceDescriptor{}
	}
	return info.Device
}

func (s *LinkService) recordOperation(ctx context.Context, record *model.LinkOperation) {
	if s.operRepo == nil {
		return
	}
	if err := s.operRepo.Create(ctx, record); err != nil {
		s.logger.Warn("Failed to record operation",
			zap.String("operation_type", string(record.OperationType)),
			zap.Error(err),
		)
	}
}

func (s *LinkService) publishEvent(eventType string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishLinkEvent(eventType, data)
}
