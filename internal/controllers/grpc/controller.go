// Package grpc serves the standard gRPC health service, reporting whether
// the station driver is up.
package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/chrissnell/vantaged/pkg/config"
)

// StationService is the health service name tracking the console link.
const StationService = "vantaged.Station"

// Controller represents the gRPC controller
type Controller struct {
	ctx    context.Context
	wg     *sync.WaitGroup
	listen string
	logger *zap.SugaredLogger

	Server *grpc.Server
	Health *health.Server
}

// NewController creates a new gRPC controller instance
func NewController(ctx context.Context, wg *sync.WaitGroup, hc config.HealthConfig, logger *zap.SugaredLogger) *Controller {
	ctrl := &Controller{
		ctx:    ctx,
		wg:     wg,
		listen: hc.Listen,
		logger: logger,
		Server: grpc.NewServer(),
		Health: health.NewServer(),
	}
	if ctrl.listen == "" {
		ctrl.listen = ":50051"
	}

	// The process is serving; the station is not until the driver says so.
	ctrl.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	ctrl.Health.SetServingStatus(StationService, healthpb.HealthCheckResponse_NOT_SERVING)

	healthpb.RegisterHealthServer(ctrl.Server, ctrl.Health)
	reflection.Register(ctrl.Server)

	return ctrl
}

// SetStationUp records the station link state.
func (c *Controller) SetStationUp(up bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		status = healthpb.HealthCheckResponse_SERVING
	}
	c.Health.SetServingStatus(StationService, status)
}

// StartController starts the gRPC controller
func (c *Controller) StartController() error {
	l, err := net.Listen("tcp", c.listen)
	if err != nil {
		return fmt.Errorf("gRPC controller could not create listener: %w", err)
	}
	c.logger.Infof("gRPC health service listening on %s", c.listen)
	c.Serve(l)
	return nil
}

// Serve runs the server on l until the controller's context is done.
func (c *Controller) Serve(l net.Listener) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Server.Serve(l); err != nil {
			c.logger.Errorf("gRPC controller serve error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Stopping gRPC controller...")
		c.Health.Shutdown()
		c.Server.GracefulStop()
	}()
}

// StationUp marks the station service serving.
func (c *Controller) StationUp(context.Context, int) { c.SetStationUp(true) }

// StationDown marks the station service not serving.
func (c *Controller) StationDown() { c.SetStationUp(false) }
