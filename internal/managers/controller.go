package managers

import (
	"fmt"

	"go.uber.org/zap"
)

// Controller is an interface that provides standard methods for various controller backends
type Controller interface {
	StartController() error
}

// ControllerManager starts the configured controllers.
type ControllerManager struct {
	controllers []Controller
	logger      *zap.SugaredLogger
}

// NewControllerManager creates a new controller manager. Nil controllers
// are skipped.
func NewControllerManager(logger *zap.SugaredLogger, controllers ...Controller) *ControllerManager {
	cm := &ControllerManager{logger: logger}
	for _, c := range controllers {
		if c != nil {
			cm.controllers = append(cm.controllers, c)
		}
	}
	return cm
}

// StartControllers starts every controller, stopping at the first failure.
func (c *ControllerManager) StartControllers() error {
	c.logger.Info("Starting controller manager...")

	for _, controller := range c.controllers {
		if err := controller.StartController(); err != nil {
			return fmt.Errorf("error starting controller: %w", err)
		}
	}

	c.logger.Infof("Started %d controllers successfully", len(c.controllers))
	return nil
}
