package infra

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
)

// LogOverlay is a DisplayOverlay for hosts without a renderer: it records the
// requested state and logs every change.
type LogOverlay struct {
	logger *zap.Logger

	mu        sync.Mutex
	visible   bool
	intensity float64
	shows     int
	hides     int
}

// NewLogOverlay creates a logging overlay.
func NewLogOverlay(logger *zap.Logger) *LogOverlay {
	return &LogOverlay{logger: logger}
}

func (o *LogOverlay) Show(intensity float64) error {
	if intensity < 0 || intensity > 1 {
		return fmt.Errorf("intensity %v out of range [0,1]", intensity)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = true
	o.intensity = intensity
	o.shows++
	o.logger.Info("overlay shown", zap.Float64("intensity", intensity))
	return nil
}

func (o *LogOverlay) Hide() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.visible {
		return nil
	}
	o.visible = false
	o.intensity = 0
	o.hides++
	o.logger.Info("overlay hidden")
	return nil
}

func (o *LogOverlay) IsVisible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

// Intensity returns the current intensity, 0 when hidden.
func (o *LogOverlay) Intensity() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.intensity
}

// Counts returns how many times the overlay was shown and hidden.
func (o *LogOverlay) Counts() (shows, hides int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shows, o.hides
}

var _ domain.DisplayOverlay = (*LogOverlay)(nil)
