package stages

import (
	"context"
	"fmt"
	"sync"

	domsvc "QuantPipe/internal/domain/service"
)

// lifecycle carries the ready flag and enable switch shared by every stage.
type lifecycle struct {
	name    string
	enabled bool

	stateMu sync.RWMutex
	ready   bool
}

func (l *lifecycle) Name() string { return l.name }

func (l *lifecycle) Enabled() bool { return l.enabled }

func (l *lifecycle) HealthCheck(ctx context.Context) bool {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.enabled && l.ready
}

// start flips the ready flag. A disabled stage refuses to start.
func (l *lifecycle) start() error {
	if !l.enabled {
		return fmt.Errorf("%s: %w", l.name, domsvc.ErrStageDisabled)
	}
	l.stateMu.Lock()
	l.ready = true
	l.stateMu.Unlock()
	return nil
}

func (l *lifecycle) stop() {
	l.stateMu.Lock()
	l.ready = false
	l.stateMu.Unlock()
}

// mustBeReady is the guard every Process starts with.
func (l *lifecycle) mustBeReady() error {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	if !l.ready {
		return fmt.Errorf("%s: %w", l.name, domsvc.ErrStageNotInitialized)
	}
	return nil
}
