package mirror

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// Mirror taps the hub like a session with no filter and forwards every batch
// to its sinks. Sink failures are logged and never stop the mirror.
type Mirror struct {
	logger   *zap.Logger
	registry Registry
	sinks    []Sink
}

func New(logger *zap.Logger, registry Registry, sinks ...Sink) *Mirror {
	return &Mirror{logger: logger, registry: registry, sinks: sinks}
}

func (m *Mirror) Enabled() bool { return len(m.sinks) > 0 }

func (m *Mirror) Run(ctx context.Context) error {
	handle := m.registry.Register(nil)
	defer m.registry.Deregister(handle)

	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name())
	}
	m.logger.Info("Mirror Started", zap.Strings("sinks", names))

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-handle.C():
			if !ok {
				return nil
			}
			m.forward(ctx, batch)
		}
	}
}

// Close closes every sink.
func (m *Mirror) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Mirror) forward(ctx context.Context, batch *models.Batch) {
	for _, s := range m.sinks {
		if err := s.Write(ctx, batch); err != nil {
			m.logger.Error("Mirror write failed", zap.String("sink", s.Name()), zap.Uint64("seq", batch.Seq), zap.Error(err))
		}
	}
}
