package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// MultiAlerter fans an alert out to several channels concurrently.
type MultiAlerter struct {
	alerters []Alerter
	logger   *slog.Logger
}

// NewMultiAlerter creates a fan-out over alerters, skipping nil entries.
func NewMultiAlerter(logger *slog.Logger, alerters ...Alerter) *MultiAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MultiAlerter{logger: logger}
	for _, a := range alerters {
		if a != nil {
			m.alerters = append(m.alerters, a)
		}
	}
	return m
}

func (m *MultiAlerter) Name() string {
	return "multi"
}

// Send delivers alert to every channel and joins their errors.
func (m *MultiAlerter) Send(ctx context.Context, alert Alert) error {
	if len(m.alerters) == 0 {
		return nil
	}

	errs := make([]error, len(m.alerters))
	var wg sync.WaitGroup
	for i, a := range m.alerters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Send(ctx, alert); err != nil {
				m.logger.Error("alerter failed",
					"alerter", a.Name(),
					"event", string(alert.Event),
					"run_id", alert.RunID,
					"error", err,
				)
				errs[i] = fmt.Errorf("%s: %w", a.Name(), err)
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}
