package scraper

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/use-agent/botwatch/collector"
)

type failingSink struct {
	errs []error
}

func (s *failingSink) Progress(int, int) error          { return nil }
func (s *failingSink) Completed(collector.Result) error { return nil }
func (s *failingSink) Error(err error) error {
	s.errs = append(s.errs, err)
	return errors.New("job not found")
}

func TestNotifyError_LogsDeliveryFailure(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	sink := &failingSink{}
	notifyError(sink, errors.New("superseded"))

	assert.Len(t, sink.errs, 1)
	assert.Contains(t, buf.String(), "event delivery failed")
	assert.Contains(t, buf.String(), "job not found")
}
