// Package worker turns import requests consumed from Kafka into pipeline runs.
package worker

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/fragrance-etl/internal/application/etl"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// ImportLockName names the lock serializing imports across workers.
const ImportLockName = "import"

// Runner runs the pipeline over a catalog location.
type Runner interface {
	Run(ctx context.Context, location string) (*etl.Summary, error)
}

// Locker serializes runs; satisfied by the Redis mutex.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Recorder receives run and message outcomes; satisfied by AppMetrics.
type Recorder interface {
	RecordRun(err error, at time.Time)
	RecordMessage(err error)
}

type ImportOption func(*ImportHandler)

// WithLock holds l for the duration of every run.
func WithLock(l Locker) ImportOption {
	return func(h *ImportHandler) { h.lock = l }
}

// WithRecorder reports outcomes to r.
func WithRecorder(r Recorder) ImportOption {
	return func(h *ImportHandler) { h.recorder = r }
}

// ImportHandler handles catalog.import.requested messages.
type ImportHandler struct {
	runner   Runner
	lock     Locker
	recorder Recorder
	logger   logging.Logger
}

func NewImportHandler(runner Runner, logger logging.Logger, opts ...ImportOption) *ImportHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := &ImportHandler{runner: runner, logger: logger.Named("import")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle is a kafka.MessageHandler.  An error hands the message back to the
// consumer's retry and dead-letter policy.
func (h *ImportHandler) Handle(ctx context.Context, msg *kafka.Message) (err error) {
	defer func() {
		if h.recorder != nil {
			h.recorder.RecordMessage(err)
		}
	}()

	req, err := DecodeImportRequest(msg)
	if err != nil {
		h.logger.Warn("rejecting import request", logging.Int64("offset", msg.Offset), logging.Err(err))
		return err
	}
	log := h.logger.With(
		logging.String("source", req.Source),
		logging.String("requested_by", req.RequestedBy))

	if h.lock != nil {
		if err := h.lock.Lock(ctx); err != nil {
			log.Warn("import lock unavailable", logging.Err(err))
			return err
		}
		defer func() {
			if uerr := h.lock.Unlock(context.WithoutCancel(ctx)); uerr != nil {
				log.Warn("failed to release import lock", logging.Err(uerr))
			}
		}()
	}

	log.Info("import started")
	sum, err := h.runner.Run(ctx, req.Source)
	if h.recorder != nil {
		h.recorder.RecordRun(err, time.Now())
	}
	if err != nil {
		log.Error("import failed", logging.Err(err))
		return err
	}

	fields := []logging.Field{
		logging.String("run_id", sum.Result.RunID),
		logging.Int("perfumes", len(sum.Result.Perfumes)),
		logging.Duration("elapsed", sum.Elapsed),
	}
	if len(sum.SinkFailures) > 0 {
		fields = append(fields, logging.Any("sink_failures", sum.SinkFailures))
	}
	log.Info("import completed", fields...)
	return nil
}

// DecodeImportRequest reads an enveloped ImportRequested.  A request without a
// source is a validation error.
func DecodeImportRequest(msg *kafka.Message) (*etl.ImportRequested, error) {
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return nil, err
	}
	var req etl.ImportRequested
	if err := env.DecodePayload(&req); err != nil {
		return nil, err
	}
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		return nil, errors.New(errors.ErrCodeValidation, "import request has no source")
	}
	return &req, nil
}
