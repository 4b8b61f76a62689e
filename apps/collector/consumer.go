package main

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mahaj/counseling-smoke/pkg/report"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type reportSaver interface {
	Save(ctx context.Context, r *report.Report) error
}

// Consumer moves published smoke reports from Kafka into the report store.
type Consumer struct {
	reader  messageReader
	store   reportSaver
	logger  *zap.Logger
	backoff time.Duration
}

func NewConsumer(reader messageReader, store reportSaver, logger *zap.Logger) *Consumer {
	return &Consumer{reader: reader, store: store, logger: logger, backoff: time.Second}
}

// Consume blocks until ctx is done. Undecodable messages are logged and
// skipped; read errors are retried after a pause.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("reading message, retrying", zap.Error(err), zap.Duration("backoff", c.backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}

		rep, err := report.Decode(m.Value)
		if err != nil {
			c.logger.Error("decoding report", zap.Error(err), zap.Int64("offset", m.Offset))
			continue
		}

		if err := c.store.Save(ctx, rep); err != nil {
			c.logger.Error("saving report", zap.Stringer("run_id", rep.RunID), zap.Error(err))
			continue
		}
		c.logger.Info("report saved",
			zap.Stringer("run_id", rep.RunID),
			zap.String("base_url", rep.BaseURL),
			zap.Int("failed", rep.Failed()))
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
