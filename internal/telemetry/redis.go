// Package telemetry instruments outbound clients.
package telemetry

import (
	"context"
	"fmt"
	"net"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// MonitorRedis enables tracing and metrics on r and logs commands at debug level.
func MonitorRedis(r redis.UniversalClient, log logrus.FieldLogger) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisLog{log: log})
	return nil
}

type redisLog struct {
	log logrus.FieldLogger
}

func (h redisLog) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		entry := h.log.WithField("addr", addr)
		if err != nil {
			entry.WithError(err).Warn("redis dial failed")
		} else {
			entry.Debug("redis dialed")
		}
		return conn, err
	}
}

func (h redisLog) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := hook(ctx, cmd)
		if err != nil && err != redis.Nil {
			h.log.WithError(err).WithField("cmd", cmd.Name()).Warn("redis command failed")
		} else {
			h.log.WithField("cmd", cmd.Name()).Debug("redis command")
		}
		return err
	}
}

func (h redisLog) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := hook(ctx, cmds)
		h.log.WithField("commands", len(cmds)).Debug("redis pipeline")
		return err
	}
}
