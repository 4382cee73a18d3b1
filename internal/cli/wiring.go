package cli

import (
	"context"

	"finanzapp/internal/amqp"
	"finanzapp/internal/lock"
	applog "finanzapp/internal/log"
	"finanzapp/internal/services"
)

// events holds the optional outbound connections shared by the charge
// generator and the expense service.
type events struct {
	publisher services.LedgerPublisher
	genOpts   []services.ChargeGeneratorOption
	closers   []func() error
}

func (e *events) Close() {
	for _, c := range e.closers {
		_ = c()
	}
}

// connectEvents opens AMQP and Redis when configured. An unreachable
// broker only disables event publishing; an unreachable Redis is fatal
// because catch-up would otherwise run without its cross-process lock.
func (a *app) connectEvents(ctx context.Context) (*events, error) {
	ev := &events{}
	if a.cfg.AMQPURL != "" {
		client, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue)
		if err != nil {
			a.logger.Warn("AMQP unavailable, ledger events disabled", applog.FieldError, err)
		} else {
			ev.publisher = client
			ev.genOpts = append(ev.genOpts, services.WithChargePublisher(client))
			ev.closers = append(ev.closers, client.Close)
			a.logger.Info("Publishing ledger events", "exchange", a.cfg.AMQPExchange)
		}
	}
	if a.cfg.RedisURL != "" {
		rc, err := lock.Connect(ctx, a.cfg.RedisURL)
		if err != nil {
			ev.Close()
			return nil, err
		}
		ev.genOpts = append(ev.genOpts, services.WithLocker(lock.NewRedisLocker(rc), a.cfg.CatchUpLockTTL))
		ev.closers = append(ev.closers, rc.Close)
		a.logger.Info("Catch-up lock backed by redis", "ttl", a.cfg.CatchUpLockTTL)
	}
	return ev, nil
}
