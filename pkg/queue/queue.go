package queue

import (
	"github.com/hibiken/asynq"
	"github.com/nmorgan8/scanforge/pkg/config"
)

func NewClient(cfg *config.RedisConfig) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	})
}

func NewServer(cfg *config.RedisConfig, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)
}

// NewPeriodic returns an asynq scheduler for registering recurring tasks,
// such as the scheduler tick.
func NewPeriodic(cfg *config.RedisConfig) *asynq.Scheduler {
	return asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
		},
		nil,
	)
}
