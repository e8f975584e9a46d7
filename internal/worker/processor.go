package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"
)

// Processor owns the asynq server that executes sweeps and the scheduler that
// enqueues them.
type Processor struct {
	sweeper   Sweeper
	interval  time.Duration
	server    *asynq.Server
	scheduler *asynq.Scheduler
}

func NewProcessor(sweeper Sweeper, redisURL string, interval time.Duration) (*Processor, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq redis url: %w", err)
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{QueueSweep: 1},
	})
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{})

	return &Processor{
		sweeper:   sweeper,
		interval:  interval,
		server:    server,
		scheduler: scheduler,
	}, nil
}

// Mux routes task types to handlers.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSweep, p.HandleSweep)
	return mux
}

// Start registers the periodic sweep and starts both the scheduler and the
// server. It returns once they are running.
func (p *Processor) Start() error {
	cronspec := fmt.Sprintf("@every %s", p.interval)
	// At most one sweep per interval across all nodes.
	if _, err := p.scheduler.Register(cronspec, NewSweepTask(),
		asynq.Queue(QueueSweep),
		asynq.Unique(p.interval),
		asynq.MaxRetry(0),
		asynq.Timeout(p.interval*5),
	); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}

	if err := p.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := p.server.Start(p.Mux()); err != nil {
		p.scheduler.Shutdown()
		return fmt.Errorf("start asynq server: %w", err)
	}
	log.Infof("Sweep scheduled %s on queue %s", cronspec, QueueSweep)
	return nil
}

func (p *Processor) Stop() {
	p.scheduler.Shutdown()
	p.server.Shutdown()
}

// HandleSweep runs one sweep and stores its report as the task result.
func (p *Processor) HandleSweep(ctx context.Context, task *asynq.Task) error {
	report, err := p.sweeper.Sweep(ctx)
	if err != nil {
		log.Errorf("ERROR: sweep failed: %v", err)
		return err
	}
	if report.Evicted+report.Ended+report.Paired > 0 {
		log.Infof("Sweep: evicted=%d ended=%d paired=%d", report.Evicted, report.Ended, report.Paired)
	}

	if w := task.ResultWriter(); w != nil {
		body, err := json.Marshal(report)
		if err != nil {
			return err
		}
		if _, err := w.Write(body); err != nil {
			log.Warnf("Could not store sweep result: %v", err)
		}
	}
	return nil
}
