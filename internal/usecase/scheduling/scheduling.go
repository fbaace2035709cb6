package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultJobTimeout = 2 * time.Minute

// Job is a recurring piece of background work, such as keeping the task
// model resident.
type Job struct {
	Name     string
	Schedule string        // cron spec ("*/5 * * * *", "@hourly") or duration ("4m")
	Timeout  time.Duration // per run, 0 = 2m
	Run      func(ctx context.Context) error
}

// RunStats summarizes the runs of one job.
type RunStats struct {
	Runs     int
	Failures int
	LastRun  time.Time
	LastErr  error
}

// Scheduler fires jobs on their schedules. A run that is still going when
// its next tick arrives causes that tick to be skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	base    context.Context
	cancel  context.CancelFunc
	running bool
	stats   map[string]*RunStats
}

// New creates an idle scheduler.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
		stats:  make(map[string]*RunStats),
	}
}

// Add schedules job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("scheduler: job %q has no Run func", job.Name)
	}
	sched, err := ParseSchedule(job.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: job %q: %w", job.Name, err)
	}
	if job.Timeout <= 0 {
		job.Timeout = defaultJobTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.stats[job.Name]; dup {
		return fmt.Errorf("scheduler: duplicate job %q", job.Name)
	}
	s.stats[job.Name] = &RunStats{}
	s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(job) }))

	s.logger.Info("job scheduled", "job", job.Name, "schedule", job.Schedule)
	return nil
}

func (s *Scheduler) fire(job Job) {
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()
	if base == nil || base.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(base, job.Timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	st := s.stats[job.Name]
	st.Runs++
	st.LastRun = start
	st.LastErr = err
	if err != nil {
		st.Failures++
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("job failed", "job", job.Name, "error", err, "duration", elapsed)
		return
	}
	s.logger.Debug("job done", "job", job.Name, "duration", elapsed)
}

// Start begins firing jobs. Runs derive their context from ctx; cancelling
// it makes pending ticks no-ops. Calling Start twice is harmless.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.base, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	// fire takes s.mu, so wait outside it.
	<-s.cron.Stop().Done()
}

// Stats returns a snapshot of the named job's history.
func (s *Scheduler) Stats(name string) (RunStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[name]
	if !ok {
		return RunStats{}, false
	}
	return *st, true
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule accepts a five-field cron spec, a descriptor such as
// "@every 5m", or a positive Go duration.
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	if sched, err := cronParser.Parse(spec); err == nil {
		return sched, nil
	}
	d, err := time.ParseDuration(spec)
	if err != nil {
		return nil, fmt.Errorf("%q is neither a cron spec nor a duration", spec)
	}
	if d <= 0 {
		return nil, fmt.Errorf("interval %q must be positive", spec)
	}
	return fixedInterval(d), nil
}

// fixedInterval allows sub-second periods, which cron.Every rounds away.
type fixedInterval time.Duration

func (f fixedInterval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(f))
}
