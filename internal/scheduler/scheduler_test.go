package scheduler

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

type recordingObserver struct {
	mu   sync.Mutex
	runs map[string][]error
}

func (o *recordingObserver) RunFinished(job string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runs == nil {
		o.runs = make(map[string][]error)
	}
	o.runs[job] = append(o.runs[job], err)
}

func TestScheduler_RunNowTracksOutcome(t *testing.T) {
	obs := &recordingObserver{}
	s := New(zerolog.Nop(), WithObserver(obs))

	boom := errors.New("upstream down")
	require.NoError(t, s.AddJob("0 0 4 * * SAT", funcJob{"ok", func(context.Context) error { return nil }}))
	require.NoError(t, s.AddJob("@every 1h", funcJob{"bad", func(context.Context) error { return boom }}))

	require.NoError(t, s.RunNow(funcJob{"ok", func(context.Context) error { return nil }}))
	assert.ErrorIs(t, s.RunNow(funcJob{"bad", func(context.Context) error { return boom }}), boom)

	ok, found := s.Tracker().Get("ok")
	require.True(t, found)
	assert.Equal(t, 1, ok.Runs)
	assert.Equal(t, 0, ok.Failures)
	assert.Equal(t, "0 0 4 * * SAT", ok.Schedule)
	assert.False(t, ok.LastFinish.IsZero())

	bad, _ := s.Tracker().Get("bad")
	assert.Equal(t, 1, bad.Failures)
	assert.Equal(t, "upstream down", bad.LastError)
	assert.False(t, s.Tracker().Healthy())

	assert.Equal(t, []error{boom}, obs.runs["bad"])
	assert.Equal(t, []error{nil}, obs.runs["ok"])
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("every tuesday", funcJob{"x", func(context.Context) error { return nil }})
	assert.Error(t, err)
}

func TestScheduler_FiresOnSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	fired := make(chan struct{}, 1)
	require.NoError(t, s.AddJob("@every 1s", funcJob{"tick", func(context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}}))

	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("job never fired")
	}
	st, _ := s.Tracker().Get("tick")
	assert.False(t, st.NextRun.IsZero())
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	s := New(zerolog.Nop())
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.RunNow(funcJob{"slow", func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}})
	}()

	<-started
	s.Stop()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestTracker_Finished(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2021, 3, 1, 18, 30, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	tr.Started("daily_summary")
	st, _ := tr.Get("daily_summary")
	assert.True(t, st.Running)

	tr.Finished("daily_summary", errors.New("x"))
	tr.Started("daily_summary")
	tr.Finished("daily_summary", nil)

	st, _ = tr.Get("daily_summary")
	assert.False(t, st.Running)
	assert.Equal(t, 2, st.Runs)
	assert.Equal(t, 1, st.Failures)
	assert.Empty(t, st.LastError)
	assert.Equal(t, now, st.LastFinish)
	assert.True(t, tr.Healthy())

	_, found := tr.Get("missing")
	assert.False(t, found)
}

func TestHelperCommand(t *testing.T) {
	if os.Getenv("SCHEDULER_HELPER_PROCESS") != "1" {
		return
	}
	for _, a := range os.Args {
		if a == "--fail" {
			os.Stderr.WriteString("could not lock\n")
			os.Exit(255)
		}
	}
	os.Exit(0)
}

func helperJob(args ...string) *CommandJob {
	j := NewCommandJob("helper", "unused", args...)
	j.command = func(ctx context.Context, _ string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], append([]string{"-test.run=TestHelperCommand", "--"}, args...)...)
		cmd.Env = append(os.Environ(), "SCHEDULER_HELPER_PROCESS=1")
		return cmd
	}
	return j
}

func TestCommandJob(t *testing.T) {
	require.NoError(t, helperJob("--news").Run(context.Background()))

	err := helperJob("--fail").Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 255")
	assert.Contains(t, err.Error(), "could not lock")
}

func TestScraperEntries(t *testing.T) {
	s := New(zerolog.Nop())
	names := make(map[string]bool)
	for _, e := range ScraperEntries("/usr/local/bin/scraper") {
		require.NoError(t, s.AddJob(e.Schedule, e.Job), e.Job.Name())
		assert.False(t, names[e.Job.Name()], "duplicate job %s", e.Job.Name())
		names[e.Job.Name()] = true
	}
	assert.True(t, names["daily_summary"])
	assert.True(t, names["intradaily"])
}
