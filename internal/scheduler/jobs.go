package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandJob runs the scraper binary with a fixed set of flags.
type CommandJob struct {
	name   string
	binary string
	args   []string

	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewCommandJob creates a job running binary with args.
func NewCommandJob(name, binary string, args ...string) *CommandJob {
	return &CommandJob{name: name, binary: binary, args: args, command: exec.CommandContext}
}

// Name returns the job name.
func (j *CommandJob) Name() string {
	return j.name
}

// Args returns the flags the binary is started with.
func (j *CommandJob) Args() []string {
	return j.args
}

// Run starts the binary and waits for it. A non-zero exit is an error
// carrying the tail of its output.
func (j *CommandJob) Run(ctx context.Context) error {
	cmd := j.command(ctx, j.binary, j.args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%s exited with code %d: %s", j.name, exitErr.ExitCode(), tail(out.String(), 512))
	}
	return fmt.Errorf("failed to run %s: %w", j.name, err)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Entry is a job and its schedule.
type Entry struct {
	Schedule string
	Job      Job
}

// ScraperEntries returns the standard schedule of scraper runs. Times are
// local to the daemon.
func ScraperEntries(binary string) []Entry {
	cmd := func(name string, args ...string) Job { return NewCommandJob(name, binary, args...) }
	return []Entry{
		{"0 */15 9-14 * * MON-FRI", cmd("intradaily", "--intradaily_data")},
		{"0 30 18 * * MON-FRI", cmd("daily_summary", "--days_from", "7", "--daily_summary_data")},
		{"0 0 19 * * MON-FRI", cmd("dividends", "--days_from", "30", "--dividends")},
		{"0 30 19 * * MON-FRI", cmd("technical_analysis", "--days_from", "7", "--technical_analysis_data")},
		{"0 0 20 * * MON-FRI", cmd("broker_reports", "--days_from", "7", "--broker_reports")},
		{"0 0 6 * * *", cmd("news", "--days_from", "3", "--news")},
		{"0 0 21 * * *", cmd("covid", "--days_from", "7", "--covid_data")},
		{"0 0 4 * * SAT", cmd("listed_equities", "--full_history", "--listed_equities")},
		{"0 0 5 * * SUN", cmd("financial_reports", "--full_history", "--financial_reports")},
	}
}
