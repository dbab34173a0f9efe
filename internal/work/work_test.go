package work

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinistocks/pipeline/internal/domain"
)

func dates(ss ...string) []domain.Date {
	out := make([]domain.Date, len(ss))
	for i, s := range ss {
		out[i] = domain.MustParseDate(s)
	}
	return out
}

func TestNewPlan_SplitsBusinessDays(t *testing.T) {
	latest := domain.MustParseDate("2020-01-05") // Sunday
	today := domain.MustParseDate("2020-01-10")  // Friday

	plan := NewPlan("daily_summary", StartAfter(latest), today, nil, 2)

	assert.Equal(t, [][]domain.Date{
		dates("2020-01-06", "2020-01-07"),
		dates("2020-01-08", "2020-01-09", "2020-01-10"),
	}, plan.Partitions)
	assert.Len(t, plan.Dates, 5)
}

func TestMissing(t *testing.T) {
	start := domain.MustParseDate("2020-01-03")
	today := domain.MustParseDate("2020-01-08")

	got := Missing(start, today, dates("2020-01-06"))
	assert.Equal(t, dates("2020-01-03", "2020-01-07", "2020-01-08"), got)

	assert.Empty(t, Missing(today, start, nil))
	assert.Equal(t, dates("2020-01-08"), Missing(today, today, nil))
}

func TestSplit(t *testing.T) {
	all := Missing(domain.MustParseDate("2020-01-01"), domain.MustParseDate("2020-03-31"), nil)

	for _, n := range []int{1, 2, 3, 7, 16, 200} {
		parts := Split(all, n)
		require.Len(t, parts, n)

		var joined []domain.Date
		for i, p := range parts {
			joined = append(joined, p...)
			if i > 0 {
				assert.LessOrEqual(t, len(parts[i-1]), len(p), "sizes never shrink")
				assert.LessOrEqual(t, len(p)-len(parts[0]), 1)
			}
		}
		assert.Equal(t, all, joined, "n=%d", n)
	}

	parts := Split(nil, 3)
	assert.Equal(t, [][]domain.Date{{}, {}, {}}, parts)
	assert.Len(t, Split(dates("2020-01-06"), 0), 1)
}

func TestStartAfter(t *testing.T) {
	assert.Equal(t, HistoryStart, StartAfter(domain.Date{}))
	assert.Equal(t, domain.MustParseDate("2021-03-01"), StartAfter(domain.MustParseDate("2021-02-28")))
	assert.Equal(t, domain.MustParseDate("2021-02-26"), DaysFrom(domain.MustParseDate("2021-03-01"), 3))
}

func TestDatesArgument(t *testing.T) {
	ds := dates("2020-01-06", "2020-01-07")
	arg := FormatDates(ds)
	assert.Equal(t, "2020-01-06,2020-01-07", arg)

	back, err := ParseDates(arg)
	require.NoError(t, err)
	assert.Equal(t, ds, back)

	empty, err := ParseDates(" ")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseDates("2020-01-06,yesterday")
	assert.Error(t, err)
}

func TestWorkerReport_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.msgpack")

	r := NewReport("run-1", "daily_summary", dates("2020-01-06", "2020-01-07"))
	r.Fetch(domain.MustParseDate("2020-01-06"))
	r.Skip(domain.MustParseDate("2020-01-07"))
	r.Rows = 42
	require.NoError(t, r.Write(path))

	got, err := ReadReport(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, []string{"2020-01-06"}, got.Fetched)
	assert.Equal(t, []string{"2020-01-07"}, got.Skipped)
	assert.Equal(t, 42, got.Rows)
	assert.False(t, got.Failed())
	assert.False(t, got.FinishedAt.IsZero())

	r.Fail(errors.New("boom"))
	assert.True(t, r.Failed())

	_, err = ReadReport(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

// TestHelperProcess is the worker started by the pool tests. It fails on
// any partition holding 2020-01-08.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("WORK_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	var datesArg, reportPath, runID string
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case FlagWorkerDates:
			datesArg = args[i+1]
		case FlagReportFile:
			reportPath = args[i+1]
		case FlagRunID:
			runID = args[i+1]
		}
	}
	ds, err := ParseDates(datesArg)
	if err != nil {
		os.Exit(2)
	}
	for _, d := range ds {
		if d.String() == "2020-01-08" {
			os.Exit(3)
		}
	}
	r := NewReport(runID, "test", ds)
	for _, d := range ds {
		r.Fetch(d)
	}
	r.Rows = 10 * len(ds)
	if err := r.Write(reportPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(4)
	}
	os.Exit(0)
}

func newHelperPool(t *testing.T) *Pool {
	p := NewPool("unused", []string{"--daily_summary_data"}, t.TempDir(), zerolog.Nop())
	p.command = func(ctx context.Context, _ string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], append([]string{"-test.run=TestHelperProcess", "--"}, args...)...)
		cmd.Env = append(os.Environ(), "WORK_HELPER_PROCESS=1")
		return cmd
	}
	return p
}

func TestPool_Run(t *testing.T) {
	p := newHelperPool(t)
	parts := [][]domain.Date{
		dates("2020-01-06", "2020-01-07"),
		{},
		dates("2020-01-09", "2020-01-10"),
	}

	results := p.Run(context.Background(), "run-ok", parts)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Worker)
	assert.Equal(t, 2, results[1].Worker)
	for _, r := range results {
		assert.True(t, r.OK())
		require.NotNil(t, r.Report)
		assert.Equal(t, "run-ok", r.Report.RunID)
	}

	s := Summarize(results)
	assert.Equal(t, Summary{Workers: 2, Rows: 40, Fetched: 4}, s)
}

func TestPool_FailedWorkerDoesNotStopSiblings(t *testing.T) {
	p := newHelperPool(t)
	parts := [][]domain.Date{
		dates("2020-01-06", "2020-01-07"),
		dates("2020-01-08", "2020-01-09", "2020-01-10"),
	}

	results := p.Run(context.Background(), "run-fail", parts)
	require.Len(t, results, 2)

	assert.True(t, results[0].OK())
	assert.NotNil(t, results[0].Report)

	assert.False(t, results[1].OK())
	assert.Equal(t, 3, results[1].ExitCode)
	assert.Nil(t, results[1].Report)

	s := Summarize(results)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 20, s.Rows)
}
