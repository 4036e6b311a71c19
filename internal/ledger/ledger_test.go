package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSummaryEmpty(t *testing.T) {
	l := New()
	assert.Equal(t, "", l.FormatSummary())
}

func TestFormatSummarySections(t *testing.T) {
	l := New()
	l.Add(Entry{Terminal: "orphan-1", Command: "node server.js", StartedAt: time.Now()})
	l.Add(Entry{Terminal: "term-1", PID: 123, Command: "npm test", StartedAt: time.Now()})
	l.Add(Entry{Terminal: "sub-1", PID: 456, ParentTerminal: "term-1", Command: "jest --watch", StartedAt: time.Now()})
	l.Complete("done-1", 0)
	l.Add(Entry{Terminal: "done-1", PID: 789, Command: "tsc -b", StartedAt: time.Now()})
	l.Complete("done-1", 0)

	summary := l.FormatSummary()
	require.NotEmpty(t, summary)
	assert.True(t, strings.Contains(summary, "### Terminal Sessions"))
	assert.True(t, strings.Contains(summary, "### Unmatched Active"))
	assert.True(t, strings.Contains(summary, "### Recently Completed"))
}

func TestRecentlyCompletedLimitedToThree(t *testing.T) {
	l := New()
	for i := 0; i < 5; i++ {
		term := "t" + string(rune('0'+i))
		l.Add(Entry{Terminal: term, PID: i + 1, Command: "x", StartedAt: time.Now()})
		l.Complete(term, 0)
		time.Sleep(time.Millisecond)
	}

	summary := l.FormatSummary()
	count := strings.Count(summary, "— completed")
	assert.Equal(t, recentlyCompletedLimit, count)
}

func TestAddGeneratesTerminalIDWhenUnnamed(t *testing.T) {
	l := New()
	l.Add(Entry{PID: 42, Command: "anonymous task"})

	summary := l.FormatSummary()
	require.NotEmpty(t, summary)
	assert.True(t, strings.Contains(summary, "term-"))
}

func TestKillMarksStatus(t *testing.T) {
	l := New()
	l.Add(Entry{Terminal: "t1", PID: 1})
	l.Kill("t1")

	summary := l.FormatSummary()
	assert.True(t, strings.Contains(summary, "killed"))
}
