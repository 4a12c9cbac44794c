package infra

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBrowserReaper_ReapOrphans(t *testing.T) {
	const prefix = "/tmp/pathfinder-chrome-"

	tests := []struct {
		name       string
		cmdlines   map[int]string
		parents    map[int]int
		alive      []int
		keep       []int
		killErr    map[int]error
		wantKilled []int
	}{
		{
			name: "kills headless browsers with our profile",
			cmdlines: map[int]string{
				101: "chrome --headless --user-data-dir=/tmp/pathfinder-chrome-123 --no-first-run",
				102: "chrome --user-data-dir=/home/me/.config/google-chrome",
				103: "chrome --headless --user-data-dir=/tmp/other-tool-9",
			},
			wantKilled: []int{101},
		},
		{
			name: "keeps browsers owned by the current run",
			cmdlines: map[int]string{
				201: "chrome --headless --user-data-dir=/tmp/pathfinder-chrome-a",
				202: "chrome --headless --user-data-dir=/tmp/pathfinder-chrome-b",
			},
			keep:       []int{202},
			wantKilled: []int{201},
		},
		{
			name: "kill failures are skipped",
			cmdlines: map[int]string{
				301: "chrome --headless --user-data-dir=/tmp/pathfinder-chrome-a",
			},
			killErr:    map[int]error{301: errors.New("operation not permitted")},
			wantKilled: nil,
		},
		{
			name: "leaves browsers of a concurrent live run",
			cmdlines: map[int]string{
				4242: "chrome --headless --user-data-dir=/tmp/pathfinder-chrome-other-run",
			},
			parents:    map[int]int{4242: 4000},
			alive:      []int{4000},
			wantKilled: nil,
		},
		{
			name: "kills browsers whose launcher exited",
			cmdlines: map[int]string{
				501: "chrome --headless --user-data-dir=/tmp/pathfinder-chrome-dead-run",
			},
			parents:    map[int]int{501: 5000},
			wantKilled: []int{501},
		},
		{
			name:       "nothing to reap",
			cmdlines:   map[int]string{},
			wantKilled: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := newMockProcessManager()
			for pid, cmd := range tt.cmdlines {
				pm.cmdlines[pid] = cmd
			}
			for pid, ppid := range tt.parents {
				pm.parents[pid] = ppid
			}
			for _, pid := range tt.alive {
				pm.alive[pid] = true
			}
			for pid, err := range tt.killErr {
				pm.killErr[pid] = err
			}

			reaper := NewBrowserReaper(pm, prefix, zap.NewNop())
			killed, err := reaper.ReapOrphans(tt.keep...)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.wantKilled, killed)
		})
	}
}

func TestBrowserReaper_NeverKillsSelf(t *testing.T) {
	pm := newMockProcessManager()
	pm.cmdlines[pm.currentPID] = "pathfinder --headless --user-data-dir=/tmp/pathfinder-chrome-x"

	killed, err := NewBrowserReaper(pm, "/tmp/pathfinder-chrome-", zap.NewNop()).ReapOrphans()
	require.NoError(t, err)
	assert.Empty(t, killed)
}

func TestProcessManager_CurrentProcess(t *testing.T) {
	pm := NewProcessManager()
	assert.Equal(t, os.Getpid(), pm.GetCurrentPID())
	assert.True(t, pm.IsRunning(os.Getpid()))

	ppid, err := pm.ParentPID(os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, os.Getppid(), ppid)
}
