package infra

import (
	"os"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	cmdlines   map[int]string
	parents    map[int]int  // pid -> ppid, missing means re-parented to init
	alive      map[int]bool // live processes that are not browsers
	killErr    map[int]error
	killedPIDs []int
	currentPID int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		cmdlines:   make(map[int]string),
		parents:    make(map[int]int),
		alive:      make(map[int]bool),
		killErr:    make(map[int]error),
		currentPID: os.Getpid(),
	}
}

func (m *mockProcessManager) FindByCmdline(fragments ...string) ([]int, error) {
	var out []int
	for pid, cmd := range m.cmdlines {
		if containsAll(cmd, fragments) {
			out = append(out, pid)
		}
	}
	return out, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	if err := m.killErr[pid]; err != nil {
		return err
	}
	m.killedPIDs = append(m.killedPIDs, pid)
	delete(m.cmdlines, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	_, ok := m.cmdlines[pid]
	return ok || m.alive[pid]
}

func (m *mockProcessManager) ParentPID(pid int) (int, error) {
	if ppid, ok := m.parents[pid]; ok {
		return ppid, nil
	}
	return 1, nil
}

func (m *mockProcessManager) GetCurrentPID() int {
	return m.currentPID
}

var _ domain.ProcessManager = (*mockProcessManager)(nil)
