// Package infra implements infrastructure concerns (browser, processes, storage).
package infra

import (
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// FindByCmdline returns PIDs whose command line contains every fragment.
func (pm *ProcessManagerImpl) FindByCmdline(fragments ...string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var found []int
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}
		if containsAll(cmdline, fragments) {
			found = append(found, int(p.Pid))
		}
	}
	return found, nil
}

func containsAll(s string, fragments []string) bool {
	for _, f := range fragments {
		if !strings.Contains(s, f) {
			return false
		}
	}
	return true
}

// Kill terminates a process by PID using SIGKILL.
func (pm *ProcessManagerImpl) Kill(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return p.Kill()
}

// IsRunning checks if a PID exists and is running.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

// ParentPID returns the parent of pid.
func (pm *ProcessManagerImpl) ParentPID(pid int) (int, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	ppid, err := p.Ppid()
	if err != nil {
		return 0, err
	}
	return int(ppid), nil
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)

// BrowserReaper kills headless browsers left behind by earlier runs. Browsers
// are recognised by the user-data-dir prefix every run passes to Chrome. A
// browser whose launching process is still alive belongs to a concurrent run
// and is left alone.
type BrowserReaper struct {
	pm            domain.ProcessManager
	profilePrefix string
	logger        *zap.Logger
}

// NewBrowserReaper creates a reaper for browsers launched with a profile under profilePrefix.
func NewBrowserReaper(pm domain.ProcessManager, profilePrefix string, logger *zap.Logger) *BrowserReaper {
	return &BrowserReaper{pm: pm, profilePrefix: profilePrefix, logger: logger}
}

// ReapOrphans kills every orphaned matching browser except the current process
// and those in keep. It returns the PIDs killed.
func (r *BrowserReaper) ReapOrphans(keep ...int) ([]int, error) {
	pids, err := r.pm.FindByCmdline("--user-data-dir="+r.profilePrefix, "--headless")
	if err != nil {
		return nil, err
	}
	skip := map[int]bool{r.pm.GetCurrentPID(): true}
	for _, pid := range keep {
		skip[pid] = true
	}

	var killed []int
	for _, pid := range pids {
		if skip[pid] {
			continue
		}
		if owner, alive := r.owner(pid); alive {
			r.logger.Debug("browser still owned by a live process", zap.Int("pid", pid), zap.Int("owner", owner))
			continue
		}
		if err := r.pm.Kill(pid); err != nil {
			r.logger.Warn("failed to kill orphan browser", zap.Int("pid", pid), zap.Error(err))
			continue
		}
		killed = append(killed, pid)
	}
	if len(killed) > 0 {
		r.logger.Info("killed orphan browsers", zap.Ints("pids", killed))
	}
	return killed, nil
}

// owner reports the parent of a browser and whether it is a live launcher.
// Orphans are re-parented to init, so PID 1 never counts as an owner.
func (r *BrowserReaper) owner(pid int) (int, bool) {
	ppid, err := r.pm.ParentPID(pid)
	if err != nil || ppid <= 1 {
		return ppid, false
	}
	return ppid, r.pm.IsRunning(ppid)
}
