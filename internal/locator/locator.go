package locator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"udpwatch/internal/execx"
	"udpwatch/internal/model"
)

const (
	BackendProc  = "proc"
	BackendPgrep = "pgrep"
)

// Locator finds the process currently producing an endpoint's stream.
// Absence is a normal result; Locate never fails.
type Locator interface {
	Locate(ctx context.Context, ep model.Endpoint) model.ProcessHandle
}

// New returns the locator for the named backend.
func New(backend string, logger *zap.Logger) (Locator, error) {
	switch backend {
	case "", BackendProc:
		return NewProcScanner("/proc", logger), nil
	case BackendPgrep:
		return NewPgrep(execx.NewOSRunner(), logger), nil
	default:
		return nil, fmt.Errorf("unknown locator backend %q", backend)
	}
}

// ProcScanner matches command lines read directly from a procfs tree.
type ProcScanner struct {
	root   string
	self   int
	logger *zap.Logger
}

func NewProcScanner(root string, logger *zap.Logger) *ProcScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcScanner{root: root, self: os.Getpid(), logger: logger.Named("locator")}
}

func (s *ProcScanner) Locate(ctx context.Context, ep model.Endpoint) model.ProcessHandle {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Debug("process table unreadable", zap.String("root", s.root), zap.Error(err))
		return model.ProcessHandle{}
	}

	pattern := ep.Pattern()
	pids := make([]int, 0, 4)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 || pid == s.self {
			continue
		}
		// The process may exit between ReadDir and ReadFile.
		raw, err := os.ReadFile(filepath.Join(s.root, entry.Name(), "cmdline"))
		if err != nil || len(raw) == 0 {
			continue
		}
		cmdline := strings.ReplaceAll(string(raw), "\x00", " ")
		if strings.Contains(cmdline, pattern) {
			pids = append(pids, pid)
		}
	}
	return first(pids, pattern, s.logger)
}

// Pgrep shells out to pgrep -f, the way the transcoder scripts always did.
type Pgrep struct {
	runner execx.Runner
	logger *zap.Logger
}

func NewPgrep(runner execx.Runner, logger *zap.Logger) *Pgrep {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pgrep{runner: runner, logger: logger.Named("locator")}
}

func (p *Pgrep) Locate(ctx context.Context, ep model.Endpoint) model.ProcessHandle {
	pattern := ep.Pattern()
	out, err := p.runner.Output(ctx, "pgrep", "-f", pattern)
	if err != nil {
		// pgrep exits 1 when nothing matched.
		if execx.ExitCode(err) != 1 {
			p.logger.Debug("pgrep failed", zap.String("pattern", pattern), zap.Error(err))
		}
		if out == "" {
			return model.ProcessHandle{}
		}
	}
	return first(parsePIDs(out, p.logger), pattern, p.logger)
}

// parsePIDs extracts one PID per line, skipping anything unparsable.
func parsePIDs(out string, logger *zap.Logger) []int {
	var pids []int
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil || pid <= 0 {
			logger.Debug("skipping malformed pgrep line", zap.String("line", line))
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

func first(pids []int, pattern string, logger *zap.Logger) model.ProcessHandle {
	if len(pids) == 0 {
		return model.ProcessHandle{}
	}
	sort.Ints(pids)
	if len(pids) > 1 {
		logger.Debug("multiple processes match endpoint, using lowest pid",
			zap.String("pattern", pattern), zap.Ints("pids", pids))
	}
	return model.ProcessHandle{PID: pids[0]}
}
