// Package task runs sync sessions as supervised background tasks. Each task
// owns a stop token; the supervisor enforces one running task per kind so
// two crawls never interleave requests against the same remote session.
package task

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"zsxqsync/pkg/clock"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/syncer"
)

// Kind distinguishes what a task crawls.
type Kind string

const (
	KindTopics Kind = "topics"
	KindFiles  Kind = "files"
)

// Status of a task.
type Status string

const (
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Info is a point-in-time snapshot of one task.
type Info struct {
	ID      string
	Kind    Kind
	Status  Status
	Started time.Time
	Ended   time.Time
	Result  *syncer.Result
}

type task struct {
	info Info
	tok  *clock.Token
}

// Supervisor launches and tracks tasks.
type Supervisor struct {
	mu    sync.Mutex
	tasks map[string]*task
	group errgroup.Group
	log   logger.Logger
}

// NewSupervisor returns an empty supervisor.
func NewSupervisor(log logger.Logger) *Supervisor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Supervisor{
		tasks: make(map[string]*task),
		log:   log,
	}
}

// Launch starts run in the background under a fresh stop token and returns
// the task id. It refuses to start while another task of the same kind is
// running.
func (s *Supervisor) Launch(kind Kind, run func(tok *clock.Token) syncer.Result) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.info.Kind == kind && t.info.Status == StatusRunning {
			return "", fmt.Errorf("a %s task is already running (%s)", kind, t.info.ID)
		}
	}

	id := uuid.New().String()
	t := &task{
		info: Info{
			ID:      id,
			Kind:    kind,
			Status:  StatusRunning,
			Started: time.Now(),
		},
		tok: clock.NewToken(),
	}
	s.tasks[id] = t

	s.log.InfoWithFields("task launched", map[string]interface{}{
		"task": id,
		"kind": kind,
	})

	s.group.Go(func() error {
		result := run(t.tok)
		s.finish(id, result)
		if result.State == syncer.StateFailed {
			return fmt.Errorf("task %s: %w", id, result.Err)
		}
		return nil
	})

	return id, nil
}

func (s *Supervisor) finish(id string, result syncer.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tasks[id]
	t.info.Ended = time.Now()
	t.info.Result = &result
	switch result.State {
	case syncer.StateDone:
		t.info.Status = StatusDone
	case syncer.StateCancelled:
		t.info.Status = StatusCancelled
	default:
		t.info.Status = StatusFailed
	}

	s.log.InfoWithFields("task finished", map[string]interface{}{
		"task":     id,
		"status":   t.info.Status,
		"duration": t.info.Ended.Sub(t.info.Started),
	})
}

// Stop sets the task's stop token. The task winds down cooperatively;
// returns false for an unknown id.
func (s *Supervisor) Stop(id string) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	t.tok.Stop()
	return true
}

// StopAll stops every running task.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.info.Status == StatusRunning {
			t.tok.Stop()
		}
	}
}

// Wait blocks until every launched task has finished and returns the first
// failure, if any.
func (s *Supervisor) Wait() error {
	return s.group.Wait()
}

// Snapshot returns a copy of the task's state.
func (s *Supervisor) Snapshot(id string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Info{}, false
	}
	return t.info, true
}

// List returns snapshots of every task, newest first.
func (s *Supervisor) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]Info, 0, len(s.tasks))
	for _, t := range s.tasks {
		infos = append(infos, t.info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Started.After(infos[j].Started)
	})
	return infos
}
