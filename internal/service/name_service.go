package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/pkg/kv"
	"github.com/maheshrc27/fanflow/pkg/logger"
	"github.com/maheshrc27/fanflow/pkg/utils"
)

const (
	NameJobIdle    = "idle"
	NameJobRunning = "running"

	nameJobLockKey  = "fanflow:jobs:names:lock"
	nameJobStateKey = "fanflow:jobs:names:state"
	nameJobLockTTL  = time.Hour
	nameJobPageSize = 100
	maxNameLength   = 40
)

// NameJobState is the shared record of the fan-name generation job.
type NameJobState struct {
	Status     string     `json:"status"`
	Processed  int        `json:"processed"`
	Failed     int        `json:"failed"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

type NameService interface {
	Start(ctx context.Context) (bool, error)
	Status(ctx context.Context) (*NameJobState, error)
	Run(ctx context.Context) (*NameJobState, error)
}

type nameService struct {
	fans     repository.FanRepository
	gen      TextGenerator
	store    kv.Store
	log      *logger.Logger
	now      func() time.Time
	pageSize int

	wg sync.WaitGroup
}

func NewNameService(fans repository.FanRepository, gen TextGenerator, store kv.Store, log *logger.Logger) NameService {
	if log == nil {
		log = logger.Nop()
	}
	return &nameService{fans: fans, gen: gen, store: store, log: log, now: time.Now, pageSize: nameJobPageSize}
}

// Start launches a background run unless one is already in progress anywhere.
func (s *nameService) Start(ctx context.Context) (bool, error) {
	ok, err := s.store.SetNX(ctx, nameJobLockKey, s.now().UTC().Format(time.RFC3339), nameJobLockTTL)
	if err != nil {
		return false, fmt.Errorf("acquire name job lock: %w", err)
	}
	if !ok {
		return false, nil
	}

	started := s.now().UTC()
	if err := s.saveState(ctx, &NameJobState{Status: NameJobRunning, StartedAt: &started}); err != nil {
		_ = s.store.Del(ctx, nameJobLockKey)
		return false, err
	}

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if err := s.store.Del(runCtx, nameJobLockKey); err != nil {
				s.log.Error(runCtx, "release name job lock", err)
			}
		}()
		if _, err := s.run(runCtx, started); err != nil {
			s.log.Error(runCtx, "name generation failed", err)
		}
	}()
	return true, nil
}

func (s *nameService) Status(ctx context.Context) (*NameJobState, error) {
	raw, err := s.store.Get(ctx, nameJobStateKey)
	if err != nil {
		if kv.IsMissing(err) {
			return &NameJobState{Status: NameJobIdle}, nil
		}
		return nil, fmt.Errorf("read name job state: %w", err)
	}
	var state NameJobState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode name job state: %w", err)
	}
	if state.Status == NameJobRunning {
		// a run that died keeps its state but not its lock
		if _, err := s.store.Get(ctx, nameJobLockKey); kv.IsMissing(err) {
			state.Status = NameJobIdle
			state.LastError = "run ended without finishing"
		}
	}
	return &state, nil
}

// Run generates names synchronously; Start uses it in the background.
func (s *nameService) Run(ctx context.Context) (*NameJobState, error) {
	return s.run(ctx, s.now().UTC())
}

func (s *nameService) run(ctx context.Context, started time.Time) (*NameJobState, error) {
	state := &NameJobState{Status: NameJobRunning, StartedAt: &started}

	finish := func(runErr error) (*NameJobState, error) {
		finished := s.now().UTC()
		state.Status = NameJobIdle
		state.FinishedAt = &finished
		if runErr != nil {
			state.LastError = runErr.Error()
		}
		if err := s.saveState(ctx, state); err != nil {
			s.log.Error(ctx, "save name job state", err)
		}
		return state, runErr
	}

	// keyset paging so fans that keep failing never block the rest
	var after int64
	for {
		fans, err := s.fans.ListWithoutGeneratedName(ctx, after, s.pageSize)
		if err != nil {
			return finish(fmt.Errorf("list fans: %w", err))
		}
		if len(fans) == 0 {
			return finish(nil)
		}

		for _, fan := range fans {
			after = fan.ID
			if err := s.nameFan(ctx, fan); err != nil {
				state.Failed++
				state.LastError = err.Error()
				continue
			}
			state.Processed++
		}
		if err := s.saveState(ctx, state); err != nil {
			s.log.Error(ctx, "save name job state", err)
		}
	}
}

func (s *nameService) nameFan(ctx context.Context, fan *models.Fan) error {
	prompt := fmt.Sprintf(
		"Suggest one short, friendly first name to greet this fan in a chat message. Reply with the name only.\n"+
			"Username: %s\nDisplay name: %s", fan.Username, fan.Name)
	out, err := s.gen.Complete(ctx, prompt)
	if err != nil {
		return err
	}
	name := cleanGeneratedName(out)
	if name == "" {
		return fmt.Errorf("empty name generated for fan %d", fan.ID)
	}
	return s.fans.SetGeneratedName(ctx, fan.ID, name)
}

func (s *nameService) saveState(ctx context.Context, state *NameJobState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	// a running state expires with the lock; the final state is kept
	ttl := time.Duration(0)
	if state.Status == NameJobRunning {
		ttl = nameJobLockTTL
	}
	if err := s.store.Set(ctx, nameJobStateKey, string(raw), ttl); err != nil {
		return fmt.Errorf("write name job state: %w", err)
	}
	return nil
}

func cleanGeneratedName(out string) string {
	lines := splitCompletionLines(out)
	if len(lines) == 0 {
		return ""
	}
	name := strings.Trim(lines[0], `"'.!`)
	return strings.TrimSpace(utils.Truncate(name, maxNameLength))
}
