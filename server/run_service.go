package server

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	algoviz "github.com/petal-labs/algoviz"
	"github.com/petal-labs/algoviz/bus"
	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
)

const (
	statusRunning = "running"

	// Run origins recorded on run.started and run.finished.
	originAPI  = "api"
	originLive = "live"

	maxSequenceSize = 1000
	maxGridSide     = 200
	maxSpeedMs      = 10_000
)

type runAPIError struct {
	Status  int
	Code    string
	Message string
}

func (e *runAPIError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func badRun(code, format string, args ...any) error {
	return &runAPIError{Status: http.StatusBadRequest, Code: code, Message: fmt.Sprintf(format, args...)}
}

// runPlan is a validated StartRunRequest.
type runPlan struct {
	runID string
	alg   core.Algorithm
	cfg   algoviz.Config
}

func (s *Server) planRun(req StartRunRequest) (*runPlan, error) {
	alg, err := core.ParseAlgorithm(req.Algorithm)
	if err != nil {
		return nil, badRun("INVALID_ALGORITHM", "%v", err)
	}
	cat := alg.Category()
	rng := core.NewRand(rand.Uint64())

	delay := s.defaults.Delay(cat)
	if req.SpeedMs != nil {
		ms := *req.SpeedMs
		if ms > maxSpeedMs {
			return nil, badRun("INVALID_SPEED", "speed_ms must be at most %d", maxSpeedMs)
		}
		delay = time.Duration(max(ms, 1)) * time.Millisecond
	}

	cfg := algoviz.Config{
		Speed:      delay,
		PathTicker: runtime.NewFixedTicker(s.defaults.Speed.PathTrace),
		Rand:       rng,
		Logger:     s.logger,
	}
	if req.UserID != "" {
		cfg.UserID = req.UserID
		cfg.Activity = s.activityLog
	}

	switch cat {
	case core.CategorySorting, core.CategorySearching:
		values, err := s.planSequence(rng, alg, req)
		if err != nil {
			return nil, err
		}
		cfg.Values = values
		if cat == core.CategorySearching {
			if req.Target != nil {
				cfg.Target = *req.Target
			} else {
				cfg.Target = values[rng.IntN(len(values))]
			}
		}

	case core.CategoryPathfinding:
		grid, err := s.planGrid(req.Grid)
		if err != nil {
			return nil, err
		}
		cfg.Grid = grid
	}

	return &runPlan{runID: newRunID(), alg: alg, cfg: cfg}, nil
}

func (s *Server) planSequence(rng *rand.Rand, alg core.Algorithm, req StartRunRequest) ([]int, error) {
	if len(req.Values) > 0 {
		if len(req.Values) > maxSequenceSize {
			return nil, badRun("INVALID_SEQUENCE", "at most %d values are allowed", maxSequenceSize)
		}
		return req.Values, nil
	}

	size := req.Size
	if size == 0 {
		size = s.defaults.Sequence.SortSize
		if alg.Category() == core.CategorySearching {
			size = s.defaults.Sequence.SearchSize
		}
	}
	if size < 1 || size > maxSequenceSize {
		return nil, badRun("INVALID_SEQUENCE", "size must be between 1 and %d", maxSequenceSize)
	}
	if alg == core.BinarySearch {
		return core.GenerateSortedSequence(rng, size), nil
	}
	return core.GenerateSequence(rng, size), nil
}

func (s *Server) planGrid(req *GridRequest) (*core.Grid, error) {
	rows, cols := s.defaults.Grid.Rows, s.defaults.Grid.Cols
	if req == nil {
		return core.NewGrid(rows, cols)
	}
	if req.Rows != 0 {
		rows = req.Rows
	}
	if req.Cols != 0 {
		cols = req.Cols
	}
	if rows < 2 || cols < 2 || rows > maxGridSide || cols > maxGridSide {
		return nil, badRun("INVALID_GRID", "grid must be between 2x2 and %dx%d", maxGridSide, maxGridSide)
	}

	start, end := core.DefaultEndpoints(rows, cols)
	if req.Start != nil {
		start = *req.Start
	}
	if req.End != nil {
		end = *req.End
	}
	grid, err := core.NewGridWithEndpoints(rows, cols, start, end)
	if err != nil {
		return nil, badRun("INVALID_GRID", "%v", err)
	}
	for _, p := range req.Walls {
		if !grid.InBounds(p) {
			return nil, badRun("INVALID_GRID", "wall (%d,%d) is out of bounds", p.Row, p.Col)
		}
		if p == start || p == end {
			return nil, badRun("INVALID_GRID", "wall (%d,%d) covers an endpoint", p.Row, p.Col)
		}
		grid.SetWall(p, true)
	}
	return grid, nil
}

// runPublisher persists and publishes the events of runs started by this
// server. Renders are coalesced; Close flushes and stops it.
func (s *Server) runPublisher() *bus.ThrottledEmitter {
	var persist *bus.StoreSubscriber
	if s.eventStore != nil {
		persist = bus.NewStoreSubscriber(s.eventStore, s.logger)
	}
	eb := s.bus
	return bus.NewThrottledEmitter(func(e runtime.Event) {
		if persist != nil {
			persist.Handle(e)
		}
		eb.Publish(e)
	}, bus.ThrottleConfig{})
}

// runConfig wires a controller config to the server's event plumbing.
func (s *Server) runConfig(cfg algoviz.Config, pub runtime.EventPublisher, origin string) algoviz.Config {
	cfg.EventBus = pub
	cfg.EventHandler = runtime.MultiEventHandler(cfg.EventHandler, s.runtimeEvents)
	cfg.EmitterDecorator = combineEmitDecorators(s.emitDecorator, runOriginDecorator(origin))
	return cfg
}

// launchRun starts plan on a fresh controller owned by the server. The run
// outlives the request; Shutdown cancels it.
func (s *Server) launchRun(plan *runPlan, origin string) error {
	pub := s.runPublisher()
	ctrl, err := algoviz.NewController(s.runConfig(plan.cfg, pub, origin))
	if err != nil {
		pub.Close()
		return badRun("INVALID_RUN", "%v", err)
	}

	s.markRunActive(plan.runID, ctrl)
	s.runWG.Add(1)
	if !ctrl.Start(s.runCtx, algoviz.Request{Algorithm: plan.alg, RunID: plan.runID}) {
		s.markRunInactive(plan.runID)
		s.runWG.Done()
		pub.Close()
		return &runAPIError{Status: http.StatusInternalServerError, Code: "RUNTIME_ERROR", Message: "run did not start"}
	}

	s.logger.Info("run started", "run_id", plan.runID, "algorithm", plan.alg.Slug(), "origin", origin)
	go func() {
		defer s.runWG.Done()
		ctrl.Wait()
		pub.Close()
		s.markRunInactive(plan.runID)
	}()
	return nil
}

func combineEmitDecorators(
	first runtime.EventEmitterDecorator,
	second runtime.EventEmitterDecorator,
) runtime.EventEmitterDecorator {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	default:
		return func(emit runtime.EventEmitter) runtime.EventEmitter {
			return second(first(emit))
		}
	}
}

func runOriginDecorator(origin string) runtime.EventEmitterDecorator {
	return func(next runtime.EventEmitter) runtime.EventEmitter {
		return func(e runtime.Event) {
			if e.Kind == runtime.EventRunStarted || e.Kind == runtime.EventRunFinished {
				if e.Payload == nil {
					e.Payload = map[string]any{}
				}
				e.Payload["origin"] = origin
			}
			next(e)
		}
	}
}
