package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/ai"
	"squadfire/battlecore/internal/battle"
	"squadfire/battlecore/internal/bots"
	"squadfire/battlecore/internal/casualty"
	"squadfire/battlecore/internal/config"
	"squadfire/battlecore/internal/dice"
	"squadfire/battlecore/internal/events"
	httpapi "squadfire/battlecore/internal/http"
	"squadfire/battlecore/internal/ledger"
	"squadfire/battlecore/internal/logging"
	"squadfire/battlecore/internal/replay"
	"squadfire/battlecore/internal/scenario"
	"squadfire/battlecore/internal/simulation"
	"squadfire/battlecore/internal/unit"
)

// runner owns one battle and everything that observes it.
type runner struct {
	cfg      *config.Config
	log      *logging.Logger
	scenario *scenario.Scenario
	seed     int64

	game     *battle.Game
	squad    *bots.Controller
	stream   *events.Stream
	recorder *replay.Recorder
	ledger   *ledger.Ledger
	monitor  *simulation.TickMonitor

	status atomic.Pointer[httpapi.Status]
}

// newRunner builds the battle from the scenario and wires the sinks. Nothing runs yet.
func newRunner(ctx context.Context, cfg *config.Config, sc *scenario.Scenario, log *logging.Logger) (*runner, error) {
	if log == nil {
		log = logging.L()
	}
	field, err := sc.Build()
	if err != nil {
		return nil, fmt.Errorf("build scenario %s: %w", sc.Name, err)
	}
	r := &runner{cfg: cfg, log: log, scenario: sc, monitor: simulation.NewTickMonitor()}

	//1.- Seed precedence: configuration, then scenario, then the clock.
	r.seed = cfg.Simulation.Seed
	if r.seed == 0 {
		r.seed = sc.Seed
	}
	if r.seed == 0 {
		r.seed = time.Now().UnixNano()
	}
	missionID := cfg.Ledger.Resume
	if missionID == "" {
		missionID = sc.Name + "-" + uuid.NewString()
	}
	r.log = log.With(logging.String("mission_id", missionID))

	//2.- Sinks: the presentation stream, the replay recorder and the ledger.
	r.stream = events.NewStream(events.Config{Retain: cfg.Feed.Retain})
	sinks := battle.Sinks{events.NewSink(r.stream, nil, r.log)}
	if cfg.Replay.Dir != "" {
		writer, _, err := replay.NewWriter(cfg.Replay.Dir, missionID, nil)
		if err != nil {
			return nil, err
		}
		writer.SetHeader(r.seed, sc.Name, sc.RulesSummary())
		r.recorder = replay.NewRecorder(writer, func() any { return r.game.Snapshot() }, r.log)
		sinks = append(sinks, r.recorder)
	}
	r.ledger, err = ledger.Open(cfg.Ledger, r.log)
	if err != nil {
		_ = r.recorder.Close()
		return nil, err
	}
	if r.ledger != nil {
		r.ledger.Attach(func() battle.Snapshot { return r.game.Snapshot() })
		sinks = append(sinks, r.ledger)
	}

	doctrine := ai.Default()
	r.game = battle.New(field.Roster, field.Armory, field.Grid, field.Grid,
		battle.WithMissionID(missionID),
		battle.WithRules(field.Rules),
		battle.WithObjectives(field.Objectives),
		battle.WithRandom(dice.New(r.seed)),
		battle.WithThrowAttempts(cfg.Rules.ThrowAttempts),
		battle.WithAILimits(cfg.Rules.AITimeUnitThreshold, cfg.Rules.AIActionBound),
		battle.WithDebugPlay(cfg.Rules.DebugPlay),
		battle.WithModifiers(casualty.Modifiers{
			Player:            cfg.Rules.PlayerMorale,
			Hostile:           cfg.Rules.HostileMorale,
			FriendlyFireFloor: cfg.Rules.FriendlyFireFloor,
		}),
		battle.WithBehaviors(func(g *battle.Game, a *unit.Actor) action.Behavior {
			return doctrine.For(a.Handle, g)
		}),
		battle.WithSink(sinks),
		battle.WithLogger(log),
	)
	r.squad = bots.NewController(bots.ControllerConfig{
		Side:         unit.FactionPlayer,
		MinTimeUnits: cfg.Rules.AITimeUnitThreshold,
		Planner:      bots.DoctrinePlanner(doctrine),
		Logger:       r.log,
	})

	//3.- A resumed mission continues from its latest ledger snapshot.
	if cfg.Ledger.Resume != "" && r.ledger != nil {
		snap, row, err := r.ledger.LatestSnapshot(ctx, cfg.Ledger.Resume)
		switch {
		case errors.Is(err, ledger.ErrNoSnapshot):
			r.log.Warn("no snapshot to resume, starting fresh")
		case err != nil:
			r.close(ctx)
			return nil, fmt.Errorf("load snapshot: %w", err)
		case row.Finished:
			r.close(ctx)
			return nil, fmt.Errorf("mission %s already finished: %s", cfg.Ledger.Resume, row.Reason)
		default:
			if err := r.game.Restore(snap); err != nil {
				r.close(ctx)
				return nil, err
			}
			r.log.Info("resumed battle", logging.Int("turn", snap.Turn), logging.String("side", snap.Side.String()))
		}
	}
	return r, nil
}

// run starts the battle and ticks it until it ends.
func (r *runner) run(ctx context.Context) simulation.Result {
	r.game.Start(ctx)
	r.publishStatus(0)
	loop := simulation.NewLoop(float64(r.cfg.Simulation.TickHz), r.game,
		simulation.WithMaxTicks(r.cfg.Simulation.MaxTicks),
		simulation.WithMonitor(r.monitor),
		simulation.WithLogger(r.log),
		simulation.WithAfterTick(r.afterTick),
	)
	result := loop.Run(ctx)
	r.publishStatus(result.Ticks)
	outcome := r.game.Outcome()
	r.log.Info("battle over", append(outcome.LoggingFields(), logging.Int("ticks", result.Ticks), logging.String("stop", result.Reason))...)
	return result
}

// afterTick plays the squad and refreshes the published status. It runs on the loop goroutine.
func (r *runner) afterTick(ctx context.Context, tick int) {
	r.squad.Step(ctx, r.game)
	r.publishStatus(tick)
}

func (r *runner) publishStatus(tick int) {
	session := r.game.Session()
	outcome := r.game.Outcome()
	ticks := r.monitor.Snapshot()
	r.status.Store(&httpapi.Status{
		Mission:  session.MissionID,
		Turn:     session.Turn,
		Side:     session.Side.String(),
		Finished: outcome.Finished,
		Reason:   outcome.Reason,
		State: map[string]any{
			"tick":            tick,
			"tick_avg_ms":     float64(ticks.Average) / float64(time.Millisecond),
			"tick_max_ms":     float64(ticks.Max) / float64(time.Millisecond),
			"tick_recent_ms":  float64(ticks.Recent) / float64(time.Millisecond),
			"squad":           r.squad.Snapshot(),
			"won":             outcome.Won,
			"aborted":         outcome.Aborted,
			"exit_count":      outcome.ExitCount,
			"ledger_failures": r.ledger.Failures(),
			"latest_sequence": r.stream.Latest(),
		},
	})
}

// currentStatus implements httpapi.StatusFunc.
func (r *runner) currentStatus() (httpapi.Status, bool) {
	s := r.status.Load()
	if s == nil {
		return httpapi.Status{}, false
	}
	return *s, true
}

// flushReplay implements httpapi.ReplayFlusher.
func (r *runner) flushReplay(ctx context.Context) (string, error) {
	if r.recorder == nil {
		return "", errors.New("replay recording disabled")
	}
	return r.recorder.FlushReplay(ctx)
}

// close flushes and releases the replay and the ledger.
func (r *runner) close(ctx context.Context) {
	if err := r.recorder.Close(); err != nil {
		r.log.Warn("replay close failed", logging.Error(err))
	} else if r.recorder != nil {
		stats := r.recorder.Snapshot()
		r.log.Info("replay written", logging.String("directory", stats.Directory), logging.Int("events", stats.Events), logging.Int("turns", stats.Turns))
	}
	if err := r.ledger.Flush(ctx); err != nil {
		r.log.Warn("ledger flush failed", logging.Error(err))
	}
	if err := r.ledger.Close(); err != nil {
		r.log.Warn("ledger close failed", logging.Error(err))
	}
}
