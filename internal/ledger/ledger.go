package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"squadfire/battlecore/internal/battle"
	"squadfire/battlecore/internal/config"
	"squadfire/battlecore/internal/logging"
)

// ErrNoSnapshot is returned when a mission has no persisted snapshot.
var ErrNoSnapshot = errors.New("no snapshot recorded")

const queueDepth = 256

// StateFunc captures the battle state. It is called on the battle goroutine.
type StateFunc func() battle.Snapshot

// Ledger persists casualties and turn snapshots. Writes happen on a background worker so
// the battle never waits on the database.
type Ledger struct {
	db    *gorm.DB
	log   *logging.Logger
	state StateFunc

	queue     chan any
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	failures  atomic.Int64
}

// Open connects to the configured database. The "none" driver returns a nil ledger.
func Open(cfg config.LedgerConfig, log *logging.Logger) (*Ledger, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.LedgerNone, "":
		return nil, nil
	case config.LedgerSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case config.LedgerPostgres:
		dialector = postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", cfg.Driver, err)
	}
	if cfg.Driver == config.LedgerSQLite {
		//1.- sqlite serialises writers; one connection avoids busy errors.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return New(db, log)
}

// New migrates the schema and starts the writer.
func New(db *gorm.DB, log *logging.Logger) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("ledger database required")
	}
	if log == nil {
		log = logging.L()
	}
	if err := db.AutoMigrate(&KillRecord{}, &BattleSnapshot{}); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	l := &Ledger{db: db, log: log, queue: make(chan any, queueDepth), done: make(chan struct{})}
	go l.run()
	return l, nil
}

// Attach sets the state source used for snapshots.
func (l *Ledger) Attach(state StateFunc) {
	if l != nil {
		l.state = state
	}
}

// Publish implements battle.Sink.
func (l *Ledger) Publish(n battle.Notice) {
	if l == nil {
		return
	}
	switch n.Kind {
	case battle.NoticeCasualty:
		details, err := json.Marshal(n.Payload())
		if err != nil {
			l.fail("encode casualty", err)
			return
		}
		l.enqueue(&KillRecord{
			MissionID:  n.Mission,
			Turn:       n.Turn,
			VictimID:   intField(n.Fields, "victim"),
			VictimSide: stringField(n.Fields, "victim_side"),
			MurdererID: creditedID(n.Fields),
			Weapon:     stringField(n.Fields, "weapon"),
			Outcome:    stringField(n.Fields, "outcome"),
			Details:    details,
		})
	case battle.NoticeTurnEnded, battle.NoticeMissionFinished:
		if l.state == nil {
			return
		}
		//1.- Encode now; the worker must never touch live battle state.
		state := l.state()
		raw, err := json.Marshal(state)
		if err != nil {
			l.fail("encode snapshot", err)
			return
		}
		row := &BattleSnapshot{MissionID: n.Mission, Turn: state.Turn, Side: state.Side.String(), State: raw}
		if n.Kind == battle.NoticeMissionFinished {
			row.Finished = true
			row.Reason = n.Message
		}
		l.enqueue(row)
	}
}

func (l *Ledger) enqueue(row any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue <- row
	return true
}

// Flush blocks until every queued row has been written.
func (l *Ledger) Flush(ctx context.Context) error {
	if l == nil {
		return nil
	}
	barrier := make(chan struct{})
	if !l.enqueue(barrier) {
		return errors.New("ledger closed")
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and closes the database.
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
		<-l.done
		sqlDB, dbErr := l.db.DB()
		if dbErr != nil {
			err = dbErr
			return
		}
		err = sqlDB.Close()
	})
	return err
}

// Failures reports how many writes failed.
func (l *Ledger) Failures() int {
	if l == nil {
		return 0
	}
	return int(l.failures.Load())
}

func (l *Ledger) run() {
	defer close(l.done)
	for item := range l.queue {
		switch row := item.(type) {
		case chan struct{}:
			close(row)
		case *KillRecord:
			if err := l.db.Create(row).Error; err != nil {
				l.fail("write kill record", err)
			}
		case *BattleSnapshot:
			if err := l.db.Create(row).Error; err != nil {
				l.fail("write snapshot", err)
			}
		}
	}
}

func (l *Ledger) fail(what string, err error) {
	l.failures.Add(1)
	l.log.Warn("ledger "+what+" failed", logging.Error(err))
}

// Kills lists the casualties of a mission in the order they happened.
func (l *Ledger) Kills(ctx context.Context, missionID string) ([]KillRecord, error) {
	var rows []KillRecord
	err := l.db.WithContext(ctx).Where("mission_id = ?", missionID).Order("id").Find(&rows).Error
	return rows, err
}

// LatestSnapshot returns the newest stored state of a mission.
func (l *Ledger) LatestSnapshot(ctx context.Context, missionID string) (battle.Snapshot, BattleSnapshot, error) {
	var row BattleSnapshot
	err := l.db.WithContext(ctx).Where("mission_id = ?", missionID).Order("id desc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return battle.Snapshot{}, row, ErrNoSnapshot
	}
	if err != nil {
		return battle.Snapshot{}, row, err
	}
	var snap battle.Snapshot
	if err := json.Unmarshal(row.State, &snap); err != nil {
		return battle.Snapshot{}, row, fmt.Errorf("decode snapshot %d: %w", row.ID, err)
	}
	return snap, row, nil
}

func intField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// creditedID prefers the unit holding the kill record over the one that fired.
func creditedID(fields map[string]any) int {
	if id := intField(fields, "credited"); id != 0 {
		return id
	}
	return intField(fields, "murderer")
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

var _ battle.Sink = (*Ledger)(nil)
