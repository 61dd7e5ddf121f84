// Package history records battle notifications to a SQLite database so a
// finished battle can be reviewed later. It is a notify.Listener and is meant
// to sit behind a notify.Queue so writes never stall the dispatcher.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"showdown-mirror/game"
)

// Battle is one battle-start-to-next-start span. EndedAt stays nil until a
// win or tie line is seen; Winner is empty on a tie.
type Battle struct {
	ID        uint `gorm:"primaryKey"`
	Room      string
	StartedAt time.Time
	EndedAt   *time.Time
	Winner    string
	Events    []Event
}

// Event kinds.
const (
	KindSlot    = "slot"
	KindSwitch  = "switch"
	KindHP      = "hp"
	KindFaint   = "faint"
	KindTurn    = "turn"
	KindRequest = "request"
	KindEnd     = "end"
)

type Event struct {
	ID        uint `gorm:"primaryKey"`
	BattleID  uint `gorm:"index"`
	Kind      string
	Turn      int
	Position  string
	Name      string
	Level     int
	Before    int
	After     int
	Payload   datatypes.JSON
	CreatedAt time.Time
}

type Recorder struct {
	db   *gorm.DB
	room string
	log  zerolog.Logger
	now  func() time.Time

	mu     sync.Mutex
	battle uint
	turn   int
}

// Open creates or opens the database at path. ":memory:" gives a throwaway
// database.
func Open(path, room string, log zerolog.Logger) (*Recorder, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history db %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Battle{}, &Event{}); err != nil {
		return nil, fmt.Errorf("migrating history db: %w", err)
	}
	return &Recorder{
		db:   db,
		room: room,
		log:  log.With().Str("component", "history").Logger(),
		now:  time.Now,
	}, nil
}

func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Battles lists recorded battles, newest first.
func (r *Recorder) Battles() ([]Battle, error) {
	var out []Battle
	err := r.db.Order("id desc").Find(&out).Error
	return out, err
}

// Events lists the events of one battle in arrival order.
func (r *Recorder) Events(battleID uint) ([]Event, error) {
	var out []Event
	err := r.db.Where("battle_id = ?", battleID).Order("id").Find(&out).Error
	return out, err
}

// Requests lists the request payloads a battle received for one side id
// ("p1" or "p2").
func (r *Recorder) Requests(battleID uint, sideID string) ([]Event, error) {
	var out []Event
	err := r.db.
		Where("battle_id = ? AND kind = ?", battleID, KindRequest).
		Where(datatypes.JSONQuery("payload").Equals(sideID, "side", "id")).
		Order("id").
		Find(&out).Error
	return out, err
}

func (r *Recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.battle == 0 {
		// Joined mid-battle: open an implicit battle for what we see.
		if err := r.startLocked(); err != nil {
			return
		}
	}
	ev.BattleID = r.battle
	ev.Turn = r.turn
	ev.CreatedAt = r.now()
	if err := r.db.Create(&ev).Error; err != nil {
		r.log.Error().Err(err).Str("kind", ev.Kind).Msg("failed to record event")
	}
}

func (r *Recorder) startLocked() error {
	b := Battle{Room: r.room, StartedAt: r.now()}
	if err := r.db.Create(&b).Error; err != nil {
		r.log.Error().Err(err).Msg("failed to record battle")
		return err
	}
	r.battle = b.ID
	return nil
}

func (r *Recorder) BattleStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turn = 0
	_ = r.startLocked()
}

func (r *Recorder) SlotAssigned(side game.Side) {
	r.record(Event{Kind: KindSlot, Position: side.String()})
}

func (r *Recorder) Switched(pos game.Position, name string, level, hpPercent int) {
	r.record(Event{Kind: KindSwitch, Position: pos.String(), Name: name, Level: level, After: hpPercent})
}

func (r *Recorder) HPChanged(pos game.Position, prevPercent, newPercent int) {
	r.record(Event{Kind: KindHP, Position: pos.String(), Before: prevPercent, After: newPercent})
}

func (r *Recorder) Fainted(pos game.Position, name string) {
	r.record(Event{Kind: KindFaint, Position: pos.String(), Name: name})
}

func (r *Recorder) TurnChanged(turn int) {
	r.mu.Lock()
	r.turn = turn
	r.mu.Unlock()
	r.record(Event{Kind: KindTurn})
}

func (r *Recorder) Request(payload string) {
	r.record(Event{Kind: KindRequest, Payload: datatypes.JSON(payload)})
}

func (r *Recorder) BattleEnded(winner string) {
	r.record(Event{Kind: KindEnd, Name: winner})

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.battle == 0 {
		return
	}
	err := r.db.Model(&Battle{ID: r.battle}).Updates(map[string]any{
		"winner":   winner,
		"ended_at": r.now(),
	}).Error
	if err != nil {
		r.log.Error().Err(err).Uint("battle", r.battle).Msg("failed to record result")
	}
}
