package ledger

import (
	"time"

	"gorm.io/datatypes"
)

// KillRecord is one casualty: a death or a knockout.
type KillRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	MissionID  string    `gorm:"size:128;index:idx_kill_mission" json:"missionId"`
	Turn       int       `json:"turn"`
	VictimID   int       `json:"victimId"`
	VictimSide string    `gorm:"size:16" json:"victimSide"`
	MurdererID int       `json:"murdererId"`
	Weapon     string    `gorm:"size:64" json:"weapon"`
	Outcome    string    `gorm:"size:16;index" json:"outcome"`
	// Details holds the full notice payload.
	Details datatypes.JSON `json:"details"`
}

// TableName fixes the table name.
func (*KillRecord) TableName() string { return "kill_records" }

// BattleSnapshot is the battle state persisted whenever a turn ends or the mission finishes.
type BattleSnapshot struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	MissionID string         `gorm:"size:128;index:idx_snapshot_mission" json:"missionId"`
	Turn      int            `json:"turn"`
	Side      string         `gorm:"size:16" json:"side"`
	Finished  bool           `json:"finished"`
	Reason    string         `gorm:"size:64" json:"reason"`
	State     datatypes.JSON `json:"state"`
}

// TableName fixes the table name.
func (*BattleSnapshot) TableName() string { return "battle_snapshots" }
