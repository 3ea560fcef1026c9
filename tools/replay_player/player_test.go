package replayplayer

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"squadfire/battlecore/internal/battle"
	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/logging"
	"squadfire/battlecore/internal/replay"
	"squadfire/battlecore/internal/unit"
)

func recordBattle(t *testing.T) string {
	t.Helper()
	now := time.Date(2024, 7, 10, 15, 0, 0, 0, time.UTC)
	writer, _, err := replay.NewWriter(t.TempDir(), "night-raid", func() time.Time { return now })
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	writer.SetHeader(42, "farmland", map[string]int{"turn_limit": 3})
	recorder := replay.NewRecorder(writer, func() any { return map[string]int{"alive": 1} }, logging.NewTestLogger())

	//1.- A short battle: a shot, a kill, the end of the turn and the result.
	recorder.Publish(battle.Notice{Mission: "night-raid", Turn: 1, Kind: battle.NoticeBattleStarted})
	recorder.Publish(battle.Notice{Mission: "night-raid", Turn: 1, Kind: battle.NoticeShot, Actor: 1, Action: "aimed", Position: geom.Position{X: 4, Y: 5}})
	recorder.Publish(battle.Notice{Mission: "night-raid", Turn: 1, Kind: battle.NoticeCasualty, Fields: map[string]any{
		"victim": 2, "victim_side": unit.FactionHostile, "murderer": 1, "outcome": "death", "weapon": "rifle",
	}})
	recorder.Publish(battle.Notice{Mission: "night-raid", Turn: 1, Kind: battle.NoticeTurnEnded, Message: "player"})
	recorder.Publish(battle.Notice{Mission: "night-raid", Turn: 1, Kind: battle.NoticeMissionFinished, Message: "elimination"})
	if err := recorder.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return writer.Directory()
}

func TestLoadSummarisesBattle(t *testing.T) {
	summary, err := Load(recordBattle(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if summary.Mission != "night-raid" || summary.Scenario != "farmland" || summary.Seed != 42 {
		t.Fatalf("unexpected identity %+v", summary)
	}
	if summary.Events != 5 || summary.Turns != 2 {
		t.Fatalf("expected 5 events and 2 frames, got %d and %d", summary.Events, summary.Turns)
	}
	if summary.Kinds["shot"] != 1 || summary.Kinds["casualty"] != 1 {
		t.Fatalf("unexpected kinds %v", summary.Kinds)
	}
	if len(summary.Casualties) != 1 || summary.Casualties[0] != "hostile 2 (death) by 1 with rifle" {
		t.Fatalf("unexpected casualties %q", summary.Casualties)
	}
	if summary.Result != "mission finished: elimination" {
		t.Fatalf("unexpected result %q", summary.Result)
	}
	if got := summary.Timeline[1].Text; got != "actor 1 fires aimed at (4,5,0)" {
		t.Fatalf("unexpected shot line %q", got)
	}
	//2.- Frames follow the event that closed them.
	if summary.Timeline[4].Kind != "frame" || summary.Timeline[6].Kind != "frame" {
		t.Fatalf("unexpected frame placement %+v", summary.Timeline)
	}
}

func TestWriteText(t *testing.T) {
	summary, err := Load(recordBattle(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var out bytes.Buffer
	if err := WriteText(&out, summary); err != nil {
		t.Fatalf("write: %v", err)
	}
	text := out.String()
	for _, want := range []string{"mission night-raid (farmland, seed 42)", "5 events, 2 turn frames", "player turn ends", "mission finished: elimination"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
}

func TestLoadRejectsMissingBundle(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected an empty path to fail")
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected a directory without manifest to fail")
	}
}
