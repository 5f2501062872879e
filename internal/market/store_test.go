package market

import (
	"reflect"
	"testing"
	"time"

	"github.com/voltrade/voltbot/internal/domain"
)

func liveNFL() domain.PartitionKey {
	return domain.PartitionKey{
		League:     domain.LeagueNFL,
		PeriodType: domain.PeriodFullGame,
		Scope:      domain.ScopeLive,
	}
}

func spreadLine(eventID int64, side, source int, points, price float64, seq int64) domain.MarketLine {
	return domain.MarketLine{
		ID: domain.LineID{
			EventID:    eventID,
			SideIndex:  side,
			BetType:    domain.BetSpread,
			PeriodType: domain.PeriodFullGame,
			Scope:      domain.ScopeLive,
			SourceID:   source,
		},
		Points:   points,
		Price:    price,
		Format:   domain.FormatAmerican,
		Status:   domain.LineAvailable,
		Sequence: seq,
	}
}

func updateWith(eventID int64, lines ...domain.MarketLine) domain.EventUpdate {
	return domain.EventUpdate{Partition: liveNFL(), EventID: eventID, Lines: lines}
}

func snapshotWith(updates ...domain.EventUpdate) domain.Snapshot {
	return domain.Snapshot{
		Cursor: "c0",
		Teams: map[int64]domain.Team{
			101: {ID: 101, League: domain.LeagueNFL, Name: "Kansas City", Abbreviation: "KC"},
			102: {ID: 102, League: domain.LeagueNFL, Name: "Buffalo", Abbreviation: "BUF"},
		},
		Sources: map[int]domain.MarketSource{
			1:  {ID: 1, Name: "Pinnacle", Active: true},
			36: {ID: 36, Name: "Circa", Active: true},
		},
		Updates: updates,
	}
}

func TestApplySnapshotReplacesState(t *testing.T) {
	s := NewStore()

	s.ApplySnapshot(snapshotWith(updateWith(1, spreadLine(1, 0, 1, -3.5, -110, 10))))
	if _, ok := s.Line(spreadLine(1, 0, 1, 0, 0, 0).ID); !ok {
		t.Fatal("line from first snapshot missing")
	}

	s.ApplySnapshot(snapshotWith(updateWith(2, spreadLine(2, 0, 36, 7.5, -105, 4))))

	if _, ok := s.Line(spreadLine(1, 0, 1, 0, 0, 0).ID); ok {
		t.Error("line from replaced snapshot still present")
	}
	if _, ok := s.Line(spreadLine(2, 0, 36, 0, 0, 0).ID); !ok {
		t.Error("line from new snapshot missing")
	}
	if stats := s.Stats(); stats.Lines != 1 || stats.Events != 1 {
		t.Errorf("Stats = %+v, want 1 line, 1 event", stats)
	}
}

func TestSequenceGuard(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(snapshotWith(updateWith(1, spreadLine(1, 0, 1, -3.5, -110, 10))))

	id := spreadLine(1, 0, 1, 0, 0, 0).ID

	tests := []struct {
		name        string
		seq         int64
		wantApplied int
		wantPoints  float64
	}{
		{name: "equal sequence discarded", seq: 10, wantApplied: 0, wantPoints: -3.5},
		{name: "lower sequence discarded", seq: 9, wantApplied: 0, wantPoints: -3.5},
		{name: "higher sequence applied", seq: 11, wantApplied: 1, wantPoints: -4.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applied := s.ApplyChanges(domain.ChangeBatch{
				Updates: []domain.EventUpdate{updateWith(1, spreadLine(1, 0, 1, -4.0, -112, tt.seq))},
			})
			if len(applied) != tt.wantApplied {
				t.Errorf("applied %d lines, want %d", len(applied), tt.wantApplied)
			}
			line, _ := s.Line(id)
			if line.Points != tt.wantPoints {
				t.Errorf("stored points = %v, want %v", line.Points, tt.wantPoints)
			}
		})
	}

	if stats := s.Stats(); stats.StaleDrops != 2 {
		t.Errorf("StaleDrops = %d, want 2", stats.StaleDrops)
	}
}

func TestEventLastAppliedWins(t *testing.T) {
	s := NewStore()

	live := domain.EventLive
	clock1 := "11:22"
	clock2 := "11:00"
	period := 2

	s.ApplySnapshot(snapshotWith(domain.EventUpdate{
		Partition: liveNFL(),
		EventID:   1,
		Status:    &live,
		Clock:     &clock1,
		Period:    &period,
		Scores: []domain.TeamScore{
			{SideIndex: 0, TeamID: 101, Score: 14},
			{SideIndex: 1, TeamID: 102, Score: 10},
		},
	}))

	// A later partial update moves only the clock and one score.
	s.ApplyChanges(domain.ChangeBatch{Updates: []domain.EventUpdate{{
		Partition: liveNFL(),
		EventID:   1,
		Clock:     &clock2,
		Scores:    []domain.TeamScore{{SideIndex: 0, Score: 17}},
	}}})

	ev, ok := s.Event(1)
	if !ok {
		t.Fatal("event missing")
	}
	if ev.Status != domain.EventLive {
		t.Errorf("Status = %v, want live (absent field overwritten)", ev.Status)
	}
	if ev.Clock != "11:00" {
		t.Errorf("Clock = %q, want 11:00", ev.Clock)
	}
	if ev.Period != 2 {
		t.Errorf("Period = %d, want 2", ev.Period)
	}
	if ev.Teams[0].Score != 17 || ev.Teams[0].TeamID != 101 {
		t.Errorf("Teams[0] = %+v, want score 17, team kept", ev.Teams[0])
	}
	if ev.Teams[1].Score != 10 {
		t.Errorf("Teams[1].Score = %d, want 10", ev.Teams[1].Score)
	}
}

func TestUnknownIdentityInserts(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(snapshotWith())

	applied := s.ApplyChanges(domain.ChangeBatch{
		Updates: []domain.EventUpdate{updateWith(5, spreadLine(5, 1, 36, -7.0, -110, 3))},
	})
	if len(applied) != 1 {
		t.Fatalf("applied = %d, want 1", len(applied))
	}
	if _, ok := s.Line(spreadLine(5, 1, 36, 0, 0, 0).ID); !ok {
		t.Error("inserted line not readable")
	}
	if _, ok := s.Event(5); !ok {
		t.Error("event implied by line update not created")
	}
}

func TestSourceUnresolvedFlag(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(snapshotWith(updateWith(1,
		spreadLine(1, 0, 1, -3.5, -110, 1),
		spreadLine(1, 0, 99, -3.5, -115, 1),
	)))

	known, _ := s.Line(spreadLine(1, 0, 1, 0, 0, 0).ID)
	if known.SourceUnresolved {
		t.Error("declared source flagged unresolved")
	}
	unknown, _ := s.Line(spreadLine(1, 0, 99, 0, 0, 0).ID)
	if !unknown.SourceUnresolved {
		t.Error("undeclared source not flagged")
	}

	if got := s.SourceName(1); got != "Pinnacle" {
		t.Errorf("SourceName(1) = %q", got)
	}
	if got := s.SourceName(99); got != "source99" {
		t.Errorf("SourceName(99) = %q", got)
	}
}

func TestReplayDeterminism(t *testing.T) {
	snap := snapshotWith(updateWith(1,
		spreadLine(1, 0, 1, -3.5, -110, 10),
		spreadLine(1, 1, 36, 3.5, -108, 12),
	))
	batches := []domain.ChangeBatch{
		{Updates: []domain.EventUpdate{updateWith(1, spreadLine(1, 0, 1, -4.5, -112, 11))}},
		{Updates: []domain.EventUpdate{
			updateWith(1, spreadLine(1, 0, 1, -5.0, -115, 12)),
			updateWith(2, spreadLine(2, 0, 36, 2.5, -105, 1)),
		}},
		{Updates: []domain.EventUpdate{updateWith(1, spreadLine(1, 0, 1, -4.0, -110, 9))}},
	}

	build := func() *Store {
		s := NewStore()
		s.ApplySnapshot(snap)
		for _, b := range batches {
			s.ApplyChanges(b)
		}
		return s
	}

	a, b := build(), build()

	if !reflect.DeepEqual(a.Partitions(), b.Partitions()) {
		t.Fatal("partition sets differ")
	}
	for _, part := range a.Partitions() {
		if !reflect.DeepEqual(a.LinesInPartition(part), b.LinesInPartition(part)) {
			t.Errorf("partition %s lines differ", part)
		}
	}
	for _, id := range []int64{1, 2} {
		evA, _ := a.Event(id)
		evB, _ := b.Event(id)
		if evA != evB {
			t.Errorf("event %d differs: %+v vs %+v", id, evA, evB)
		}
	}

	// The out-of-order seq 9 batch must not have regressed the line.
	line, _ := a.Line(spreadLine(1, 0, 1, 0, 0, 0).ID)
	if line.Sequence != 12 || line.Points != -5.0 {
		t.Errorf("final line = seq %d points %v, want seq 12 points -5.0", line.Sequence, line.Points)
	}
}

func TestLinesInPartitionSortedCopy(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(snapshotWith(updateWith(1,
		spreadLine(1, 1, 36, 3.5, -108, 1),
		spreadLine(1, 0, 1, -3.5, -110, 1),
		spreadLine(1, 0, 36, -3.5, -112, 1),
	)))

	lines := s.LinesInPartition(liveNFL())
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	for i := 1; i < len(lines); i++ {
		if lines[i-1].ID.Key() >= lines[i].ID.Key() {
			t.Errorf("lines not sorted: %s before %s", lines[i-1].ID.Key(), lines[i].ID.Key())
		}
	}

	// Mutating the returned slice must not leak into the store.
	lines[0].Points = 999
	fresh := s.LinesInPartition(liveNFL())
	if fresh[0].Points == 999 {
		t.Error("returned slice aliases store state")
	}

	if got := s.LinesInPartition(domain.PartitionKey{League: domain.LeagueNBA, PeriodType: domain.PeriodFullGame, Scope: domain.ScopeLive}); got != nil {
		t.Errorf("empty partition = %v, want nil", got)
	}
}

func TestMatchup(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(snapshotWith(domain.EventUpdate{
		Partition: liveNFL(),
		EventID:   1,
		Scores: []domain.TeamScore{
			{SideIndex: 0, TeamID: 102},
			{SideIndex: 1, TeamID: 101},
		},
	}))

	if got := s.Matchup(1); got != "BUF @ KC" {
		t.Errorf("Matchup = %q, want BUF @ KC", got)
	}
	if got := s.Matchup(404); got != "" {
		t.Errorf("Matchup for unknown event = %q, want empty", got)
	}

	away, home := s.TeamLabels(1)
	if away != "BUF" || home != "KC" {
		t.Errorf("TeamLabels = %q, %q; want BUF, KC", away, home)
	}
	away, home = s.TeamLabels(404)
	if away != "" || home != "" {
		t.Errorf("TeamLabels for unknown event = %q, %q; want empty", away, home)
	}
}

func TestLineUpdatedAtStored(t *testing.T) {
	s := NewStore()
	ts := time.Date(2026, 1, 11, 19, 5, 0, 0, time.UTC)
	line := spreadLine(1, 0, 1, -3.5, -110, 1)
	line.UpdatedAt = ts
	s.ApplySnapshot(snapshotWith(updateWith(1, line)))

	got, _ := s.Line(line.ID)
	if !got.UpdatedAt.Equal(ts) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, ts)
	}
}
