// Package market maintains the in-memory authoritative view of the odds
// feed: every event and every market line, indexed by identity and by feed
// partition.
package market

import (
	"sort"
	"sync"

	"github.com/voltrade/voltbot/internal/domain"
)

// Stats summarizes the store's contents and update counters. Counters are
// process-lifetime and survive re-bootstraps.
type Stats struct {
	Events     int
	Lines      int
	Partitions int
	// AppliedLines counts line updates accepted since startup.
	AppliedLines int64
	// StaleDrops counts line updates discarded because their sequence number
	// was at or below the stored one.
	StaleDrops int64
}

// Store is the concurrent market state container. Writers apply snapshots and
// change batches; readers get copies and never observe partial application.
type Store struct {
	mu         sync.RWMutex
	events     map[int64]domain.Event
	lines      map[domain.LineID]domain.MarketLine
	partitions map[domain.PartitionKey]map[domain.LineID]struct{}
	teams      map[int64]domain.Team
	sources    map[int]domain.MarketSource

	appliedLines int64
	staleDrops   int64
}

// NewStore creates an empty Store. State arrives with the first snapshot.
func NewStore() *Store {
	return &Store{
		events:     make(map[int64]domain.Event),
		lines:      make(map[domain.LineID]domain.MarketLine),
		partitions: make(map[domain.PartitionKey]map[domain.LineID]struct{}),
		teams:      make(map[int64]domain.Team),
		sources:    make(map[int]domain.MarketSource),
	}
}

// ApplySnapshot replaces the entire market state with the snapshot's
// contents. The swap happens under the write lock, so readers see either the
// old state or the new state, never a mix.
func (s *Store) ApplySnapshot(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[int64]domain.Event)
	s.lines = make(map[domain.LineID]domain.MarketLine)
	s.partitions = make(map[domain.PartitionKey]map[domain.LineID]struct{})

	s.teams = make(map[int64]domain.Team, len(snap.Teams))
	for id, t := range snap.Teams {
		s.teams[id] = t
	}
	s.sources = make(map[int]domain.MarketSource, len(snap.Sources))
	for id, src := range snap.Sources {
		s.sources[id] = src
	}

	for _, update := range snap.Updates {
		s.apply(update)
	}
}

// ApplyChanges applies one change batch in order and returns copies of the
// line records that were actually accepted, post-merge. Stale line updates
// are discarded silently and counted.
func (s *Store) ApplyChanges(batch domain.ChangeBatch) []domain.MarketLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	var applied []domain.MarketLine
	for _, update := range batch.Updates {
		applied = append(applied, s.apply(update)...)
	}
	return applied
}

// apply merges one event update into the store. The caller must hold s.mu.
func (s *Store) apply(update domain.EventUpdate) []domain.MarketLine {
	ev, ok := s.events[update.EventID]
	if !ok {
		ev = domain.Event{ID: update.EventID, League: update.Partition.League}
	}

	// Events carry no sequence number: matching fields overwrite in arrival
	// order, absent fields are left alone.
	if update.Status != nil {
		ev.Status = *update.Status
	}
	if update.Start != nil {
		ev.Start = *update.Start
	}
	if update.Clock != nil {
		ev.Clock = *update.Clock
	}
	if update.Period != nil {
		ev.Period = *update.Period
	}
	for _, score := range update.Scores {
		if score.SideIndex < 0 || score.SideIndex > 1 {
			continue
		}
		team := ev.Teams[score.SideIndex]
		if score.TeamID != 0 {
			team.TeamID = score.TeamID
		}
		team.Score = score.Score
		ev.Teams[score.SideIndex] = team
	}
	s.events[update.EventID] = ev

	var applied []domain.MarketLine
	for _, line := range update.Lines {
		stored, exists := s.lines[line.ID]
		if exists && line.Sequence <= stored.Sequence {
			s.staleDrops++
			continue
		}

		_, known := s.sources[line.ID.SourceID]
		line.SourceUnresolved = !known

		s.lines[line.ID] = line
		part := update.Partition
		if s.partitions[part] == nil {
			s.partitions[part] = make(map[domain.LineID]struct{})
		}
		s.partitions[part][line.ID] = struct{}{}

		s.appliedLines++
		applied = append(applied, line)
	}
	return applied
}

// Line returns the stored record for one line identity.
func (s *Store) Line(id domain.LineID) (domain.MarketLine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	line, ok := s.lines[id]
	return line, ok
}

// Event returns the game context for one event id.
func (s *Store) Event(id int64) (domain.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	return ev, ok
}

// LinesInPartition returns copies of every line in the partition, ordered by
// identity key so repeated calls over identical state iterate identically.
func (s *Store) LinesInPartition(part domain.PartitionKey) []domain.MarketLine {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.partitions[part]
	if len(ids) == 0 {
		return nil
	}
	out := make([]domain.MarketLine, 0, len(ids))
	for id := range ids {
		out = append(out, s.lines[id])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Key() < out[j].ID.Key()
	})
	return out
}

// Partitions returns every partition the store has seen lines for, sorted.
func (s *Store) Partitions() []domain.PartitionKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PartitionKey, 0, len(s.partitions))
	for part := range s.partitions {
		out = append(out, part)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// Team returns feed reference data for a team id.
func (s *Store) Team(id int64) (domain.Team, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	return t, ok
}

// SourceName returns the sportsbook name for a market source id, falling
// back to the built-in table when the snapshot did not declare the source.
func (s *Store) SourceName(id int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if src, ok := s.sources[id]; ok && src.Name != "" {
		return src.Name
	}
	return domain.SourceName(id)
}

// Matchup renders "Away @ Home" for an event, using team abbreviations when
// the snapshot declared them.
func (s *Store) Matchup(eventID int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[eventID]
	if !ok {
		return ""
	}
	away := s.teamLabel(ev.Teams[0].TeamID)
	home := s.teamLabel(ev.Teams[1].TeamID)
	if away == "" && home == "" {
		return ""
	}
	return away + " @ " + home
}

// TeamLabels returns display labels for the away and home sides, or empty
// strings while team reference data is unresolved.
func (s *Store) TeamLabels(eventID int64) (away, home string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[eventID]
	if !ok {
		return "", ""
	}
	return s.knownTeamLabel(ev.Teams[0].TeamID), s.knownTeamLabel(ev.Teams[1].TeamID)
}

// teamLabel resolves a team id to its abbreviation or name. The caller must
// hold s.mu.
func (s *Store) teamLabel(id int64) string {
	if label := s.knownTeamLabel(id); label != "" {
		return label
	}
	return "?"
}

// knownTeamLabel is teamLabel without the placeholder for unresolved ids.
// The caller must hold s.mu.
func (s *Store) knownTeamLabel(id int64) string {
	if id == 0 {
		return ""
	}
	t, ok := s.teams[id]
	if !ok {
		return ""
	}
	if t.Abbreviation != "" {
		return t.Abbreviation
	}
	return t.Name
}

// Stats returns current sizes and counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Events:       len(s.events),
		Lines:        len(s.lines),
		Partitions:   len(s.partitions),
		AppliedLines: s.appliedLines,
		StaleDrops:   s.staleDrops,
	}
}
