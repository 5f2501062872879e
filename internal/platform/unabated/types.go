package unabated

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/voltrade/voltbot/internal/domain"
)

// Wire-level response shapes. Only documented fields are declared; everything
// else the feed sends is discarded by the JSON decoder.

type snapshotResponse struct {
	LastTimestamp  string                       `json:"lastTimestamp"`
	Teams          map[string]wireTeam          `json:"teams"`
	MarketSources  map[string]wireSource        `json:"marketSources"`
	GameOddsEvents map[string][]json.RawMessage `json:"gameOddsEvents"`
}

type changesResponse struct {
	ResultCode    string         `json:"resultCode"`
	LastTimestamp string         `json:"lastTimestamp"`
	Results       []changeResult `json:"results"`
}

type changeResult struct {
	GameOddsEvents map[string][]json.RawMessage `json:"gameOddsEvents"`
}

type wireTeam struct {
	ID           int64  `json:"id"`
	LeagueID     int    `json:"leagueId"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

type wireSource struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	StatusID int    `json:"statusId"`
}

// wireEvent is an event record as carried by both snapshots and change
// batches. Change batches send partial objects, so scalar game-state fields
// are pointers: nil means "not in this update".
type wireEvent struct {
	EventID     int64                          `json:"eventId"`
	StatusID    *int                           `json:"statusId"`
	EventStart  string                         `json:"eventStart"`
	GameClock   *string                        `json:"gameClock"`
	Period      *int                           `json:"period"`
	EventTeams  map[string]wireEventTeam       `json:"eventTeams"`
	MarketLines map[string]map[string]wireLine `json:"marketLines"`
}

type wireEventTeam struct {
	ID    int64 `json:"id"`
	Score int   `json:"score"`
}

type wireLine struct {
	Points         float64 `json:"points"`
	SourcePrice    float64 `json:"sourcePrice"`
	SourceFormat   int     `json:"sourceFormat"`
	SequenceNumber int64   `json:"sequenceNumber"`
	StatusID       int     `json:"statusId"`
	ModifiedOn     string  `json:"modifiedOn"`
}

// decodeEvents converts one gameOddsEvents payload into ordered EventUpdates.
// Partition keys are visited in sorted order so repeated decoding of the same
// payload yields the same update sequence. Untracked leagues are skipped
// silently; records that fail to parse are dropped and counted.
func decodeEvents(partitions map[string][]json.RawMessage) ([]domain.EventUpdate, int) {
	keys := make([]string, 0, len(partitions))
	for k := range partitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		updates []domain.EventUpdate
		dropped int
	)
	for _, key := range keys {
		raws := partitions[key]
		part, err := parsePartitionKey(key)
		if err != nil {
			dropped += len(raws)
			continue
		}
		if !domain.TrackedLeagues[part.League] {
			continue
		}
		for _, raw := range raws {
			var ev wireEvent
			if err := json.Unmarshal(raw, &ev); err != nil || ev.EventID == 0 {
				dropped++
				continue
			}
			update, bad := ev.toUpdate(part)
			updates = append(updates, update)
			dropped += bad
		}
	}
	return updates, dropped
}

// toUpdate maps a wire event into a domain update for the given partition,
// returning the update and the number of malformed sub-records dropped.
func (e wireEvent) toUpdate(part domain.PartitionKey) (domain.EventUpdate, int) {
	update := domain.EventUpdate{
		Partition: part,
		EventID:   e.EventID,
		Clock:     e.GameClock,
		Period:    e.Period,
	}

	if e.StatusID != nil {
		status := domain.EventStatus(*e.StatusID)
		update.Status = &status
	}
	if t := parseFeedTime(e.EventStart); !t.IsZero() {
		update.Start = &t
	}

	dropped := 0

	if len(e.EventTeams) > 0 {
		sides := make([]string, 0, len(e.EventTeams))
		for side := range e.EventTeams {
			sides = append(sides, side)
		}
		sort.Strings(sides)
		for _, side := range sides {
			idx, err := strconv.Atoi(side)
			if err != nil || idx < 0 || idx > 1 {
				dropped++
				continue
			}
			team := e.EventTeams[side]
			update.Scores = append(update.Scores, domain.TeamScore{
				SideIndex: idx,
				TeamID:    team.ID,
				Score:     team.Score,
			})
		}
	}

	if len(e.MarketLines) > 0 {
		lineKeys := make([]string, 0, len(e.MarketLines))
		for k := range e.MarketLines {
			lineKeys = append(lineKeys, k)
		}
		sort.Strings(lineKeys)
		for _, lineKey := range lineKeys {
			byBetType := e.MarketLines[lineKey]
			side, source, alternate, err := parseLineKey(lineKey)
			if err != nil {
				dropped += len(byBetType)
				continue
			}
			btKeys := make([]string, 0, len(byBetType))
			for k := range byBetType {
				btKeys = append(btKeys, k)
			}
			sort.Strings(btKeys)
			for _, btKey := range btKeys {
				betType, err := parseBetTypeKey(btKey)
				if err != nil {
					dropped++
					continue
				}
				if !domain.TrackedBetTypes[betType] {
					continue
				}
				line := byBetType[btKey]
				update.Lines = append(update.Lines, domain.MarketLine{
					ID: domain.LineID{
						EventID:         e.EventID,
						SideIndex:       side,
						BetType:         betType,
						PeriodType:      part.PeriodType,
						AlternateNumber: alternate,
						Scope:           part.Scope,
						SourceID:        source,
					},
					Points:    line.Points,
					Price:     line.SourcePrice,
					Format:    domain.PriceFormat(line.SourceFormat),
					Status:    lineStatus(line.StatusID),
					Sequence:  line.SequenceNumber,
					UpdatedAt: parseFeedTime(line.ModifiedOn),
				})
			}
		}
	}

	return update, dropped
}

func lineStatus(statusID int) domain.LineStatus {
	if statusID == 1 {
		return domain.LineAvailable
	}
	return domain.LineUnavailable
}

// parseFeedTime parses the feed's timestamp strings. The feed quotes RFC 3339
// with or without a zone suffix; anything else yields the zero time rather
// than failing the record.
func parseFeedTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func convertTeams(in map[string]wireTeam) map[int64]domain.Team {
	out := make(map[int64]domain.Team, len(in))
	for _, t := range in {
		if t.ID == 0 {
			continue
		}
		out[t.ID] = domain.Team{
			ID:           t.ID,
			League:       domain.League(t.LeagueID),
			Name:         t.Name,
			Abbreviation: t.Abbreviation,
		}
	}
	return out
}

func convertSources(in map[string]wireSource) map[int]domain.MarketSource {
	out := make(map[int]domain.MarketSource, len(in))
	for _, s := range in {
		if s.ID == 0 {
			continue
		}
		name := s.Name
		if name == "" {
			name = domain.SourceName(s.ID)
		}
		out[s.ID] = domain.MarketSource{
			ID:     s.ID,
			Name:   name,
			Active: s.StatusID == 1,
		}
	}
	return out
}
