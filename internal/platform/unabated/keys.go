package unabated

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/voltrade/voltbot/internal/domain"
)

// Feed payloads index events and lines by compact string keys:
//
//	partition: "lg{leagueId}:pt{periodTypeId}:{pregame|live}"
//	line:      "si{sideIndex}:ms{marketSourceId}:an{alternateNumber}"
//	bet type:  "bt{betTypeId}"
//
// The parsers below are strict: a key that does not match its shape is a
// malformed record, not an unknown one.

func parsePartitionKey(s string) (domain.PartitionKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return domain.PartitionKey{}, fmt.Errorf("partition key %q: want 3 segments", s)
	}

	league, err := numAfter(parts[0], "lg")
	if err != nil {
		return domain.PartitionKey{}, fmt.Errorf("partition key %q: %w", s, err)
	}
	period, err := numAfter(parts[1], "pt")
	if err != nil {
		return domain.PartitionKey{}, fmt.Errorf("partition key %q: %w", s, err)
	}

	var scope domain.MarketScope
	switch parts[2] {
	case string(domain.ScopePregame):
		scope = domain.ScopePregame
	case string(domain.ScopeLive):
		scope = domain.ScopeLive
	default:
		return domain.PartitionKey{}, fmt.Errorf("partition key %q: unknown scope %q", s, parts[2])
	}

	return domain.PartitionKey{
		League:     domain.League(league),
		PeriodType: domain.PeriodType(period),
		Scope:      scope,
	}, nil
}

func parseLineKey(s string) (sideIndex, sourceID, alternate int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("line key %q: want 3 segments", s)
	}

	if sideIndex, err = numAfter(parts[0], "si"); err != nil {
		return 0, 0, 0, fmt.Errorf("line key %q: %w", s, err)
	}
	if sideIndex != 0 && sideIndex != 1 {
		return 0, 0, 0, fmt.Errorf("line key %q: side index out of range", s)
	}
	if sourceID, err = numAfter(parts[1], "ms"); err != nil {
		return 0, 0, 0, fmt.Errorf("line key %q: %w", s, err)
	}
	if alternate, err = numAfter(parts[2], "an"); err != nil {
		return 0, 0, 0, fmt.Errorf("line key %q: %w", s, err)
	}
	return sideIndex, sourceID, alternate, nil
}

func parseBetTypeKey(s string) (domain.BetType, error) {
	n, err := numAfter(s, "bt")
	if err != nil {
		return 0, fmt.Errorf("bet type key %q: %w", s, err)
	}
	return domain.BetType(n), nil
}

// numAfter parses the decimal that follows prefix, rejecting empty or
// non-numeric remainders.
func numAfter(s, prefix string) (int, error) {
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok || rest == "" {
		return 0, fmt.Errorf("segment %q: want %s<number>", s, prefix)
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("segment %q: %w", s, err)
	}
	return n, nil
}
