// Package disposition derives human-meaningful outcomes from the coarse
// telephony signals on a conversation's legs.
//
// Sources only report ANSWERED or MISSED per leg. The classifier tells a
// customer who hung up immediately apart from one declined by a busy agent,
// and an internal transfer apart from a final answer. The duration
// thresholds encode reporting continuity requirements and must not change.
package disposition

import (
	"errors"
	"sort"

	"callyard.app/switchboard/internal/model"
)

// Outcome labels for legs and conversations.
const (
	Answered             = "ANSWERED"
	Missed               = "MISSED"
	NoAnswer             = "NO_ANSWER"
	HungUp               = "HUNG_UP"
	Declined             = "DECLINED"
	InternalTransfer     = "INTERNAL_TRANSFER"
	Lost                 = "LOST"
	LostInternalTransfer = "LOST_INTERNAL_TRANSFER"
)

// ErrNoLegs is returned when a conversation with zero legs reaches the
// classifier. Guessing an outcome would poison reporting, so this is fatal
// to the call.
var ErrNoLegs = errors.New("conversation has no legs to classify")

// ClassifiedLeg pairs a leg with its derived outcome.
type ClassifiedLeg struct {
	model.Leg
	Outcome string
}

// Classification is the leg-outcome view of a conversation.
type Classification struct {
	// Legs sorted by start time, each annotated with its outcome.
	Legs []ClassifiedLeg
	// Outcome is the conversation-level label.
	Outcome string
	// MainLeg indexes into Legs: the leg whose outcome and agent define
	// the conversation-level summary.
	MainLeg int
}

// Classify annotates each leg with an outcome and derives the
// conversation-level outcome.
//
// Cross-leg order is established here by sorting on leg start time — never
// by arrival order, which carries no guarantee across topics.
func Classify(legs []model.Leg) (Classification, error) {
	if len(legs) == 0 {
		return Classification{}, ErrNoLegs
	}

	sorted := make([]model.Leg, len(legs))
	copy(sorted, legs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	classified := make([]ClassifiedLeg, len(sorted))
	for i, leg := range sorted {
		isLast := i == len(sorted)-1
		classified[i] = ClassifiedLeg{Leg: leg, Outcome: legOutcome(leg, isLast)}
	}

	main, outcome := summarize(classified)
	return Classification{Legs: classified, Outcome: outcome, MainLeg: main}, nil
}

// legOutcome applies the per-leg rules:
//
//	ANSWERED on a non-final leg means the call moved on inside the building.
//	MISSED outbound is simply unanswered.
//	MISSED inbound, final and under 4s: the caller gave up immediately.
//	MISSED inbound, non-final and under 12s: an agent declined and the call
//	rolled to the next leg.
//
// Anything else passes through unchanged.
func legOutcome(leg model.Leg, isLast bool) string {
	raw := leg.Disposition
	if raw == Answered && !isLast {
		return InternalTransfer
	}
	if raw != Missed {
		return raw
	}
	if leg.Direction == model.DirectionOut {
		return NoAnswer
	}
	if leg.Duration < 4 && isLast {
		return HungUp
	}
	if leg.Duration < 12 && !isLast {
		return Declined
	}
	return raw
}

// summarize picks the main leg by scanning most-recent-first for the
// nearest answered or transferred leg. When none exists, the most recent
// leg is the main leg.
func summarize(legs []ClassifiedLeg) (mainIdx int, outcome string) {
	for i := len(legs) - 1; i >= 0; i-- {
		if legs[i].Outcome == Answered || legs[i].Outcome == InternalTransfer {
			outcome = legs[i].Outcome
			if outcome == InternalTransfer {
				outcome = LostInternalTransfer
			}
			return i, outcome
		}
	}

	mainIdx = len(legs) - 1
	main := legs[mainIdx]
	switch {
	case main.Direction == model.DirectionOut:
		outcome = NoAnswer
	case len(legs) == 1 && main.Duration < 4:
		outcome = HungUp
	default:
		outcome = Lost
	}
	return mainIdx, outcome
}
