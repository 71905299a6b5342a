// Package engagement holds the reaction rules shared by the store and its callers:
// vote values and weights, toggle transitions, target kinds and result shapes.
package engagement

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidVote   = errors.New("invalid vote value")
	ErrInvalidTarget = errors.New("invalid target kind")
	ErrInvalidLedger = errors.New("invalid ledger")
)

type VoteValue string

const (
	VoteNone          VoteValue = "none"
	VoteUp            VoteValue = "up"
	VoteDownIncorrect VoteValue = "down.incorrect"
	VoteDownHarmful   VoteValue = "down.harmful"
	VoteDownSpam      VoteValue = "down.spam"
)

// ParseVoteValue accepts the wire names of a requested vote. "none" is what
// a cleared vote reads as, but it is not requestable: clearing is done by
// repeating the stored value.
func ParseVoteValue(raw string) (VoteValue, error) {
	value := VoteValue(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case VoteUp, VoteDownIncorrect, VoteDownHarmful, VoteDownSpam:
		return value, nil
	}
	return VoteNone, fmt.Errorf("%w: %q", ErrInvalidVote, raw)
}

func (v VoteValue) IsDown() bool {
	return strings.HasPrefix(string(v), "down.")
}

// Weight is the contribution of a single vote to its target's score.
func (v VoteValue) Weight() int {
	switch {
	case v == VoteUp:
		return 1
	case v.IsDown():
		return -1
	}
	return 0
}

// NextVote applies the toggle rule: repeating the stored value clears it,
// anything else replaces it.
func NextVote(existing, requested VoteValue) VoteValue {
	if existing == requested {
		return VoteNone
	}
	return requested
}

// VoteDelta is the score adjustment for moving from one stored value to another.
func VoteDelta(existing, next VoteValue) int {
	return next.Weight() - existing.Weight()
}

type TargetKind int

const (
	TargetPost TargetKind = iota + 1
	TargetComment
)

func (k TargetKind) String() string {
	switch k {
	case TargetPost:
		return "post"
	case TargetComment:
		return "comment"
	}
	return "unknown"
}

// Target identifies the post or comment a vote is cast on.
type Target struct {
	Kind TargetKind
	ID   string
}

// Ledger names a presence-style reaction: the record either exists or it does not.
type Ledger string

const (
	LedgerLike Ledger = "like"
	LedgerFlag Ledger = "flag"
)

func (l Ledger) Valid() bool {
	return l == LedgerLike || l == LedgerFlag
}

type VoteResult struct {
	Score int       `json:"score"`
	Value VoteValue `json:"value"`
}

type PresenceResult struct {
	Count  int  `json:"count"`
	Active bool `json:"active"`
}

// FlagOutcome distinguishes the non-toggling flag operations.
type FlagOutcome string

const (
	FlagCreated       FlagOutcome = "created"
	FlagAlreadyExists FlagOutcome = "already_exists"
	FlagDeleted       FlagOutcome = "deleted"
)
