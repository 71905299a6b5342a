package engagement

import "sync"

// VoteProjection keeps a client-side view of a vote while a request is in
// flight. Submit projects the expected result immediately; Confirm replaces it
// with whatever the server returned.
type VoteProjection struct {
	mu        sync.Mutex
	confirmed VoteResult
	pending   *VoteResult
}

func NewVoteProjection(confirmed VoteResult) *VoteProjection {
	return &VoteProjection{confirmed: confirmed}
}

func (p *VoteProjection) Submit(requested VoteValue) VoteResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	base := p.currentLocked()
	next := NextVote(base.Value, requested)
	projected := VoteResult{
		Score: base.Score + VoteDelta(base.Value, next),
		Value: next,
	}
	p.pending = &projected
	return projected
}

func (p *VoteProjection) Confirm(server VoteResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = server
	p.pending = nil
}

// Discard drops the pending projection after a failed request.
func (p *VoteProjection) Discard() VoteResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	return p.confirmed
}

func (p *VoteProjection) Current() VoteResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

func (p *VoteProjection) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

func (p *VoteProjection) currentLocked() VoteResult {
	if p.pending != nil {
		return *p.pending
	}
	return p.confirmed
}

// PresenceProjection is the like/flag counterpart of VoteProjection.
type PresenceProjection struct {
	mu        sync.Mutex
	confirmed PresenceResult
	pending   *PresenceResult
}

func NewPresenceProjection(confirmed PresenceResult) *PresenceProjection {
	return &PresenceProjection{confirmed: confirmed}
}

func (p *PresenceProjection) Toggle() PresenceResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	base := p.confirmed
	if p.pending != nil {
		base = *p.pending
	}
	projected := PresenceResult{Count: base.Count + 1, Active: true}
	if base.Active {
		projected = PresenceResult{Count: base.Count - 1, Active: false}
	}
	p.pending = &projected
	return projected
}

func (p *PresenceProjection) Confirm(server PresenceResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = server
	p.pending = nil
}

func (p *PresenceProjection) Current() PresenceResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		return *p.pending
	}
	return p.confirmed
}
