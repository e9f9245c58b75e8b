package registry

import (
	ledgererrors "leadfive/core/errors"
	"leadfive/core/events"
	"leadfive/core/types"
	"leadfive/native/matrix"
)

// State is the ledger surface needed to admit participants.
type State interface {
	matrix.State
	HasParticipant(id types.Address) bool
	InsertParticipant(p *types.Participant)
	Package(tier types.TierID) (*types.Package, bool)
	AppendEvent(events.Event)
}

// Request describes a registration.
type Request struct {
	ID       types.Address
	Referrer *types.Address
	Tier     types.TierID
	// AsRoot designates an additional rootless participant.
	AsRoot    bool
	Timestamp int64
}

// Registry validates and admits new participants.
type Registry struct {
	placer *matrix.Placer
}

// New constructs a registry placing participants with placer.
func New(placer *matrix.Placer) *Registry {
	if placer == nil {
		placer = matrix.NewPlacer(matrix.DefaultParams())
	}
	return &Registry{placer: placer}
}

// Placer returns the matrix placer.
func (r *Registry) Placer() *matrix.Placer { return r.placer }

// Validate checks a request against the staged state without mutating it.
func (r *Registry) Validate(st State, req Request) error {
	if req.ID == (types.Address{}) {
		return ledgererrors.ErrInvalidParticipant.With("id", "zero address")
	}
	if st.HasParticipant(req.ID) {
		return ledgererrors.ErrDuplicateRegistration.With("id", "%s", req.ID.Hex())
	}
	if req.Referrer != nil {
		if *req.Referrer == req.ID {
			return ledgererrors.ErrInvalidReferrer.With("referrer", "self referral")
		}
		ref, ok := st.PeekParticipant(*req.Referrer)
		if !ok {
			return ledgererrors.ErrInvalidReferrer.With("referrer", "%s not registered", req.Referrer.Hex())
		}
		if !ref.Active {
			return ledgererrors.ErrInvalidReferrer.With("referrer", "%s inactive", req.Referrer.Hex())
		}
	}
	pkg, ok := st.Package(req.Tier)
	if !ok || !pkg.Active {
		return ledgererrors.ErrInvalidPackage.With("tier", "%d", req.Tier)
	}
	return nil
}

// Register creates the participant with zero balances and places it in the
// matrix. The caller discards the batch on error so a failed placement rolls
// the registration back.
func (r *Registry) Register(st State, req Request) (*types.Participant, error) {
	if err := r.Validate(st, req); err != nil {
		return nil, err
	}
	p := types.NewParticipant(req.ID, req.Referrer, req.Tier, req.Timestamp)
	st.InsertParticipant(p)
	if req.Referrer != nil {
		ref, _ := st.Participant(*req.Referrer)
		ref.DirectReferrals++
	}
	node, err := r.placer.Place(st, p, req.AsRoot)
	if err != nil {
		return nil, err
	}
	st.AppendEvent(events.ParticipantRegistered{
		ID:       p.ID,
		Referrer: p.Referrer,
		Tier:     p.Tier,
		Position: p.Position,
		Parent:   node.Parent,
		Depth:    p.Depth,
	})
	return p, nil
}
