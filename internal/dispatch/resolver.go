package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DestinationStore reads campaign intention actions.
// FindEnabledAction returns the first enabled action ordered by creation.
type DestinationStore interface {
	FindEnabledAction(ctx context.Context, campaignID uuid.UUID, intention IntentionType) (IntentionAction, bool, error)
}

// Resolver looks up the destination configured for a campaign outcome.
type Resolver struct {
	store DestinationStore
}

func NewResolver(store DestinationStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the enabled destination for (campaignID, intention).
// ok is false when nothing should be delivered; that is not an error.
func (r *Resolver) Resolve(ctx context.Context, campaignID *uuid.UUID, intention IntentionType) (Destination, bool, error) {
	if campaignID == nil || intention == IntentionNone {
		return Destination{}, false, nil
	}

	action, found, err := r.store.FindEnabledAction(ctx, *campaignID, intention)
	if err != nil {
		return Destination{}, false, fmt.Errorf("find intention action: %w", err)
	}
	if !found || !action.Enabled {
		return Destination{}, false, nil
	}

	return action.toDestination()
}

// ForAttempt resolves the destination again for a retry. It only matches when
// the currently configured destination is the one the attempt was created for.
func (r *Resolver) ForAttempt(ctx context.Context, a Attempt) (Destination, bool, error) {
	dest, ok, err := r.Resolve(ctx, a.CampaignID, IntentionForTrigger(a.Trigger))
	if err != nil || !ok {
		return Destination{}, false, err
	}
	if dest.ID() != a.DestinationID || dest.Type() != a.Type {
		return Destination{}, false, nil
	}
	return dest, true, nil
}
