package p2p

import (
	"context"

	"glen/internal/models"
	"glen/internal/storage"
)

// Directory bridges public identities and transport inboxes in both
// directions.
type Directory interface {
	Resolve(ctx context.Context, identity string) (inbox string, err error)
	ReverseResolve(ctx context.Context, inbox string) (identity string, err error)
}

// StoreDirectory resolves through the local profiles table, which profile
// gossip keeps current.
type StoreDirectory struct {
	Store *storage.Store
}

func (d *StoreDirectory) Resolve(ctx context.Context, identity string) (string, error) {
	p, err := d.Store.GetProfile(ctx, identity)
	if err != nil {
		return "", err
	}
	return p.Inbox, nil
}

func (d *StoreDirectory) ReverseResolve(ctx context.Context, inbox string) (string, error) {
	p, err := d.Store.GetProfileByInbox(ctx, inbox)
	if err != nil {
		return "", err
	}
	return p.Identity, nil
}

// Announce publishes this node's identity → inbox binding on the community's
// profile topic and records it locally.
func (n *Node) Announce(ctx context.Context, d *StoreDirectory, communityID string, p *models.Profile) error {
	if err := d.Store.SaveProfile(ctx, p); err != nil {
		return err
	}
	return n.publishProfile(ctx, communityID, p)
}
