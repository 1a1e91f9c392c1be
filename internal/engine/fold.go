package engine

import (
	"context"
	"database/sql"

	"github.com/golang/glog"

	"glen/internal/events"
	"glen/internal/models"
)

// fold applies one decoded event to the worker's community. All persisted
// effects of the event land in a single transaction; the in-memory projection
// is only updated after that transaction commits, so a failed fold leaves
// both views untouched.
func (e *Engine) fold(ctx context.Context, w *worker, ev *events.MetaEvent, p events.Payload) error {
	if err := e.ensureState(ctx, w); err != nil {
		return err
	}
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	state := w.state

	// Snapshot barrier: the last applied snapshot supersedes all history that
	// precedes it. Late-delivered stragglers fold to a no-op.
	if state.LastSnapshotTS > 0 && ev.Timestamp < state.LastSnapshotTS {
		glog.V(1).Infof("engine: drop %s for %s (marker %d precedes snapshot %d)",
			ev.Type, state.ID, ev.Timestamp, state.LastSnapshotTS)
		return nil
	}

	if e.authorize != nil && !e.authorize(state, ev, p) {
		glog.Warningf("engine: unauthorized %s from %s for community %s", ev.Type, ev.Sender, state.ID)
		return nil
	}

	switch v := p.(type) {
	case *events.ConfigPayload:
		return e.foldConfig(ctx, state, v)
	case *events.ChannelCreatedPayload:
		return e.foldChannelCreated(ctx, state, ev, v)
	case *events.ChannelUpdatedPayload:
		return e.foldChannelUpdated(ctx, state, v)
	case *events.ChannelArchivedPayload:
		return e.foldChannelArchived(ctx, state, v)
	case *events.RolePayload:
		return e.foldRole(ctx, state, v)
	case *events.AnnouncementPayload:
		// Ephemeral: surfaced to the UI layer, never persisted.
		if e.announce != nil {
			e.announce(state.ID, ev.Sender, v.Text)
		}
		return nil
	case *events.ModerationPayload:
		return e.foldModeration(ctx, state, v)
	case *events.SnapshotPayload:
		return e.foldSnapshot(ctx, state, ev, v)
	default:
		// Unreachable past the codec, which rejects unknown discriminators.
		glog.Warningf("engine: unhandled payload %T", p)
		return nil
	}
}

// foldConfig merges provided fields into the config; the first config event
// also establishes the community's existence.
func (e *Engine) foldConfig(ctx context.Context, state *models.CommunityState, p *events.ConfigPayload) error {
	merged := state.Config
	if p.Name != nil {
		merged.Name = *p.Name
	}
	if p.Description != nil {
		merged.Description = *p.Description
	}
	if p.InvitePolicy != nil {
		merged.InvitePolicy = *p.InvitePolicy
	}
	if p.DefaultPermission != nil {
		merged.DefaultPermission = *p.DefaultPermission
	}

	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.store.EnsureCommunity(ctx, tx, state.ID); err != nil {
			return err
		}
		return e.store.SaveCommunityConfig(ctx, tx, state.ID, merged)
	})
	if err != nil {
		return ErrPersistence.WithDetails(err.Error())
	}
	state.Config = merged
	return nil
}

// foldChannelCreated upserts a channel. Re-applying identical fields is a
// no-op; divergent fields are last-write-wins. The archived flag and original
// creation time survive a re-create, since the payload carries neither.
func (e *Engine) foldChannelCreated(ctx context.Context, state *models.CommunityState, ev *events.MetaEvent, p *events.ChannelCreatedPayload) error {
	ch := &models.ChannelState{
		ID:          p.ChannelID,
		Name:        p.Name,
		Description: p.Description,
		GroupRef:    p.GroupRef,
		Category:    p.Category,
		Permission:  p.Permission,
		CreatedAt:   ev.Timestamp,
	}
	if prev, ok := state.Channels[p.ChannelID]; ok {
		ch.Archived = prev.Archived
		ch.CreatedAt = prev.CreatedAt
		if *prev == *ch {
			return nil
		}
	}
	if err := e.persistChannel(ctx, state.ID, ch); err != nil {
		return err
	}
	state.Channels[ch.ID] = ch
	if e.channels != nil {
		e.channels(state.ID, *ch)
	}
	return nil
}

func (e *Engine) foldChannelUpdated(ctx context.Context, state *models.CommunityState, p *events.ChannelUpdatedPayload) error {
	prev, ok := state.Channels[p.ChannelID]
	if !ok {
		glog.Warningf("engine: update for unknown channel %s in community %s", p.ChannelID, state.ID)
		return nil
	}
	ch := *prev
	if p.Name != nil {
		ch.Name = *p.Name
	}
	if p.Description != nil {
		ch.Description = *p.Description
	}
	if p.Category != nil {
		ch.Category = *p.Category
	}
	if p.Permission != nil {
		ch.Permission = *p.Permission
	}
	if err := e.persistChannel(ctx, state.ID, &ch); err != nil {
		return err
	}
	state.Channels[ch.ID] = &ch
	return nil
}

func (e *Engine) foldChannelArchived(ctx context.Context, state *models.CommunityState, p *events.ChannelArchivedPayload) error {
	prev, ok := state.Channels[p.ChannelID]
	if !ok {
		glog.Warningf("engine: archive for unknown channel %s in community %s", p.ChannelID, state.ID)
		return nil
	}
	if prev.Archived {
		return nil
	}
	ch := *prev
	ch.Archived = true
	if err := e.persistChannel(ctx, state.ID, &ch); err != nil {
		return err
	}
	state.Channels[ch.ID] = &ch
	return nil
}

func (e *Engine) persistChannel(ctx context.Context, communityID string, ch *models.ChannelState) error {
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.store.EnsureCommunity(ctx, tx, communityID); err != nil {
			return err
		}
		return e.store.UpsertChannel(ctx, tx, communityID, ch)
	})
	if err != nil {
		return ErrPersistence.WithDetails(err.Error())
	}
	return nil
}

// foldRole upserts one assignment; the last applied assignment for an
// identity wins. No event is needed to express "member"; absence defaults.
func (e *Engine) foldRole(ctx context.Context, state *models.CommunityState, p *events.RolePayload) error {
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.store.EnsureCommunity(ctx, tx, state.ID); err != nil {
			return err
		}
		return e.store.UpsertRole(ctx, tx, state.ID, p.Target, p.Role)
	})
	if err != nil {
		return ErrPersistence.WithDetails(err.Error())
	}
	state.Roles[p.Target] = p.Role
	return nil
}

func (e *Engine) foldModeration(ctx context.Context, state *models.CommunityState, p *events.ModerationPayload) error {
	switch p.Action {
	case events.ActionBan:
		err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
			if err := e.store.EnsureCommunity(ctx, tx, state.ID); err != nil {
				return err
			}
			return e.store.InsertBan(ctx, tx, state.ID, p.Target)
		})
		if err != nil {
			return ErrPersistence.WithDetails(err.Error())
		}
		state.Bans[p.Target] = struct{}{}
		return nil

	case events.ActionUnban:
		err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
			return e.store.DeleteBan(ctx, tx, state.ID, p.Target)
		})
		if err != nil {
			return ErrPersistence.WithDetails(err.Error())
		}
		delete(state.Bans, p.Target)
		return nil

	case events.ActionRedact:
		var found bool
		err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
			var err error
			found, err = e.store.RedactMessageText(ctx, tx, p.TargetMessageID)
			return err
		})
		if err != nil {
			return ErrPersistence.WithDetails(err.Error())
		}
		if !found {
			glog.Warningf("engine: redact for unknown message %s", p.TargetMessageID)
		}
		return nil

	case events.ActionMute:
		// No projection-level representation; UI-local concern.
		glog.V(1).Infof("engine: mute %s in community %s (ephemeral)", p.Target, state.ID)
		return nil
	}
	return nil
}

// foldSnapshot is the total-order barrier: it atomically replaces the
// community's channel, role and ban sets (and config) with the snapshot's
// contents. No merge with prior values.
func (e *Engine) foldSnapshot(ctx context.Context, state *models.CommunityState, ev *events.MetaEvent, p *events.SnapshotPayload) error {
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.store.EnsureCommunity(ctx, tx, state.ID); err != nil {
			return err
		}
		if err := e.store.ClearProjection(ctx, tx, state.ID); err != nil {
			return err
		}
		if err := e.store.SaveCommunityConfig(ctx, tx, state.ID, p.Config); err != nil {
			return err
		}
		for i := range p.Channels {
			if err := e.store.UpsertChannel(ctx, tx, state.ID, &p.Channels[i]); err != nil {
				return err
			}
		}
		for _, r := range p.Roles {
			if err := e.store.UpsertRole(ctx, tx, state.ID, r.Identity, r.Role); err != nil {
				return err
			}
		}
		for _, b := range p.Bans {
			if err := e.store.InsertBan(ctx, tx, state.ID, b); err != nil {
				return err
			}
		}
		return e.store.SaveSnapshotMarker(ctx, tx, state.ID, ev.Timestamp)
	})
	if err != nil {
		return ErrPersistence.WithDetails(err.Error())
	}

	state.Config = p.Config
	state.Channels = make(map[string]*models.ChannelState, len(p.Channels))
	for i := range p.Channels {
		ch := p.Channels[i]
		state.Channels[ch.ID] = &ch
	}
	state.Roles = make(map[string]models.Role, len(p.Roles))
	for _, r := range p.Roles {
		state.Roles[r.Identity] = r.Role
	}
	state.Bans = make(map[string]struct{}, len(p.Bans))
	for _, b := range p.Bans {
		state.Bans[b] = struct{}{}
	}
	state.LastSnapshotTS = ev.Timestamp
	if e.channels != nil {
		for _, ch := range state.Channels {
			e.channels(state.ID, *ch)
		}
	}
	return nil
}
