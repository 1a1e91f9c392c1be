package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"glen/internal/events"
	"glen/internal/models"
	"glen/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.InitNodeDB("tester", t.TempDir()+"/glen_test.db")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func newTestEngine(t *testing.T, store *storage.Store, opts ...Option) *Engine {
	t.Helper()
	eng := New(store, opts...)
	t.Cleanup(eng.Stop)
	return eng
}

func apply(t *testing.T, eng *Engine, communityID, sender string, ts int64, p events.Payload) {
	t.Helper()
	require.NoError(t, eng.Apply(context.Background(), &events.MetaEvent{
		Type:        p.EventType(),
		CommunityID: communityID,
		Sender:      sender,
		Timestamp:   ts,
	}, p))
}

func strptr(s string) *string { return &s }

func TestFoldBuildsProjection(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	apply(t, eng, "comm-1", "alice", 10, &events.ConfigPayload{Name: strptr("glen")})
	apply(t, eng, "comm-1", "alice", 20, &events.ChannelCreatedPayload{
		ChannelID: "chan-1", Name: "general", GroupRef: "grp-1", Permission: models.PermissionOpen,
	})
	apply(t, eng, "comm-1", "alice", 30, &events.RolePayload{Target: "bob", Role: models.RoleModerator})
	apply(t, eng, "comm-1", "alice", 40, &events.ModerationPayload{Action: events.ActionBan, Target: "mallory"})

	state, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.Equal(t, "glen", state.Config.Name)
	require.Equal(t, "general", state.Channels["chan-1"].Name)
	require.Equal(t, int64(20), state.Channels["chan-1"].CreatedAt)
	require.Equal(t, models.RoleModerator, state.Roles["bob"])
	require.Equal(t, models.RoleMember, state.RoleOf("carol"))
	require.True(t, state.Banned("mallory"))
}

func TestFoldConfigMergesFields(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	apply(t, eng, "comm-1", "alice", 10, &events.ConfigPayload{
		Name: strptr("glen"), Description: strptr("first"),
	})
	// Only description set: name must survive.
	apply(t, eng, "comm-1", "alice", 20, &events.ConfigPayload{Description: strptr("second")})

	state, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.Equal(t, "glen", state.Config.Name)
	require.Equal(t, "second", state.Config.Description)
}

func TestFoldIdempotentReplay(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	stream := func() {
		apply(t, eng, "comm-1", "alice", 10, &events.ConfigPayload{Name: strptr("glen")})
		apply(t, eng, "comm-1", "alice", 20, &events.ChannelCreatedPayload{
			ChannelID: "chan-1", Name: "general", GroupRef: "grp-1", Permission: models.PermissionOpen,
		})
		apply(t, eng, "comm-1", "alice", 30, &events.RolePayload{Target: "bob", Role: models.RoleAdmin})
		apply(t, eng, "comm-1", "alice", 40, &events.ModerationPayload{Action: events.ActionBan, Target: "mallory"})
	}
	stream()
	first, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)

	// Redelivering the whole stream converges on the same state.
	stream()
	second, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestFoldDeterministicAcrossRestart(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	eng := New(store)
	apply(t, eng, "comm-1", "alice", 10, &events.ConfigPayload{Name: strptr("glen")})
	apply(t, eng, "comm-1", "alice", 20, &events.ChannelCreatedPayload{
		ChannelID: "chan-1", Name: "general", GroupRef: "grp-1", Permission: models.PermissionModerated,
	})
	apply(t, eng, "comm-1", "alice", 30, &events.RolePayload{Target: "bob", Role: models.RoleModerator})
	before, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	eng.Stop()

	// A fresh engine over the same database reloads the identical projection.
	eng2 := newTestEngine(t, store)
	after, err := eng2.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestChannelCreateLastWriteWins(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	apply(t, eng, "comm-1", "alice", 10, &events.ChannelCreatedPayload{
		ChannelID: "chan-1", Name: "general", GroupRef: "grp-1", Permission: models.PermissionOpen,
	})
	apply(t, eng, "comm-1", "alice", 50, &events.ChannelCreatedPayload{
		ChannelID: "chan-1", Name: "renamed", GroupRef: "grp-1", Permission: models.PermissionOpen,
	})

	state, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	ch := state.Channels["chan-1"]
	require.Equal(t, "renamed", ch.Name)
	// Original creation time survives the re-create.
	require.Equal(t, int64(10), ch.CreatedAt)
}

func TestChannelRecreateKeepsArchivedFlag(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	apply(t, eng, "comm-1", "alice", 10, &events.ChannelCreatedPayload{
		ChannelID: "chan-1", Name: "general", GroupRef: "grp-1", Permission: models.PermissionOpen,
	})
	apply(t, eng, "comm-1", "alice", 20, &events.ChannelArchivedPayload{ChannelID: "chan-1"})
	apply(t, eng, "comm-1", "alice", 30, &events.ChannelCreatedPayload{
		ChannelID: "chan-1", Name: "general", GroupRef: "grp-1", Permission: models.PermissionOpen,
	})

	state, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.True(t, state.Channels["chan-1"].Archived)
}

func TestChannelUpdateAndArchive(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	apply(t, eng, "comm-1", "alice", 10, &events.ChannelCreatedPayload{
		ChannelID: "chan-1", Name: "general", Description: "chatter", GroupRef: "grp-1", Permission: models.PermissionOpen,
	})
	perm := models.PermissionReadOnly
	apply(t, eng, "comm-1", "alice", 20, &events.ChannelUpdatedPayload{
		ChannelID: "chan-1", Name: strptr("announcements"), Permission: &perm,
	})

	state, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	ch := state.Channels["chan-1"]
	require.Equal(t, "announcements", ch.Name)
	require.Equal(t, models.PermissionReadOnly, ch.Permission)
	// Untouched fields survive the merge.
	require.Equal(t, "chatter", ch.Description)

	apply(t, eng, "comm-1", "alice", 30, &events.ChannelArchivedPayload{ChannelID: "chan-1"})
	state, err = eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	// Archived, but still addressable by id.
	require.True(t, state.Channels["chan-1"].Archived)
}

func TestUnknownChannelEventsAreNoOps(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	apply(t, eng, "comm-1", "alice", 10, &events.ConfigPayload{Name: strptr("glen")})
	apply(t, eng, "comm-1", "alice", 20, &events.ChannelUpdatedPayload{
		ChannelID: "ghost", Name: strptr("x"),
	})
	apply(t, eng, "comm-1", "alice", 30, &events.ChannelArchivedPayload{ChannelID: "ghost"})

	state, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.Empty(t, state.Channels)
}

func TestRoleLastAssignmentWins(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	apply(t, eng, "comm-1", "alice", 10, &events.RolePayload{Target: "bob", Role: models.RoleAdmin})
	apply(t, eng, "comm-1", "alice", 20, &events.RolePayload{Target: "bob", Role: models.RoleMember})

	state, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.Equal(t, models.RoleMember, state.Roles["bob"])
}

func TestModerationBanUnban(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	apply(t, eng, "comm-1", "alice", 10, &events.ModerationPayload{Action: events.ActionBan, Target: "mallory"})
	apply(t, eng, "comm-1", "alice", 20, &events.ModerationPayload{Action: events.ActionBan, Target: "mallory"})
	state, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.True(t, state.Banned("mallory"))

	apply(t, eng, "comm-1", "alice", 30, &events.ModerationPayload{Action: events.ActionUnban, Target: "mallory"})
	state, err = eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.False(t, state.Banned("mallory"))
}

func TestModerationRedact(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	require.NoError(t, store.SaveMessage(ctx, &models.Message{
		ID: "msg-1", ChannelID: "chan-1", Sender: "mallory", Text: "spam", CreatedAt: 1,
	}))
	apply(t, eng, "comm-1", "alice", 10, &events.ModerationPayload{
		Action: events.ActionRedact, TargetMessageID: "msg-1",
	})

	got, err := store.GetMessage(ctx, "msg-1")
	require.NoError(t, err)
	require.Empty(t, got.Text)
	require.True(t, got.Redacted)

	// Redacting an unknown message folds to a no-op, not an error.
	apply(t, eng, "comm-1", "alice", 20, &events.ModerationPayload{
		Action: events.ActionRedact, TargetMessageID: "ghost",
	})
}

func TestAnnouncementsAreEphemeral(t *testing.T) {
	store := newTestStore(t)
	var gotCommunity, gotSender, gotText string
	eng := newTestEngine(t, store, WithAnnouncements(func(communityID, sender, text string) {
		gotCommunity, gotSender, gotText = communityID, sender, text
	}))

	apply(t, eng, "comm-1", "alice", 10, &events.AnnouncementPayload{Text: "downtime at noon"})
	require.Equal(t, "comm-1", gotCommunity)
	require.Equal(t, "alice", gotSender)
	require.Equal(t, "downtime at noon", gotText)

	// Nothing persisted: the community row itself was never established.
	_, err := store.LoadCommunity(context.Background(), "comm-1")
	require.ErrorIs(t, err, storage.ErrNoRows)
}

func TestSnapshotReplacesProjection(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	apply(t, eng, "comm-1", "alice", 10, &events.ChannelCreatedPayload{
		ChannelID: "chan-old", Name: "old", GroupRef: "grp-old", Permission: models.PermissionOpen,
	})
	apply(t, eng, "comm-1", "alice", 20, &events.RolePayload{Target: "bob", Role: models.RoleAdmin})
	apply(t, eng, "comm-1", "alice", 30, &events.ModerationPayload{Action: events.ActionBan, Target: "mallory"})

	apply(t, eng, "comm-1", "alice", 100, &events.SnapshotPayload{
		Config: models.CommunityConfig{Name: "glen", DefaultPermission: models.PermissionOpen},
		Channels: []models.ChannelState{
			{ID: "chan-new", Name: "fresh", GroupRef: "grp-new", Permission: models.PermissionOpen, CreatedAt: 90},
		},
		Roles: []events.RoleEntry{{Identity: "carol", Role: models.RoleOwner}},
		Bans:  []string{"eve"},
	})

	state, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	// Replacement, not merge: pre-snapshot entries are gone.
	require.NotContains(t, state.Channels, "chan-old")
	require.Contains(t, state.Channels, "chan-new")
	require.NotContains(t, state.Roles, "bob")
	require.Equal(t, models.RoleOwner, state.Roles["carol"])
	require.False(t, state.Banned("mallory"))
	require.True(t, state.Banned("eve"))
	require.Equal(t, int64(100), state.LastSnapshotTS)
}

func TestSnapshotBarrierDropsStragglers(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	apply(t, eng, "comm-1", "alice", 100, &events.SnapshotPayload{
		Config: models.CommunityConfig{Name: "glen"},
	})

	// Late deliveries stamped before the snapshot fold to no-ops.
	apply(t, eng, "comm-1", "alice", 50, &events.ChannelCreatedPayload{
		ChannelID: "chan-late", Name: "late", GroupRef: "grp", Permission: models.PermissionOpen,
	})
	apply(t, eng, "comm-1", "alice", 60, &events.RolePayload{Target: "bob", Role: models.RoleAdmin})
	apply(t, eng, "comm-1", "alice", 70, &events.ModerationPayload{Action: events.ActionBan, Target: "mallory"})
	// An older snapshot is itself superseded.
	apply(t, eng, "comm-1", "alice", 80, &events.SnapshotPayload{
		Config: models.CommunityConfig{Name: "stale"},
	})

	state, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.Equal(t, "glen", state.Config.Name)
	require.Empty(t, state.Channels)
	require.Empty(t, state.Roles)
	require.False(t, state.Banned("mallory"))
	require.Equal(t, int64(100), state.LastSnapshotTS)

	// Events at or after the marker still apply.
	apply(t, eng, "comm-1", "alice", 120, &events.ChannelCreatedPayload{
		ChannelID: "chan-after", Name: "after", GroupRef: "grp", Permission: models.PermissionOpen,
	})
	state, err = eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.Contains(t, state.Channels, "chan-after")
}

func TestSnapshotBarrierSurvivesRestart(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	eng := New(store)
	apply(t, eng, "comm-1", "alice", 100, &events.SnapshotPayload{
		Config: models.CommunityConfig{Name: "glen"},
	})
	eng.Stop()

	eng2 := newTestEngine(t, store)
	apply(t, eng2, "comm-1", "alice", 50, &events.ChannelCreatedPayload{
		ChannelID: "chan-late", Name: "late", GroupRef: "grp", Permission: models.PermissionOpen,
	})
	state, err := eng2.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.Empty(t, state.Channels)
	require.Equal(t, int64(100), state.LastSnapshotTS)
}

func TestAuthorizationHook(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, WithAuthorization(
		func(state *models.CommunityState, ev *events.MetaEvent, p events.Payload) bool {
			return state.RoleOf(ev.Sender).AtLeast(models.RoleAdmin)
		},
	))
	ctx := context.Background()

	// bob defaults to member: denied, folds to a no-op.
	apply(t, eng, "comm-1", "bob", 10, &events.ConfigPayload{Name: strptr("hijacked")})
	state, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.Empty(t, state.Config.Name)
}

func TestStateViewIsACopy(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	apply(t, eng, "comm-1", "alice", 10, &events.ChannelCreatedPayload{
		ChannelID: "chan-1", Name: "general", GroupRef: "grp", Permission: models.PermissionOpen,
	})
	view, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	view.Channels["chan-1"].Name = "scribbled"
	view.Roles["x"] = models.RoleOwner

	fresh, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	require.Equal(t, "general", fresh.Channels["chan-1"].Name)
	require.Empty(t, fresh.Roles)
}

func TestApplyAfterStop(t *testing.T) {
	store := newTestStore(t)
	eng := New(store)
	eng.Stop()

	err := eng.Apply(context.Background(), &events.MetaEvent{
		Type: events.TypeAnnouncement, CommunityID: "comm-1", Sender: "alice", Timestamp: 1,
	}, &events.AnnouncementPayload{Text: "hi"})
	require.ErrorIs(t, err, ErrEngineStopped)
}

func TestCommunitiesFoldIndependently(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	apply(t, eng, "comm-1", "alice", 10, &events.ConfigPayload{Name: strptr("one")})
	apply(t, eng, "comm-2", "alice", 10, &events.ConfigPayload{Name: strptr("two")})

	s1, err := eng.StateView(ctx, "comm-1")
	require.NoError(t, err)
	s2, err := eng.StateView(ctx, "comm-2")
	require.NoError(t, err)
	require.Equal(t, "one", s1.Config.Name)
	require.Equal(t, "two", s2.Config.Name)
}

func TestChannelIDReuseAcrossCommunities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	eng := New(store)
	apply(t, eng, "comm-a", "alice", 10, &events.ChannelCreatedPayload{
		ChannelID: "chan-1", Name: "general", GroupRef: "grp-a", Permission: models.PermissionOpen,
	})
	apply(t, eng, "comm-b", "mallory", 20, &events.ChannelCreatedPayload{
		ChannelID: "chan-1", Name: "hijacked", GroupRef: "grp-b", Permission: models.PermissionOpen,
	})
	eng.Stop()

	// Check persisted rows, not just the in-memory projection.
	a, err := store.LoadCommunity(ctx, "comm-a")
	require.NoError(t, err)
	require.Equal(t, "general", a.Channels["chan-1"].Name)
	b, err := store.LoadCommunity(ctx, "comm-b")
	require.NoError(t, err)
	require.Equal(t, "hijacked", b.Channels["chan-1"].Name)
}

func TestChannelEventsHook(t *testing.T) {
	store := newTestStore(t)
	var seen []string
	eng := newTestEngine(t, store, WithChannelEvents(func(communityID string, ch models.ChannelState) {
		seen = append(seen, communityID+"/"+ch.ID)
	}))

	apply(t, eng, "comm-1", "alice", 10, &events.ChannelCreatedPayload{
		ChannelID: "chan-1", Name: "general", GroupRef: "grp-1", Permission: models.PermissionOpen,
	})
	require.Equal(t, []string{"comm-1/chan-1"}, seen)

	// Identical re-create folds to a no-op and stays silent.
	apply(t, eng, "comm-1", "alice", 20, &events.ChannelCreatedPayload{
		ChannelID: "chan-1", Name: "general", GroupRef: "grp-1", Permission: models.PermissionOpen,
	})
	require.Equal(t, []string{"comm-1/chan-1"}, seen)

	// Snapshot channels are surfaced too, so mid-session joiners catch up.
	apply(t, eng, "comm-1", "alice", 100, &events.SnapshotPayload{
		Config: models.CommunityConfig{Name: "glen"},
		Channels: []models.ChannelState{
			{ID: "chan-2", Name: "fresh", GroupRef: "grp-2", Permission: models.PermissionOpen, CreatedAt: 90},
		},
	})
	require.Equal(t, []string{"comm-1/chan-1", "comm-1/chan-2"}, seen)
}
