package p2p

import (
	"context"
	"errors"

	"github.com/golang/glog"

	"glen/internal/engine"
	"glen/internal/storage"
)

// RunMetaPump forwards decoded control-plane events from a meta subscription
// into the engine's per-community queue. Blocks until ctx is cancelled or the
// subscription closes. Cancellation stops scheduling further events; folds
// already committed stay committed.
func RunMetaPump(ctx context.Context, sub *Subscription, eng *engine.Engine) error {
	for {
		item, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if item.Event == nil {
			continue
		}
		if err := eng.Submit(ctx, item.Event, item.Payload); err != nil {
			if errors.Is(err, engine.ErrQueueFull) {
				glog.Warningf("p2p: meta pump: community %s queue full, dropping %s",
					item.Event.CommunityID, item.Event.Type)
				continue
			}
			return err
		}
	}
}

// RunChatPump forwards decoded chat messages into the ingest queue. Each
// message commits independently (row + parent edges in one transaction), so
// live ingestion never waits on a full sync.
func RunChatPump(ctx context.Context, sub *Subscription, ingest *storage.MessageIngestor) error {
	for {
		item, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if item.Message == nil {
			continue
		}
		if _, err := ingest.Enqueue(ctx, item.Message); err != nil {
			glog.Warningf("p2p: chat pump: %v, dropping message %s", err, item.Message.ID)
		}
	}
}
