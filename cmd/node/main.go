package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/golang/glog"

	"glen/internal/config"
	"glen/internal/engine"
	"glen/internal/models"
	"glen/internal/p2p"
	"glen/internal/profile"
	"glen/internal/storage"
	"glen/internal/utils"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg, err := config.Parse()
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	if cfg.Username == "" {
		glog.Exit("GLEN_USERNAME is required")
	}

	kb, err := profile.LoadProfile(cfg.Username, cfg.Password, cfg.ProfilePath)
	if errors.Is(err, utils.ProfileNotFound) && cfg.ProfilePath == "" {
		glog.Infof("node: no profile for %s, generating one", cfg.Username)
		if _, err = profile.GenerateProfile(cfg.Username, cfg.Password); err != nil {
			glog.Exitf("generate profile: %v", err)
		}
		kb, err = profile.LoadProfile(cfg.Username, cfg.Password, "")
	}
	if err != nil {
		glog.Exitf("load profile: %v", err)
	}
	glog.Infof("node: identity %s peer %s", kb.Identity, kb.PeerID)

	store, err := storage.InitNodeDB(cfg.Username, cfg.DBPath)
	if err != nil {
		glog.Exitf("init storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node := &p2p.Node{Ctx: ctx, Priv: kb.Libp2pPriv}
	if err := node.InitNode(cfg.ListenAddrs); err != nil {
		glog.Exitf("init node: %v", err)
	}
	defer node.Close()
	for _, a := range node.Host.Addrs() {
		glog.Infof("node: listening on %s/p2p/%s", a, node.Host.ID())
	}

	ingest := storage.NewMessageIngestor(cfg.QueueSize)
	ingest.Start(store)
	defer ingest.Stop()

	// One chat pump per (community, group), started at boot for known channels
	// and again whenever the fold surfaces a new one. Deduped by key so a
	// snapshot replaying existing channels does not double-subscribe.
	var chatMu sync.Mutex
	chatSubs := map[string]struct{}{}
	subscribeChat := func(communityID string, ch models.ChannelState) {
		if ch.Archived || ch.GroupRef == "" {
			return
		}
		key := communityID + "/" + ch.GroupRef
		chatMu.Lock()
		if _, ok := chatSubs[key]; ok {
			chatMu.Unlock()
			return
		}
		chatSubs[key] = struct{}{}
		chatMu.Unlock()

		sub, err := node.SubscribeChat(communityID, ch.GroupRef)
		if err != nil {
			glog.Warningf("subscribe chat %s: %v", key, err)
			chatMu.Lock()
			delete(chatSubs, key)
			chatMu.Unlock()
			return
		}
		go func() {
			defer sub.Stop()
			if err := p2p.RunChatPump(ctx, sub, ingest); err != nil {
				glog.Warningf("chat pump %s: %v", key, err)
			}
		}()
	}

	eng := engine.New(store,
		engine.WithQueueSize(cfg.QueueSize),
		engine.WithAnnouncements(func(communityID, sender, text string) {
			glog.Infof("announcement [%s] %s: %s", communityID, sender, text)
		}),
		engine.WithChannelEvents(subscribeChat),
	)
	defer eng.Stop()

	// Communities the node was synced to before restart plus configured ones.
	communities := map[string]struct{}{}
	known, err := store.ListCommunityIDs(ctx)
	if err != nil {
		glog.Exitf("list communities: %v", err)
	}
	for _, id := range known {
		communities[id] = struct{}{}
	}
	for _, id := range cfg.Communities {
		communities[id] = struct{}{}
	}

	for id := range communities {
		sub, err := node.SubscribeMeta(id)
		if err != nil {
			glog.Exitf("subscribe meta %s: %v", id, err)
		}
		go func(id string, sub *p2p.Subscription) {
			defer sub.Stop()
			if err := p2p.RunMetaPump(ctx, sub, eng); err != nil {
				glog.Warningf("meta pump %s: %v", id, err)
			}
		}(id, sub)

		state, err := eng.StateView(ctx, id)
		if err != nil {
			glog.Exitf("load state %s: %v", id, err)
		}
		for _, ch := range state.Channels {
			subscribeChat(id, *ch)
		}

		go func(id string) {
			if err := node.RunProfileGossip(ctx, store, id); err != nil && ctx.Err() == nil {
				glog.Warningf("profile gossip %s: %v", id, err)
			}
		}(id)

		dir := &p2p.StoreDirectory{Store: store}
		self := &models.Profile{Identity: kb.Identity, Handle: kb.Username, Inbox: node.Host.ID().String()}
		if err := node.Announce(ctx, dir, id, self); err != nil {
			glog.Warningf("announce profile on %s: %v", id, err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	glog.Info("node: shutting down")
}
