// Package p2p implements the ordered-stream transport collaborator over
// libp2p gossipsub. Each community has a meta topic for control-plane events
// and one chat topic per channel group.
package p2p

import (
	"context"

	libp2p "github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
)

type Node struct {
	Host   host.Host
	DHT    *dht.IpfsDHT
	PS     *pubsub.PubSub
	Ctx    context.Context
	Priv   crypto.PrivKey
	Topics *TopicCollection
}

func (n *Node) InitHost(listenAddrs []string) error {
	h, err := libp2p.New(
		libp2p.Identity(n.Priv),
		libp2p.ListenAddrStrings(listenAddrs...),
	)
	if err != nil {
		return err
	}
	n.Host = h
	return nil
}

func (n *Node) InitDHT() error {
	d, err := dht.New(n.Ctx, n.Host)
	if err != nil {
		return err
	}
	n.DHT = d
	if err := n.DHT.Bootstrap(n.Ctx); err != nil {
		return err
	}
	return nil
}

func (n *Node) InitPubSub() error {
	ps, err := pubsub.NewGossipSub(n.Ctx, n.Host)
	if err != nil {
		return err
	}
	n.PS = ps
	n.Topics = NewTopicCollection()
	return nil
}

// InitNode brings up host, DHT and pubsub in order.
func (n *Node) InitNode(listenAddrs []string) error {
	if err := n.InitHost(listenAddrs); err != nil {
		return err
	}
	if err := n.InitDHT(); err != nil {
		return err
	}
	return n.InitPubSub()
}

func (n *Node) Close() error {
	if n.Host != nil {
		return n.Host.Close()
	}
	return nil
}
