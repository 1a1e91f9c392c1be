package p2p

import "fmt"

// Topic namespace root
const topicRoot = "/glen"

// Topic announcing known communities (directory gossip).
func CommunitiesTopic() string { return topicRoot + "/communities" }

// Meta-channel: control-plane events only (config, channels, roles,
// moderation, snapshots), separate from member-facing chat.
func MetaTopic(cid string) string {
	return fmt.Sprintf("%s/communities/%s/meta", topicRoot, cid)
}

// The chat stream for one channel group within a community.
func ChatTopic(cid, groupRef string) string {
	return fmt.Sprintf("%s/communities/%s/channels/%s/chat", topicRoot, cid, groupRef)
}

// Topic for profile/handle gossip within a community.
func ProfilesTopic(cid string) string {
	return fmt.Sprintf("%s/communities/%s/profiles", topicRoot, cid)
}
