package realtime

import (
	"sort"
	"strings"
)

const (
	roomSeparator = ":"
	groupPrefix   = "group" + roomSeparator
	directPrefix  = "dm" + roomSeparator
)

// DirectRoom derives the room of a 1:1 conversation. The result does not depend on
// argument order.
func DirectRoom(a, b string) string {
	ids := []string{strings.TrimSpace(a), strings.TrimSpace(b)}
	sort.Strings(ids)
	return directPrefix + strings.Join(ids, roomSeparator)
}

// GroupRoom derives the room of a group conversation.
func GroupRoom(groupID string) string {
	return groupPrefix + strings.TrimSpace(groupID)
}

// ConversationRoom returns the room for a message destination. Exactly one of
// receiverID or groupID is expected to be set; groupID wins otherwise.
func ConversationRoom(senderID, receiverID, groupID string) string {
	if groupID != "" {
		return GroupRoom(groupID)
	}
	return DirectRoom(senderID, receiverID)
}

// IsGroupRoom reports whether room was produced by GroupRoom.
func IsGroupRoom(room string) bool {
	return strings.HasPrefix(room, groupPrefix)
}
