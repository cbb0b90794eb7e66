package ws

// broadcastPresence pushes the full named-user list to every connection.
func (h *Hub) broadcastPresence() {
	members := h.registry.ListNamed()
	h.broadcast(userListFrame{Type: typeUserList, Users: members, Count: len(members)}, "")

	if h.presence != nil {
		h.presence.PublishPresence(members)
	}
}
