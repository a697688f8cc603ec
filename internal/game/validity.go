package game

// Grant is the resolved result of a successful authorization check.
type Grant struct {
	Session *Session
	Player  *Player
}

// Authorize is the single gate in front of every player action: the room
// must have a live session, the session must be in one of the expected
// phases, the player must be seated, and the supplied private id must
// match. The private id is the only credential there is; it is never
// broadcast, so possession proves identity.
func Authorize(reg *Registry, roomID, playerID, privateID string, phases ...Phase) (Grant, bool) {
	session, ok := reg.Get(roomID)
	if !ok {
		return Grant{}, false
	}

	phase := session.Phase()
	allowed := false
	for _, p := range phases {
		if p == phase {
			allowed = true
			break
		}
	}
	if !allowed {
		return Grant{}, false
	}

	player := session.Player(playerID)
	if player == nil {
		return Grant{}, false
	}
	if player.PrivateID != privateID {
		return Grant{}, false
	}

	return Grant{Session: session, Player: player}, true
}
