package chat

import (
	"sort"
	"strings"
)

// Registry maps session ids to sessions. It is not safe for concurrent use;
// the hub loop is its only caller.
type Registry struct {
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.sessions[s.ID] = s
}

// Remove deletes id and returns the removed session. Removing an unknown id
// is a no-op.
func (r *Registry) Remove(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	return s, true
}

func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// FindByName does a case-insensitive scan over named sessions.
func (r *Registry) FindByName(name string) (*Session, bool) {
	for _, s := range r.sessions {
		if s.state == Named && strings.EqualFold(s.name, name) {
			return s, true
		}
	}
	return nil, false
}

// ClaimName moves s from Unnamed to Named. The name is trimmed and must be
// unique among named sessions regardless of case.
func (r *Registry) ClaimName(s *Session, raw string) (string, error) {
	if s.state == Named {
		return "", ErrAlreadyNamed
	}
	name, err := NormalizeName(raw)
	if err != nil {
		return "", err
	}
	if _, taken := r.FindByName(name); taken {
		return "", ErrNameTaken
	}
	s.name = name
	s.state = Named
	return name, nil
}

// ListNamed returns named members ordered by join time, oldest first.
func (r *Registry) ListNamed() []Member {
	named := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.state == Named {
			named = append(named, s)
		}
	}
	sort.Slice(named, func(i, j int) bool {
		if named[i].JoinedAt.Equal(named[j].JoinedAt) {
			return named[i].ID < named[j].ID
		}
		return named[i].JoinedAt.Before(named[j].JoinedAt)
	})

	out := make([]Member, len(named))
	for i, s := range named {
		out[i] = s.member()
	}
	return out
}

// All returns a snapshot of every session, safe to iterate while removing.
func (r *Registry) All() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int { return len(r.sessions) }

func (r *Registry) NamedCount() int {
	n := 0
	for _, s := range r.sessions {
		if s.state == Named {
			n++
		}
	}
	return n
}
