package client

import (
	"sync"

	"wildpals/internal/model"
)

// Store is a normalized in-memory view of API entities, keyed by ID. Callers
// merge fetched pages into it instead of replacing whole lists, so detail
// fetches and list fetches enrich the same record. Mutations can be applied
// optimistically and later reconciled with the server's copy or rolled back.
//
// Store is safe for concurrent use. All getters return copies.
type Store struct {
	mu            sync.RWMutex
	rides         map[int64]model.Ride
	clubs         map[int64]model.Club
	users         map[int64]model.UserSummary
	conversations map[int64]model.Conversation
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		rides:         make(map[int64]model.Ride),
		clubs:         make(map[int64]model.Club),
		users:         make(map[int64]model.UserSummary),
		conversations: make(map[int64]model.Conversation),
	}
}

// ---- Rides ----

// MergeRides upserts fetched rides and indexes their embedded user summaries.
func (s *Store) MergeRides(rides []model.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rides {
		s.rides[r.ID] = r
		s.indexRideUsers(&r)
	}
}

// ReplaceRides drops all cached rides and installs the given set. Use after a
// wholesale refetch when deletions must be reflected.
func (s *Store) ReplaceRides(rides []model.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rides = make(map[int64]model.Ride, len(rides))
	for _, r := range rides {
		s.rides[r.ID] = r
		s.indexRideUsers(&r)
	}
}

// Ride returns a copy of the cached ride.
func (s *Store) Ride(id int64) (model.Ride, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rides[id]
	return r, ok
}

// Rides returns copies of all cached rides in unspecified order.
func (s *Store) Rides() []model.Ride {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Ride, 0, len(s.rides))
	for _, r := range s.rides {
		out = append(out, r)
	}
	return out
}

// RemoveRide evicts a ride, typically after a confirmed delete.
func (s *Store) RemoveRide(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rides, id)
}

// UpdateRide applies fn to the cached ride and returns a mutation handle.
// Reconcile it with the server's response, or roll it back if the request
// fails. Returns false if the ride is not cached.
func (s *Store) UpdateRide(id int64, fn func(*model.Ride)) (*RideMutation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, false
	}
	prev := r
	fn(&r)
	s.rides[id] = r
	return &RideMutation{store: s, id: id, prev: prev}, true
}

// RideMutation is a pending optimistic ride change.
type RideMutation struct {
	store *Store
	id    int64
	prev  model.Ride
}

// Reconcile replaces the optimistic copy with the server's authoritative one.
func (m *RideMutation) Reconcile(server *model.Ride) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.rides[server.ID] = *server
	m.store.indexRideUsers(server)
}

// Rollback restores the pre-mutation copy.
func (m *RideMutation) Rollback() {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.rides[m.id] = m.prev
}

func (s *Store) indexRideUsers(r *model.Ride) {
	if r.Organizer != nil {
		s.users[r.Organizer.ID] = *r.Organizer
	}
	for _, p := range r.Participants {
		s.users[p.ID] = p
	}
}

// ---- Clubs ----

// MergeClubs upserts fetched clubs and indexes their embedded user summaries.
func (s *Store) MergeClubs(clubs []model.Club) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range clubs {
		s.clubs[c.ID] = c
		s.indexClubUsers(&c)
	}
}

// ReplaceClubs drops all cached clubs and installs the given set.
func (s *Store) ReplaceClubs(clubs []model.Club) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clubs = make(map[int64]model.Club, len(clubs))
	for _, c := range clubs {
		s.clubs[c.ID] = c
		s.indexClubUsers(&c)
	}
}

// Club returns a copy of the cached club.
func (s *Store) Club(id int64) (model.Club, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clubs[id]
	return c, ok
}

// UpdateClub applies fn to the cached club and returns a mutation handle.
func (s *Store) UpdateClub(id int64, fn func(*model.Club)) (*ClubMutation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clubs[id]
	if !ok {
		return nil, false
	}
	prev := c
	fn(&c)
	s.clubs[id] = c
	return &ClubMutation{store: s, id: id, prev: prev}, true
}

// ClubMutation is a pending optimistic club change.
type ClubMutation struct {
	store *Store
	id    int64
	prev  model.Club
}

// Reconcile replaces the optimistic copy with the server's authoritative one.
func (m *ClubMutation) Reconcile(server *model.Club) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.clubs[server.ID] = *server
	m.store.indexClubUsers(server)
}

// Rollback restores the pre-mutation copy.
func (m *ClubMutation) Rollback() {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.clubs[m.id] = m.prev
}

func (s *Store) indexClubUsers(c *model.Club) {
	if c.Founder != nil {
		s.users[c.Founder.ID] = *c.Founder
	}
	for _, m := range c.Members {
		s.users[m.ID] = m.UserSummary
	}
}

// ---- Users ----

// MergeUsers upserts user summaries.
func (s *Store) MergeUsers(users []model.UserSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.users[u.ID] = u
	}
}

// User returns a copy of the cached user summary.
func (s *Store) User(id int64) (model.UserSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// ---- Conversations ----

// ReplaceConversations installs a freshly fetched conversation list.
func (s *Store) ReplaceConversations(convs []model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = make(map[int64]model.Conversation, len(convs))
	for _, c := range convs {
		s.conversations[c.ID] = c
		if c.Other != nil {
			s.users[c.Other.ID] = *c.Other
		}
	}
}

// Conversations returns copies of all cached conversations.
func (s *Store) Conversations() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	return out
}

// MarkConversationRead zeroes the unread counter for the thread with the
// given user. Optimistic: follow up with a ReplaceConversations refetch if
// the server call fails.
func (s *Store) MarkConversationRead(otherUserID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.conversations {
		if c.Other != nil && c.Other.ID == otherUserID {
			c.UnreadCount = 0
			s.conversations[id] = c
			return
		}
	}
}
