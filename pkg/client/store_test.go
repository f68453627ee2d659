package client

import (
	"testing"

	"wildpals/internal/model"
)

func TestStore_MergeRides(t *testing.T) {
	s := NewStore()
	organizer := &model.UserSummary{ID: 1, Name: "An"}

	s.MergeRides([]model.Ride{
		{ID: 10, Title: "Hai Van pass", Organizer: organizer},
		{ID: 11, Title: "Marble Mountains"},
	})
	s.MergeRides([]model.Ride{
		{ID: 11, Title: "Marble Mountains (revised)"},
	})

	if r, ok := s.Ride(11); !ok || r.Title != "Marble Mountains (revised)" {
		t.Errorf("ride 11 = %+v, want merged revision", r)
	}
	if r, ok := s.Ride(10); !ok || r.Title != "Hai Van pass" {
		t.Errorf("ride 10 = %+v, want untouched", r)
	}
	if len(s.Rides()) != 2 {
		t.Errorf("rides = %d, want 2", len(s.Rides()))
	}

	// Embedded organizer summaries are indexed as a side effect.
	if u, ok := s.User(1); !ok || u.Name != "An" {
		t.Errorf("user 1 = %+v, want organizer summary", u)
	}
}

func TestStore_ReplaceRides_DropsStale(t *testing.T) {
	s := NewStore()
	s.MergeRides([]model.Ride{{ID: 10}, {ID: 11}})

	s.ReplaceRides([]model.Ride{{ID: 11}})

	if _, ok := s.Ride(10); ok {
		t.Error("replace must drop rides absent from the new set")
	}
	if _, ok := s.Ride(11); !ok {
		t.Error("replace must keep rides present in the new set")
	}
}

func TestStore_UpdateRide_RollbackRestoresPrevious(t *testing.T) {
	s := NewStore()
	s.MergeRides([]model.Ride{{ID: 10, CurrentParticipants: 3}})

	mut, ok := s.UpdateRide(10, func(r *model.Ride) {
		r.CurrentParticipants++
	})
	if !ok {
		t.Fatal("ride 10 should be cached")
	}
	if r, _ := s.Ride(10); r.CurrentParticipants != 4 {
		t.Errorf("optimistic count = %d, want 4", r.CurrentParticipants)
	}

	mut.Rollback()
	if r, _ := s.Ride(10); r.CurrentParticipants != 3 {
		t.Errorf("count after rollback = %d, want 3", r.CurrentParticipants)
	}
}

func TestStore_UpdateRide_ReconcileInstallsServerCopy(t *testing.T) {
	s := NewStore()
	s.MergeRides([]model.Ride{{ID: 10, CurrentParticipants: 3}})

	mut, _ := s.UpdateRide(10, func(r *model.Ride) {
		r.CurrentParticipants++
	})

	// Server saw a concurrent join and returns 5, not our optimistic 4.
	mut.Reconcile(&model.Ride{ID: 10, CurrentParticipants: 5})

	if r, _ := s.Ride(10); r.CurrentParticipants != 5 {
		t.Errorf("count after reconcile = %d, want server's 5", r.CurrentParticipants)
	}
}

func TestStore_UpdateRide_Uncached(t *testing.T) {
	s := NewStore()
	if _, ok := s.UpdateRide(99, func(r *model.Ride) {}); ok {
		t.Error("updating an uncached ride must report false")
	}
}

func TestStore_UpdateClub_Rollback(t *testing.T) {
	s := NewStore()
	s.MergeClubs([]model.Club{{ID: 8, MemberCount: 12}})

	mut, ok := s.UpdateClub(8, func(c *model.Club) {
		c.MemberCount++
	})
	if !ok {
		t.Fatal("club 8 should be cached")
	}
	mut.Rollback()

	if c, _ := s.Club(8); c.MemberCount != 12 {
		t.Errorf("member count after rollback = %d, want 12", c.MemberCount)
	}
}

func TestStore_MergeClubs_IndexesMembers(t *testing.T) {
	s := NewStore()
	s.MergeClubs([]model.Club{
		{
			ID:      8,
			Founder: &model.UserSummary{ID: 2, Name: "Founder"},
			Members: []model.ClubMember{
				{UserSummary: model.UserSummary{ID: 5, Name: "Member"}, Role: "member"},
			},
		},
	})

	if u, ok := s.User(2); !ok || u.Name != "Founder" {
		t.Errorf("user 2 = %+v, want founder summary", u)
	}
	if u, ok := s.User(5); !ok || u.Name != "Member" {
		t.Errorf("user 5 = %+v, want member summary", u)
	}
}

func TestStore_MarkConversationRead(t *testing.T) {
	s := NewStore()
	s.ReplaceConversations([]model.Conversation{
		{ID: 1, Other: &model.UserSummary{ID: 7}, UnreadCount: 4},
		{ID: 2, Other: &model.UserSummary{ID: 9}, UnreadCount: 2},
	})

	s.MarkConversationRead(7)

	for _, c := range s.Conversations() {
		switch c.ID {
		case 1:
			if c.UnreadCount != 0 {
				t.Errorf("conversation 1 unread = %d, want 0", c.UnreadCount)
			}
		case 2:
			if c.UnreadCount != 2 {
				t.Errorf("conversation 2 unread = %d, want untouched 2", c.UnreadCount)
			}
		}
	}
}
