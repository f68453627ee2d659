package integration_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"wildpals/internal/model"
	"wildpals/pkg/client"
)

// ============================================================================
// Test Configuration
// ============================================================================
//
// These tests run against a live server with Postgres and Redis behind it:
//
//   TEST_BASE_URL=http://localhost:8080 go test ./tests/
//
// Each test registers throwaway accounts, so no seed data is required.

var baseURL = getEnv("TEST_BASE_URL", "http://localhost:8080")

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requireServer(t *testing.T) {
	t.Helper()
	c := client.New(baseURL, client.WithTimeout(2*time.Second), client.WithRetries(0, 0))
	if err := c.Health(context.Background()); err != nil {
		t.Skipf("Server not reachable at %s: %v", baseURL, err)
	}
}

// registerUser creates a fresh account and returns an authenticated client.
func registerUser(t *testing.T, name string) (*client.Client, *model.User) {
	t.Helper()
	c := client.New(baseURL)
	email := fmt.Sprintf("%s-%d@wildpals.test", name, time.Now().UnixNano())
	resp, err := c.Register(context.Background(), &model.RegisterRequest{
		Name:     name,
		Email:    email,
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("Register %s: %v", name, err)
	}
	return c, resp.User
}

// ============================================================================
// TEST CASES
// ============================================================================

// TestRideLifecycle walks the happy path: organizer publishes a ride, a second
// rider finds it in the upcoming feed, joins, chats on the ride thread, and
// then leaves.
func TestRideLifecycle(t *testing.T) {
	requireServer(t)
	ctx := context.Background()

	alice, aliceUser := registerUser(t, "alice")
	bob, bobUser := registerUser(t, "bob")

	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	ride, err := alice.CreateRide(ctx, &model.CreateRideRequest{
		Title:           "Hai Van pass sunrise " + fmt.Sprint(time.Now().UnixNano()),
		Description:     "Meet at the north gate",
		StartTime:       start,
		EndTime:         start.Add(3 * time.Hour),
		Address:         "Da Nang",
		RouteType:       model.RouteTypeRoad,
		Difficulty:      model.DifficultyMedium,
		DistanceKm:      42,
		MaxParticipants: 5,
	})
	if err != nil {
		t.Fatalf("Create ride: %v", err)
	}
	if ride.CurrentParticipants != 1 {
		t.Errorf("new ride participants = %d, want organizer counted", ride.CurrentParticipants)
	}
	t.Logf("Created ride ID=%d", ride.ID)

	// Wait for the worker to index the ride into the upcoming feed.
	time.Sleep(500 * time.Millisecond)

	rides, err := bob.ListRides(ctx)
	if err != nil {
		t.Fatalf("List rides: %v", err)
	}
	found := false
	for _, r := range rides {
		if r.ID == ride.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("ride %d not in upcoming feed", ride.ID)
	}

	joined, err := bob.JoinRide(ctx, ride.ID)
	if err != nil {
		t.Fatalf("Join ride: %v", err)
	}
	if joined.CurrentParticipants != 2 {
		t.Errorf("participants after join = %d, want 2", joined.CurrentParticipants)
	}

	// Joining twice must be rejected.
	if _, err := bob.JoinRide(ctx, ride.ID); err == nil {
		t.Error("second join should fail")
	}

	// Ride thread message.
	msg, err := bob.SendMessage(ctx, &model.SendMessageRequest{
		ReceiverID: aliceUser.ID,
		Content:    "See you at the gate",
		RideID:     &ride.ID,
	})
	if err != nil {
		t.Fatalf("Send message: %v", err)
	}
	thread, err := alice.ListRideMessages(ctx, ride.ID)
	if err != nil {
		t.Fatalf("List ride messages: %v", err)
	}
	foundMsg := false
	for _, m := range thread {
		if m.ID == msg.ID {
			foundMsg = true
		}
	}
	if !foundMsg {
		t.Errorf("message %d not in ride thread", msg.ID)
	}

	if err := bob.LeaveRide(ctx, ride.ID); err != nil {
		t.Fatalf("Leave ride: %v", err)
	}
	after, err := alice.GetRide(ctx, ride.ID)
	if err != nil {
		t.Fatalf("Get ride: %v", err)
	}
	if after.CurrentParticipants != 1 {
		t.Errorf("participants after leave = %d, want 1", after.CurrentParticipants)
	}

	// The organizer cannot abandon their own ride.
	if err := alice.LeaveRide(ctx, ride.ID); err == nil {
		t.Error("organizer leave should fail")
	}

	_ = bobUser
	t.Log("Ride lifecycle test passed")

	// Cleanup
	if err := alice.DeleteRide(ctx, ride.ID); err != nil {
		t.Logf("Cleanup delete ride: %v", err)
	}
}

// TestRideCapacity fills a two-seat ride and verifies the next join bounces.
func TestRideCapacity(t *testing.T) {
	requireServer(t)
	ctx := context.Background()

	organizer, _ := registerUser(t, "organizer")
	rider, _ := registerUser(t, "rider")
	late, _ := registerUser(t, "latecomer")

	start := time.Now().Add(24 * time.Hour)
	ride, err := organizer.CreateRide(ctx, &model.CreateRideRequest{
		Title:           "Tiny gravel spin " + fmt.Sprint(time.Now().UnixNano()),
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		RouteType:       model.RouteTypeGravel,
		Difficulty:      model.DifficultyEasy,
		MaxParticipants: 2,
	})
	if err != nil {
		t.Fatalf("Create ride: %v", err)
	}
	defer organizer.DeleteRide(ctx, ride.ID)

	if _, err := rider.JoinRide(ctx, ride.ID); err != nil {
		t.Fatalf("First join: %v", err)
	}

	_, err = late.JoinRide(ctx, ride.ID)
	if err == nil {
		t.Fatal("join on a full ride should fail")
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status != http.StatusConflict {
		t.Errorf("full ride status = %d, want %d", apiErr.Status, http.StatusConflict)
	}

	t.Log("Ride capacity test passed")
}

// TestDirectMessaging covers conversations: send, unread counters, mark read.
func TestDirectMessaging(t *testing.T) {
	requireServer(t)
	ctx := context.Background()

	alice, aliceUser := registerUser(t, "alice")
	bob, bobUser := registerUser(t, "bob")

	for i := 0; i < 3; i++ {
		_, err := alice.SendMessage(ctx, &model.SendMessageRequest{
			ReceiverID: bobUser.ID,
			Content:    fmt.Sprintf("ping %d", i),
		})
		if err != nil {
			t.Fatalf("Send message %d: %v", i, err)
		}
	}

	convs, err := bob.ListConversations(ctx)
	if err != nil {
		t.Fatalf("List conversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs))
	}
	if convs[0].UnreadCount != 3 {
		t.Errorf("unread = %d, want 3", convs[0].UnreadCount)
	}
	if convs[0].Other == nil || convs[0].Other.ID != aliceUser.ID {
		t.Errorf("other = %+v, want alice", convs[0].Other)
	}
	if convs[0].LastMessage == nil || convs[0].LastMessage.Content != "ping 2" {
		t.Errorf("last message = %+v, want newest", convs[0].LastMessage)
	}

	// Sender side has nothing unread.
	aliceConvs, err := alice.ListConversations(ctx)
	if err != nil {
		t.Fatalf("List alice conversations: %v", err)
	}
	if len(aliceConvs) != 1 || aliceConvs[0].UnreadCount != 0 {
		t.Errorf("sender unread = %+v, want 0", aliceConvs)
	}

	if err := bob.MarkConversationRead(ctx, aliceUser.ID); err != nil {
		t.Fatalf("Mark read: %v", err)
	}
	convs, _ = bob.ListConversations(ctx)
	if len(convs) != 1 || convs[0].UnreadCount != 0 {
		t.Errorf("unread after mark read = %+v, want 0", convs)
	}

	// Messaging yourself is rejected.
	if _, err := bob.SendMessage(ctx, &model.SendMessageRequest{ReceiverID: bobUser.ID, Content: "hi me"}); err == nil {
		t.Error("self message should fail")
	}

	t.Log("Direct messaging test passed")
}

// TestAuthRefreshRotation exercises the refresh flow: a rotated token works,
// the replaced one is dead, and reusing it kills the whole session family.
func TestAuthRefreshRotation(t *testing.T) {
	requireServer(t)
	ctx := context.Background()

	c := client.New(baseURL)
	email := fmt.Sprintf("rotator-%d@wildpals.test", time.Now().UnixNano())
	resp, err := c.Register(ctx, &model.RegisterRequest{Name: "rotator", Email: email, Password: "password123"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	firstRefresh := resp.RefreshToken

	pair, err := c.Refresh(ctx, firstRefresh)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair.RefreshToken == firstRefresh {
		t.Error("refresh must rotate the refresh token")
	}
	if _, err := c.Me(ctx); err != nil {
		t.Errorf("access token from refresh rejected: %v", err)
	}

	// Replaying the spent token is token theft: the family dies with it.
	if _, err := c.Refresh(ctx, firstRefresh); err == nil {
		t.Fatal("reusing a rotated refresh token should fail")
	}
	if _, err := c.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Error("descendant token should be revoked after reuse")
	}

	t.Log("Refresh rotation test passed")
}

// TestProfileUpdateAndSearch checks profile edits land and name search finds
// the account.
func TestProfileUpdateAndSearch(t *testing.T) {
	requireServer(t)
	ctx := context.Background()

	nonce := fmt.Sprint(time.Now().UnixNano())
	c, me := registerUser(t, "searchable-"+nonce)

	bio := "Gravel all year"
	updated, err := c.UpdateProfile(ctx, &model.UpdateProfileRequest{Bio: &bio})
	if err != nil {
		t.Fatalf("Update profile: %v", err)
	}
	if updated.Bio == nil || *updated.Bio != bio {
		t.Errorf("bio = %v, want %q", updated.Bio, bio)
	}

	results, err := c.SearchUsers(ctx, "searchable-"+nonce, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	found := false
	for _, u := range results {
		if u.ID == me.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("user %d missing from search results", me.ID)
	}

	t.Log("Profile update and search test passed")
}
