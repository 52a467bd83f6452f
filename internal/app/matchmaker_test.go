package app_test

import (
	"context"
	"testing"
	"time"

	"contest-service/internal/domain"
)

func TestFindMatchPrefersNewestLobbyMember(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(sampleCatalog())

	// the first created room takes the default lobby id
	lobby := domain.Room{Title: "Lobby"}
	if err := store.CreateRoom(ctx, &lobby); err != nil {
		t.Fatalf("create lobby: %v", err)
	}

	base := time.Now()
	_ = store.AddMembership(ctx, &domain.Membership{RoomID: lobby.ID, UserID: 2, Username: "bob", JoinedAt: base})
	_ = store.AddMembership(ctx, &domain.Membership{RoomID: lobby.ID, UserID: 3, Username: "carol", JoinedAt: base.Add(time.Minute)})
	_ = store.SaveProfile(ctx, domain.Profile{UserID: 1, Grade: 3})
	_ = store.SaveProfile(ctx, domain.Profile{UserID: 2, Grade: 3})
	_ = store.SaveProfile(ctx, domain.Profile{UserID: 3, Grade: 3})

	opponent, matched, err := service.FindMatch(ctx, domain.User{ID: 1, Username: "alice"})
	if err != nil {
		t.Fatalf("find match: %v", err)
	}
	if !matched {
		t.Fatalf("expected a match")
	}
	if opponent.Username != "carol" {
		t.Fatalf("expected the newest lobby member carol, got %q", opponent.Username)
	}
}

func TestFindMatchRequiresSameGrade(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(sampleCatalog())

	lobby := domain.Room{Title: "Lobby"}
	if err := store.CreateRoom(ctx, &lobby); err != nil {
		t.Fatalf("create lobby: %v", err)
	}
	_ = store.AddMembership(ctx, &domain.Membership{RoomID: lobby.ID, UserID: 2, Username: "bob"})
	_ = store.SaveProfile(ctx, domain.Profile{UserID: 1, Grade: 4})
	_ = store.SaveProfile(ctx, domain.Profile{UserID: 2, Grade: 2})

	_, matched, err := service.FindMatch(ctx, domain.User{ID: 1, Username: "alice"})
	if err != nil {
		t.Fatalf("find match: %v", err)
	}
	if matched {
		t.Fatalf("grades differ, expected no match")
	}
}

func TestCreateRoomGrantsBothUsers(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(sampleCatalog())

	alice := domain.User{ID: 1, Username: "Alice"}
	bob := domain.User{ID: 2, Username: "Bob"}
	room, err := service.CreateRoom(ctx, alice, bob)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if room.Title != "Alice  vs  Bob" {
		t.Fatalf("unexpected room title %q", room.Title)
	}
	if !store.Granted(room.ID, alice.ID) {
		t.Fatalf("alice was not granted access")
	}
	if !store.Granted(room.ID, bob.ID) {
		t.Fatalf("bob was not granted access")
	}

	fetched, err := service.GetRoom(ctx, room.ID, alice)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if fetched.Title != room.Title {
		t.Fatalf("stored title %q, want %q", fetched.Title, room.Title)
	}
}
