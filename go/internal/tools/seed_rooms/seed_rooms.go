package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/service"
)

// Room mirrors the JSON snapshot layout
type Room struct {
	Code     string      `json:"code"`
	HostID   string      `json:"host_id"`
	HostName string      `json:"host_name"`
	Mode     models.Mode `json:"mode"`
	Players  []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Team string `json:"team"`
	} `json:"players"`
}

func main() {
	// 1) Load the JSON snapshot
	path := "go/internal/assets/rooms.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var rooms []Room
	if err := json.Unmarshal(data, &rooms); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Talk to a running server
	baseURL := os.Getenv("BUZZ_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := service.NewClient(&http.Client{Timeout: 10 * time.Second}, baseURL)

	// 3) Create and count
	var (
		total    = len(rooms)
		inserted int
		skipped  int
		errs     int
	)

	ctx := context.Background()
	for _, r := range rooms {
		created, err := seed(ctx, client, r)
		switch {
		case err != nil:
			fmt.Fprintf(os.Stderr, "error seeding room %s: %v\n", r.Code, err)
			errs++
		case created:
			inserted++
		default:
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Rooms seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}

// seed creates r, joins its players and then switches to its mode, so that
// turn-based rooms start with a full rotation. An existing room is skipped.
func seed(ctx context.Context, client *service.Client, r Room) (bool, error) {
	_, err := client.CreateRoom(ctx, &service.CreateRoomRequest{
		Code:     r.Code,
		HostID:   r.HostID,
		HostName: r.HostName,
		Mode:     models.ModeClassic,
	})
	if connect.CodeOf(err) == connect.CodeAborted {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create: %w", err)
	}

	for _, p := range r.Players {
		if _, err := client.JoinRoom(ctx, &service.JoinRoomRequest{
			Code:          r.Code,
			ParticipantID: p.ID,
			Name:          p.Name,
			Team:          p.Team,
		}); err != nil {
			return true, fmt.Errorf("join %s: %w", p.ID, err)
		}
	}

	if r.Mode != "" && r.Mode != models.ModeClassic {
		if _, err := client.SetMode(ctx, &service.SetModeRequest{
			Code:          r.Code,
			ParticipantID: r.HostID,
			Mode:          r.Mode,
		}); err != nil {
			return true, fmt.Errorf("set mode %s: %w", r.Mode, err)
		}
	}
	return true, nil
}
