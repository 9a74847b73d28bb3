package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/service"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := &cli.App{
		Name:  "buzz_race",
		Usage: "drive concurrent signal races against a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", EnvVars: []string{"BUZZ_URL"}},
			&cli.StringFlag{Name: "room", Usage: "room code, generated when empty"},
			&cli.IntFlag{Name: "players", Value: 20},
			&cli.IntFlag{Name: "rounds", Value: 10},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	ctx := c.Context
	client := service.NewClient(&http.Client{Timeout: 10 * time.Second}, c.String("url"))

	code := c.String("room")
	if code == "" {
		code = "RACE-" + uuid.NewString()[:8]
	}
	host := "race-host"
	players := c.Int("players")
	if players < 1 {
		return fmt.Errorf("need at least one player")
	}

	if _, err := client.CreateRoom(ctx, &service.CreateRoomRequest{Code: code, HostID: host, HostName: "Race Host"}); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	ids := make([]string, players)
	for i := range ids {
		ids[i] = fmt.Sprintf("racer-%03d", i)
		if _, err := client.JoinRoom(ctx, &service.JoinRoomRequest{Code: code, ParticipantID: ids[i], Name: ids[i]}); err != nil {
			return fmt.Errorf("join %s: %w", ids[i], err)
		}
	}
	fmt.Printf("Room %s ready with %d players\n", code, players)

	var latencies []time.Duration
	for round := 1; round <= c.Int("rounds"); round++ {
		winners, took, err := race(ctx, client, code, host, fmt.Sprintf("item-%d", round), ids)
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		if winners != 1 {
			return fmt.Errorf("round %d: %d winners", round, winners)
		}
		latencies = append(latencies, took...)
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	fmt.Printf(
		"Race complete: %d rounds, %d attempts, p50 %s, p99 %s\n",
		c.Int("rounds"), len(latencies), percentile(latencies, 50), percentile(latencies, 99),
	)
	return nil
}

// race opens one item, fires every attempt at once and closes the round again.
func race(ctx context.Context, client *service.Client, code, host, item string, ids []string) (int, []time.Duration, error) {
	if err := client.ReportMedia(ctx, &service.ReportMediaRequest{Code: code, ParticipantID: host, ItemID: item, Kind: "started"}); err != nil {
		return 0, nil, fmt.Errorf("start media: %w", err)
	}

	var winners atomic.Int32
	took := make([]time.Duration, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			start := time.Now()
			resp, err := client.AttemptSignal(gctx, &service.AttemptSignalRequest{Code: code, ParticipantID: id})
			took[i] = time.Since(start)
			if err != nil {
				return fmt.Errorf("attempt %s: %w", id, err)
			}
			if resp.Won {
				winners.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}

	if _, err := client.Adjudicate(ctx, &service.AdjudicateRequest{Code: code, ParticipantID: host, Verdict: models.VerdictCorrect}); err != nil {
		return 0, nil, fmt.Errorf("adjudicate: %w", err)
	}
	if err := client.ReportMedia(ctx, &service.ReportMediaRequest{Code: code, ParticipantID: host, ItemID: item, Kind: "ended"}); err != nil {
		return 0, nil, fmt.Errorf("end media: %w", err)
	}
	return int(winners.Load()), took, nil
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[(len(sorted)-1)*p/100]
}
