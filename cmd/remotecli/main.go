// Package main provides a command line remote control for player sessions.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/queueplayer/internal/api/connect"
	"github.com/osa030/queueplayer/internal/app/notification"
	"github.com/osa030/queueplayer/internal/ui"
)

var (
	app     = kingpin.New("queueplayer-remote", "queueplayer remote control")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	session = app.Flag("session", "Session ID or page URL").Envar("QUEUEPLAYER_SESSION").Required().String()

	stateCmd  = app.Command("state", "Show the session state")
	toggleCmd = app.Command("toggle", "Pause or resume playback")
	nextCmd   = app.Command("next", "Play the next song")
	playCmd   = app.Command("play", "Play a track")
	playURI   = playCmd.Arg("uri", "Spotify track URI, URL or ID").Required().String()
	watchCmd  = app.Command("watch", "Stream page updates")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewPlayerServiceClient(http.DefaultClient, *server, sessionFromLink(*session))
	ctx := context.Background()

	switch command {
	case stateCmd.FullCommand():
		showState(ctx, client)
	case toggleCmd.FullCommand():
		printAction(client.Toggle(ctx))
	case nextCmd.FullCommand():
		printAction(client.Next(ctx))
	case playCmd.FullCommand():
		printAction(client.PlayTrack(ctx, *playURI))
	case watchCmd.FullCommand():
		watch(ctx, client)
	}
}

func showState(ctx context.Context, client *apiconnect.PlayerServiceClient) {
	state, err := client.GetState(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printState(state)
}

func printAction(resp *apiconnect.ActionResponse, err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if resp.Success {
		fmt.Println("OK")
	} else {
		fmt.Printf("Failed: %s\n", resp.Error)
	}
	printState(&resp.State)
}

func printState(s *apiconnect.StateResponse) {
	fmt.Printf("\nSession: %s (%s)\n", s.Session.ID, s.Session.State)
	if s.Session.DeviceID != "" {
		fmt.Printf("  Device: %s\n", s.Session.DeviceID)
	}
	if s.Session.Current != nil {
		fmt.Printf("  Now playing: %s\n", s.Session.Current.Label())
	}
	fmt.Printf("  Status: %s\n", s.Page.Status)
	printQueue(s.Page.Queue, s.Page.SkipDisabled)
}

func printQueue(queue []ui.Item, skipDisabled bool) {
	fmt.Printf("  Queue (%d):\n", len(queue))
	for i, item := range queue {
		fmt.Printf("    %2d. %s - %s  [%s]\n", i+1, item.Name, item.Artist, item.URI)
	}
	if skipDisabled {
		fmt.Println("  Skip: disabled")
	}
}

func watch(ctx context.Context, client *apiconnect.PlayerServiceClient) {
	stream, err := client.Subscribe(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Watching session. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		os.Exit(0)
	}()

	for stream.Receive() {
		printNotification(stream.Msg())
	}

	if err := stream.Err(); err != nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printNotification(n *notification.Notification) {
	fmt.Printf("\n[Sequence: %d] ", n.SequenceNo)
	if n.Initial {
		fmt.Println("=== INITIAL STATE ===")
	} else {
		fmt.Println("=== PAGE UPDATED ===")
	}

	page := n.Page
	if page.NowPlaying != nil {
		fmt.Printf("  Now playing: %s - %s\n", page.NowPlaying.Name, page.NowPlaying.Artist)
	}
	if page.Playback != nil {
		fmt.Printf("  Device: %s\n", formatPlayback(*page.Playback))
	}
	fmt.Printf("  Status: %s\n", page.Status)
	printQueue(page.Queue, page.SkipDisabled)
}

func formatPlayback(pb ui.Playback) string {
	label := "▶️  Playing"
	if pb.Paused {
		label = "⏸  Paused"
	}
	if pb.TrackName != "" {
		label += " " + pb.TrackName
	}
	return fmt.Sprintf("%s (%s)", label, pb.Position().Truncate(time.Second))
}

// sessionFromLink extracts the session ID from a page URL such as
// http://localhost:8080/s/<id>.
func sessionFromLink(link string) string {
	if i := strings.LastIndex(link, "/s/"); i >= 0 {
		return strings.Trim(link[i+3:], "/")
	}
	return link
}
