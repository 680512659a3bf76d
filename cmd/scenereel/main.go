// Command scenereel submits a story for scene generation, follows the
// task until it finishes and previews the resulting scene list.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AaronLay10/SceneReel/internal/app"
	"github.com/AaronLay10/SceneReel/internal/backend"
	"github.com/AaronLay10/SceneReel/internal/events"
	"github.com/AaronLay10/SceneReel/internal/media"
	"github.com/AaronLay10/SceneReel/internal/orchestrator"
	"github.com/AaronLay10/SceneReel/internal/playback"
	"github.com/AaronLay10/SceneReel/internal/submit"
	"github.com/AaronLay10/SceneReel/internal/version"
)

type options struct {
	configPath string
	envFile    string
	logLevel   string

	file       string
	text       string
	video      bool
	storyboard bool
	prompt     string
	yes        bool

	scenesFile string
	history    bool
	sessionID  string
	download   string
	noPlay     bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "client config (.yaml or .toml)")
	flag.StringVar(&o.envFile, "env", ".env", "dotenv file to load")
	flag.StringVar(&o.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flag.StringVar(&o.file, "file", "", "story file to upload")
	flag.StringVar(&o.text, "text", "", "story text to upload")
	flag.BoolVar(&o.video, "video", false, "request video rendering")
	flag.BoolVar(&o.storyboard, "storyboard", false, "request storyboard generation")
	flag.StringVar(&o.prompt, "prompt", "", "custom prompt")
	flag.BoolVar(&o.yes, "yes", false, "accept payment without asking")
	flag.StringVar(&o.scenesFile, "scenes", "", "play a saved scene list instead of submitting")
	flag.BoolVar(&o.history, "history", false, "list past uploads")
	flag.StringVar(&o.sessionID, "session", "", "play the scenes of a past upload")
	flag.StringVar(&o.download, "download", "", "save the rendered video to this path")
	flag.BoolVar(&o.noPlay, "no-play", false, "skip the playback preview")
	flag.Parse()
	return o
}

// stdinPrompter asks on the terminal.
func stdinPrompter(autoAccept bool) submit.Prompter {
	return submit.PromptFunc(func(ctx context.Context, check backend.PaymentCheck, words int) (bool, error) {
		if autoAccept {
			return true, nil
		}
		fmt.Printf("This story has %d characters and costs %.2f. Continue? [y/N] ", words, check.PaymentAmount)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return false, nil
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	})
}

func main() {
	os.Exit(realMain(parseFlags()))
}

func realMain(o options) int {
	if err := app.LoadDotEnv(o.envFile); err != nil {
		log.Printf("failed to load %s: %v", o.envFile, err)
		return 1
	}
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}
	env, err := app.Open(cfg, o.logLevel)
	if err != nil {
		log.Printf("failed to start: %v", err)
		return 1
	}
	defer env.Close()

	events.Emit("info", "system.startup", "scenereel starting", map[string]interface{}{
		"version": version.Version,
		"backend": cfg.Backend.BaseURL,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := orchestrator.NewRuntime(orchestrator.Options{
		Backend:     env.Backend,
		Prompter:    stdinPrompter(o.yes),
		Players:     media.Players{Audio: media.NewClockPlayer(cfg.ClipDuration()), Video: media.NewClockPlayer(cfg.ClipDuration())},
		Config:      cfg,
		Preferences: env.Preferences,
	})
	defer rt.Close()

	code := run(ctx, rt, o)
	events.Emit("info", "system.shutdown", "", map[string]interface{}{"exit_code": code})
	return code
}

func run(ctx context.Context, rt *orchestrator.Runtime, o options) int {
	if o.scenesFile != "" {
		if err := rt.LoadScenesFile(o.scenesFile); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return preview(ctx, rt, o)
	}

	user, err := rt.CheckAuthentication(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: not logged in; set SCENEREEL_SESSION to a valid session cookie")
		return 2
	}
	fmt.Printf("Logged in as %s\n", user.Username)

	switch {
	case o.history:
		return listHistory(ctx, rt)
	case o.sessionID != "":
		if err := rt.PlayFromHistory(ctx, o.sessionID); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		if o.download != "" {
			if code := download(ctx, rt, o.download); code != 0 {
				return code
			}
		}
		return preview(ctx, rt, o)
	}

	if code := submitAndWait(ctx, rt, o); code != 0 {
		return code
	}
	return preview(ctx, rt, o)
}

func listHistory(ctx context.Context, rt *orchestrator.Runtime) int {
	entries, err := rt.OpenHistory(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Println("No uploads yet.")
		return 0
	}
	for _, e := range entries {
		mark := " "
		if e.Viewable() {
			mark = "*"
		}
		fmt.Printf("%s %-36s %-24s %3d scenes  %s\n", mark, e.SessionID, e.Filename, e.SceneCount, e.CreatedAt)
	}
	return 0
}

func submitAndWait(ctx context.Context, rt *orchestrator.Runtime, o options) int {
	var src submit.Source
	switch {
	case o.file != "":
		var err error
		if src, err = submit.FromFile(o.file); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		rt.SelectFile(src.Filename)
	case o.text != "":
		src = submit.FromText(o.text)
	default:
		fmt.Fprintln(os.Stderr, "error: one of -file, -text, -scenes, -history or -session is required")
		flag.Usage()
		return 2
	}

	h, err := rt.Submit(ctx, src, orchestrator.SubmitOptions{
		EnableVideo:   o.video,
		UseStoryboard: o.storyboard,
		CustomPrompt:  o.prompt,
	})
	switch {
	case errors.Is(err, submit.ErrCancelled):
		fmt.Println("Cancelled.")
		return 0
	case errors.Is(err, submit.ErrMissingCredential):
		fmt.Fprintln(os.Stderr, "error: no API key; set SCENEREEL_API_KEY or store one in preferences")
		return 2
	case err != nil:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Printf("Task %s submitted (%d characters)\n", h.TaskID, h.WordCount)

	done := rt.PollDone()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	last := -1
	for {
		select {
		case <-ctx.Done():
			rt.ReturnHome()
			fmt.Println("\nAbandoned.")
			return 130
		case <-ticker.C:
			st := rt.Progress()
			if st.Progress != last {
				fmt.Printf("\r%3d%% %s", st.Progress, st.Message)
				last = st.Progress
			}
		case <-done:
			fmt.Println()
			st := rt.Progress()
			if st.Screen != orchestrator.ScreenPlayer {
				fmt.Fprintf(os.Stderr, "error: %s\n", st.LastError)
				return 1
			}
			if o.download != "" {
				if code := download(ctx, rt, o.download); code != 0 {
					return code
				}
			}
			return 0
		}
	}
}

func download(ctx context.Context, rt *orchestrator.Runtime, path string) int {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	n, err := rt.DownloadResult(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		fmt.Fprintf(os.Stderr, "error: download failed: %v\n", err)
		return 1
	}
	fmt.Printf("Saved %d bytes to %s\n", n, path)
	return 0
}

// preview plays the loaded scenes on simulated players and prints each
// scene as it becomes current.
func preview(ctx context.Context, rt *orchestrator.Runtime, o options) int {
	ctrl := rt.Controller()
	snap := ctrl.Snapshot()
	fmt.Printf("%d scenes loaded\n", len(snap.Scenes))
	if o.noPlay || !snap.Loaded() {
		return 0
	}

	if err := ctrl.Play(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	shown := -1
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			ctrl.Stop()
			return 130
		case <-ticker.C:
		}

		snap := ctrl.Snapshot()
		if snap.CurrentIndex != shown {
			shown = snap.CurrentIndex
			printScene(snap)
		}
		if snap.PlayState != playback.Paused || ctrl.AdvancePending() {
			continue
		}
		if snap.CurrentIndex == len(snap.Scenes)-1 {
			fmt.Println("End.")
			return 0
		}
		fmt.Fprintln(os.Stderr, "playback paused after an error")
		return 1
	}
}

func printScene(snap playback.Snapshot) {
	sc, ok := snap.Current()
	if !ok {
		return
	}
	fmt.Printf("[%d/%d] %s", snap.CurrentIndex+1, len(snap.Scenes), sc.Mode())
	if label := sc.Mood.Label(); label != "" {
		fmt.Printf(" mood=%s", label)
	}
	if chars := sc.CharactersLabel(); chars != "" {
		fmt.Printf(" cast=%s", chars)
	}
	fmt.Printf("\n  %s\n", sc.Text)
}
