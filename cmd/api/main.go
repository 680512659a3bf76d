// Command api runs the session runtime behind the local control API.
// Media elements live in the native shell and are driven over MQTT.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/AaronLay10/SceneReel/internal/api"
	"github.com/AaronLay10/SceneReel/internal/app"
	"github.com/AaronLay10/SceneReel/internal/config"
	"github.com/AaronLay10/SceneReel/internal/events"
	"github.com/AaronLay10/SceneReel/internal/media"
	"github.com/AaronLay10/SceneReel/internal/mqtt"
	"github.com/AaronLay10/SceneReel/internal/orchestrator"
	"github.com/AaronLay10/SceneReel/internal/version"
)

// bridge holds the MQTT pieces that must be re-attached on reconnect.
type bridge struct {
	mu       sync.Mutex
	players  []*mqtt.RemotePlayer
	controls *mqtt.ControlSubscriber
}

func (b *bridge) resubscribe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.players {
		if err := p.Subscribe(); err != nil {
			log.Printf("[mqtt] resubscribe player: %v", err)
		}
	}
	if b.controls != nil {
		b.controls.ClearSubscriptions()
		if err := b.controls.Subscribe(); err != nil {
			log.Printf("[mqtt] resubscribe control: %v", err)
		}
	}
}

func remotePlayers(client *mqtt.Client, cfg *config.ClientConfig, b *bridge) (media.Players, error) {
	audio, err := mqtt.NewRemotePlayer(client, cfg.MQTT.TopicPrefix, "audio", 0)
	if err != nil {
		return media.Players{}, err
	}
	video, err := mqtt.NewRemotePlayer(client, cfg.MQTT.TopicPrefix, "video", 0)
	if err != nil {
		return media.Players{}, err
	}
	b.mu.Lock()
	b.players = []*mqtt.RemotePlayer{audio, video}
	b.mu.Unlock()
	return media.Players{Audio: audio, Video: video}, nil
}

func main() {
	configPath := flag.String("config", "", "client config (.yaml or .toml)")
	envFile := flag.String("env", ".env", "dotenv file to load")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	headless := flag.Bool("headless", false, "simulate media instead of driving the shell over MQTT")
	flag.Parse()

	if err := app.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("failed to load %s: %v", *envFile, err)
	}
	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	env, err := app.Open(cfg, *logLevel)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer env.Close()

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "api starting", map[string]interface{}{
		"service":  "api",
		"hostname": hostname,
		"pid":      os.Getpid(),
		"version":  version.Version,
	})

	api.InitMetrics()
	api.InitAuth()
	api.InitTLS()
	api.InitAlerts()
	api.SetClientName(cfg.MQTT.ClientID)
	api.SetPostgresState(env.Postgres != nil, !cfg.Storage.Postgres)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	players := media.Players{Audio: media.NewClockPlayer(cfg.ClipDuration()), Video: media.NewClockPlayer(cfg.ClipDuration())}
	var client *mqtt.Client
	b := &bridge{}

	if !*headless {
		client = mqtt.NewClient(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			OnConnect: func() {
				api.SetMQTTState(true, false)
				b.resubscribe()
			},
			OnConnectionLost: func(err error) {
				log.Printf("[mqtt] connection lost: %v", err)
				api.SetMQTTState(false, false)
			},
		})
		if client.Start() {
			if players, err = remotePlayers(client, cfg, b); err != nil {
				log.Fatalf("failed to attach remote players: %v", err)
			}
			mqtt.MirrorEvents(ctx, client, cfg.MQTT.TopicPrefix)
		} else {
			log.Printf("[api] mqtt unavailable, falling back to simulated media")
			api.SetMQTTState(false, true)
			client.Disconnect()
			client = nil
		}
	} else {
		api.SetMQTTState(false, true)
	}

	rt := orchestrator.NewRuntime(orchestrator.Options{
		Backend:      env.Backend,
		Prompter:     api.PaymentPrompter(),
		Players:      players,
		Config:       cfg,
		Preferences:  env.Preferences,
		OnTaskFailed: api.TaskFailed,
	})
	defer rt.Close()

	if client != nil {
		controls := mqtt.NewControlSubscriber(client, cfg.MQTT.TopicPrefix, rt.Controller())
		if err := controls.Subscribe(); err != nil {
			log.Printf("[mqtt] control subscribe failed: %v", err)
		}
		b.mu.Lock()
		b.controls = controls
		b.mu.Unlock()
		defer client.Disconnect()
	}

	if _, err := rt.CheckAuthentication(ctx); err != nil {
		log.Printf("[api] backend session not authenticated: %v", err)
	}

	api.SetSession(rt)
	api.StartAlertMonitor(15 * time.Second)
	api.Start(cfg.API.Port)

	<-ctx.Done()
	events.Emit("info", "system.shutdown", "api stopping", nil)
	events.CloseAllSubscribers()
}
