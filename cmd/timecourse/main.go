package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/carenod/timecourse-for-raspi/internal/api/server"
	"github.com/carenod/timecourse-for-raspi/internal/camera"
	"github.com/carenod/timecourse-for-raspi/internal/config"
	database "github.com/carenod/timecourse-for-raspi/internal/db"
	"github.com/carenod/timecourse-for-raspi/internal/health"
	"github.com/carenod/timecourse-for-raspi/internal/scheduler"
	"github.com/carenod/timecourse-for-raspi/internal/session"
	"github.com/carenod/timecourse-for-raspi/internal/storage"
	"github.com/carenod/timecourse-for-raspi/internal/store"
)

func main() {
	// 1. Parse Flags
	stub := flag.Bool("stub-camera", false, "Use the synthetic camera (development without hardware)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// 2. Load Config
	cfg := config.Load()
	if *stub {
		cfg.Camera.Device = "stub"
	}

	// 3. Init Infrastructure
	db := database.New(cfg)
	db.AutoMigrate()

	frames, err := store.New(cfg.Server.DataDir, cfg.Capture.DiskFloorMB)
	if err != nil {
		log.Fatalf("❌ Failed to init frame store: %v", err)
	}

	cam := newCamera(cfg)

	// 4. Session state: running/paused left over from a crash becomes
	// error here, before anything else observes it.
	machine := session.NewManager(db.DB)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 5. Background actors
	monitor := health.NewMonitor(
		cfg.Server.DataDir,
		time.Duration(cfg.Health.SampleSeconds)*time.Second,
		cfg.Health.HistorySize,
	)
	go monitor.Run(ctx)

	scheduler.RegisterMetrics()
	loop := scheduler.NewLoop(scheduler.LoopOptions{
		Machine:        machine,
		Camera:         cam,
		Frames:         frames,
		Health:         monitor,
		Policy:         scheduler.RetryPolicy{MaxRetries: cfg.Capture.RetryMax, Backoff: time.Duration(cfg.Capture.RetryBackoff) * time.Millisecond},
		Tick:           time.Duration(cfg.Capture.TickMillis) * time.Millisecond,
		CaptureTimeout: time.Duration(cfg.Camera.CaptureTimeout) * time.Second,
		DiskFloorBytes: uint64(cfg.Capture.DiskFloorMB) * 1024 * 1024,
	})
	go loop.Run(ctx)

	// 6. Control API (blocking)
	archiveTarget := storage.NewFromConfig(cfg)
	api := server.New(cfg, machine, frames, cam, monitor, archiveTarget)

	log.Printf("🚀 Timecourse listening on %s", cfg.Server.Port)
	if err := api.Start(ctx, cfg.Server.Port); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
	log.Println("👋 Shutdown complete")
}

func newCamera(cfg *config.Config) camera.Camera {
	if cfg.Camera.Device == "stub" {
		log.Println("🧪 MODE: STUB CAMERA (no hardware)")
		return camera.NewStub(cfg.Camera.Width, cfg.Camera.Height)
	}

	dev, err := camera.NewDevice(camera.Options{
		Device: cfg.Camera.Device,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		Warmup: time.Duration(cfg.Camera.WarmupMillis) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("❌ Camera config: %v", err)
	}
	return dev
}
