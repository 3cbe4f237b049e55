package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/tilewatch/internal/api"
	"github.com/banshee-data/tilewatch/internal/config"
	"github.com/banshee-data/tilewatch/internal/frame"
	"github.com/banshee-data/tilewatch/internal/learndb"
	"github.com/banshee-data/tilewatch/internal/tile"
	"github.com/banshee-data/tilewatch/internal/version"
)

var (
	showVersion = flag.Bool("version", false, "Print version and exit")

	configPath = flag.String("config", "", "Path to tuning config JSON (optional)")
	replayPath = flag.String("replay", "", "Path to a JSONL frame recording to replay")
	loopReplay = flag.Bool("loop", false, "Loop the replay recording instead of stopping at EOF")
	demoMode   = flag.Bool("demo", false, "Run against a synthetic frame source")
	maxFrames  = flag.Int("frames", 0, "Stop after N frames (0 = unlimited)")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	mappings   = flag.String("mappings", "", "Registry mappings file (overrides config)")
	dbPath     = flag.String("db", "", "Learning log database path (overrides config)")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("tilewatch %s (%s)\n", version.Version, version.GitSHA)
		return
	}
	if err := run(); err != nil {
		log.Fatalf("tilewatch: %v", err)
	}
}

func run() error {
	cfg := config.Empty()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	mappingsFile := cfg.GetMappingsFile()
	if *mappings != "" {
		mappingsFile = *mappings
	}
	dbFile := cfg.GetDBPath()
	if *dbPath != "" {
		dbFile = *dbPath
	}
	listenAddr := cfg.GetListen()
	if *listen != "" {
		listenAddr = *listen
	}

	registry, err := tile.NewRegistry(tile.NewFileStore(mappingsFile))
	if err != nil {
		return err
	}

	db, err := learndb.Open(dbFile)
	if err != nil {
		return err
	}
	defer db.Close()
	session, err := db.StartSession()
	if err != nil {
		return err
	}
	log.Printf("learning session %s (mappings=%s db=%s)", session.ID, mappingsFile, dbFile)

	anchor := tile.Pos{X: cfg.GetAnchorX(), Y: cfg.GetAnchorY()}
	learner := tile.NewLearner(tile.LearnerParams{
		WindowSize:          cfg.GetWindowSize(),
		TopK:                cfg.GetTopK(),
		MinObservations:     cfg.GetMinObservations(),
		ConfidenceThreshold: cfg.GetConfidenceThreshold(),
	}, anchor)
	engine := tile.NewEngine(registry, learner, session)

	source, err := newSource(cfg, anchor)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: api.LoggingMiddleware(api.NewServer(engine, db, session).ServeMux()),
	}
	go func() {
		log.Printf("control API listening on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server: %v", err)
		}
	}()

	go readCommands(ctx, stop, engine)

	printControls()
	runLoop(ctx, engine, source, cfg.GetFrameInterval(), *maxFrames)

	// keep a durable copy of the registry as it stood at shutdown
	if snapID, err := db.InsertRegistrySnapshot(registry.Snapshot()); err != nil {
		log.Printf("registry snapshot failed: %v", err)
	} else {
		log.Printf("registry snapshot %d saved", snapID)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	return nil
}

// newSource picks the frame source from flags: a recording, or a synthetic
// map with one flickering unknown cell next to the anchor.
func newSource(cfg *config.Config, anchor tile.Pos) (frame.Source, error) {
	if *replayPath != "" {
		return frame.NewReplaySource(*replayPath, *loopReplay)
	}
	if *demoMode {
		base := frame.UniformGrid(cfg.GetGridSize(), tile.RGB{R: 132, G: 132, B: 132})
		base[anchor.Y][anchor.X] = tile.RGB{R: 144, G: 133, B: 251} // player, facing down
		flicker := map[tile.Pos][]tile.RGB{
			{X: anchor.X + 1, Y: anchor.Y}: {
				{R: 200, G: 50, B: 50},
				{R: 210, G: 60, B: 60},
			},
		}
		return frame.NewSyntheticSource(base, flicker, time.Now().UnixNano()), nil
	}
	return nil, fmt.Errorf("no frame source: pass -replay <file> or -demo")
}

// runLoop drives capture → process at the configured frame rate until the
// context is cancelled, the source is exhausted, or the frame budget is hit.
func runLoop(ctx context.Context, engine *tile.Engine, source frame.Source, interval time.Duration, maxFrames int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	processed := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("stopping after %d frames", processed)
			return
		case <-ticker.C:
			fr, err := source.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					log.Printf("recording exhausted after %d frames", processed)
				} else {
					log.Printf("frame source: %v", err)
				}
				return
			}
			engine.Process(fr.Colors)
			processed++
			if maxFrames > 0 && processed >= maxFrames {
				log.Printf("frame budget reached (%d)", processed)
				return
			}
		}
	}
}

func printControls() {
	log.Print("controls: s=save tile, r=reset learning, l=toggle learning, t=stats, q=quit")
}

// readCommands handles single-letter commands from stdin.
func readCommands(ctx context.Context, stop func(), engine *tile.Engine) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		switch strings.TrimSpace(sc.Text()) {
		case "s":
			res, err := engine.Commit()
			if err != nil {
				if errors.Is(err, tile.ErrNoCandidate) {
					log.Print("no candidate tiles ready for saving")
				} else {
					log.Printf("commit failed (retryable): %v", err)
				}
				continue
			}
			log.Print(res.Summary())
		case "r":
			engine.Reset()
			log.Print("learning process reset - all observations cleared")
		case "l":
			if engine.Toggle() {
				log.Print("tile learning ON")
			} else {
				log.Print("tile learning OFF")
			}
		case "t":
			st := engine.Stats()
			log.Printf("tracking %d positions, %d candidates ready, %d observations, avg confidence %.2f",
				st.PositionsTracked, st.CandidatesReady, st.TotalObservations, st.AvgConfidence)
		case "q":
			stop()
			return
		case "":
		default:
			printControls()
		}
	}
}
