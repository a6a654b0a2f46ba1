package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"terrasync.gg/internal/bus"
	"terrasync.gg/internal/director"
	persistlog "terrasync.gg/internal/persistence/log"
	"terrasync.gg/internal/regen"
	"terrasync.gg/internal/roster"
	"terrasync.gg/internal/store"
	"terrasync.gg/internal/territory"
	"terrasync.gg/internal/transport/ws"
	"terrasync.gg/internal/tuning"
	"terrasync.gg/internal/worldgen"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		factionPath = flag.String("factions", "", "path to factions.yaml (default: <configs>/factions.yaml)")
		terrPath    = flag.String("territories", "", "path to territories.yaml (default: generated from worldgen seed)")
		dbPath      = flag.String("db", "", "sqlite database path (default: <data>/territory.db)")
		seed        = flag.Int64("seed", 0, "override worldgen seed (0 keeps tuning value)")
		regenURL    = flag.String("regen_url", "", "content generation service base url (empty: log-only)")
		disableDB   = flag.Bool("disable_db", false, "run without sqlite persistence")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	fp := strings.TrimSpace(*factionPath)
	if fp == "" {
		fp = filepath.Join(*configDir, "factions.yaml")
	}
	factions, err := roster.LoadFactions(fp)
	if err != nil {
		logger.Fatalf("load factions: %v", err)
	}

	var terrs []territory.Territory
	if p := strings.TrimSpace(*terrPath); p != "" {
		terrs, err = roster.LoadTerritories(p)
		if err != nil {
			logger.Fatalf("load territories: %v", err)
		}
		logger.Printf("territories: %d from %s", len(terrs), p)
	} else {
		wg := tune.WorldGen
		if *seed != 0 {
			wg.Seed = *seed
		}
		terrs = worldgen.Generate(wg.Seed, wg.Territories, wg.Extent)
		logger.Printf("territories: %d generated (seed=%d)", len(terrs), wg.Seed)
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	var db *store.DB
	if !*disableDB {
		p := strings.TrimSpace(*dbPath)
		if p == "" {
			p = filepath.Join(*dataDir, "territory.db")
		}
		db, err = store.Open(p)
		if err != nil {
			logger.Fatalf("open db: %v", err)
		}
	}

	st, err := store.New(store.Config{
		ContestMargin: tune.ContestMargin,
		LockWait:      tune.LockWait(),
	}, factions, terrs, db)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}

	auditLog := persistlog.NewInfluenceLogger(*dataDir)
	defer auditLog.Close()
	st.SetAuditLogger(auditLog)

	ctx, cancel := signalContext()
	defer cancel()

	eventBus, err := bus.NewEmbedded()
	if err != nil {
		logger.Fatalf("event bus: %v", err)
	}
	defer eventBus.Close()

	var gen regen.Generator
	if u := strings.TrimSpace(*regenURL); u != "" {
		gen = &regen.HTTPGenerator{
			BaseURL: strings.TrimSuffix(u, "/"),
			Client:  &http.Client{Timeout: tune.RegenTimeout()},
		}
	} else {
		gen = &regen.NopGenerator{Log: log.New(os.Stdout, "[regen] ", log.LstdFlags|log.Lmicroseconds)}
	}
	dispatcher := regen.New(regen.Config{
		Retries: tune.RegenRetries,
		Backoff: tune.RegenBackoff(),
		Timeout: tune.RegenTimeout(),
	}, gen, st, log.New(os.Stdout, "[regen] ", log.LstdFlags|log.Lmicroseconds))
	go func() { _ = dispatcher.Run(ctx) }()

	regenSub, err := eventBus.SubscribeControl(func(ev territory.ControlChangeEvent) {
		dispatcher.Dispatch(ev)
	})
	if err != nil {
		logger.Fatalf("subscribe control: %v", err)
	}
	defer regenSub.Unsubscribe()

	hub := ws.NewHub(ws.Config{
		ClientQueue: tune.ClientQueue,
		Heartbeat:   tune.Heartbeat(),
		MaxMissed:   tune.HeartbeatMisses,
	}, st)
	hub.SetControlSink(func(ev territory.ControlChangeEvent) {
		if err := eventBus.PublishControl(ev); err != nil {
			logger.Printf("publish control: %v", err)
		}
	})
	go func() {
		if err := hub.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("hub stopped: %v", err)
		}
	}()

	dir := director.New(director.Config{
		Interval:     tune.StrategicTick(),
		Deadline:     tune.DecisionDeadline(),
		DecayPerTick: tune.DecayPerTick,
	}, st, log.New(os.Stdout, "[director] ", log.LstdFlags|log.Lmicroseconds))
	go func() {
		if err := dir.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("director stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP terrasync_territories Territory count.\n")
		fmt.Fprintf(rw, "# TYPE terrasync_territories gauge\n")
		fmt.Fprintf(rw, "terrasync_territories %d\n", len(terrs))

		fmt.Fprintf(rw, "# HELP terrasync_clients Connected websocket clients.\n")
		fmt.Fprintf(rw, "# TYPE terrasync_clients gauge\n")
		fmt.Fprintf(rw, "terrasync_clients %d\n", hub.Clients())

		fmt.Fprintf(rw, "# HELP terrasync_messages_delivered Messages enqueued to clients.\n")
		fmt.Fprintf(rw, "# TYPE terrasync_messages_delivered counter\n")
		fmt.Fprintf(rw, "terrasync_messages_delivered %d\n", hub.Delivered())

		fmt.Fprintf(rw, "# HELP terrasync_clients_dropped Clients dropped for slow consumption.\n")
		fmt.Fprintf(rw, "# TYPE terrasync_clients_dropped counter\n")
		fmt.Fprintf(rw, "terrasync_clients_dropped %d\n", hub.Dropped())

		fmt.Fprintf(rw, "# HELP terrasync_commits Applied influence mutations.\n")
		fmt.Fprintf(rw, "# TYPE terrasync_commits counter\n")
		fmt.Fprintf(rw, "terrasync_commits %d\n", st.Commits())

		fmt.Fprintf(rw, "# HELP terrasync_director_ticks Completed strategic ticks.\n")
		fmt.Fprintf(rw, "# TYPE terrasync_director_ticks counter\n")
		fmt.Fprintf(rw, "terrasync_director_ticks %d\n", dir.Ticks())

		fmt.Fprintf(rw, "# HELP terrasync_director_decisions Decisions applied, by faction and action.\n")
		fmt.Fprintf(rw, "# TYPE terrasync_director_decisions counter\n")
		for fid, byAction := range dir.Counts() {
			for act, n := range byAction {
				fmt.Fprintf(rw, "terrasync_director_decisions{faction=%q,action=%q} %d\n",
					strconv.Itoa(int(fid)), act.String(), n)
			}
		}

		fmt.Fprintf(rw, "# HELP terrasync_regen_requests Regeneration requests by outcome.\n")
		fmt.Fprintf(rw, "# TYPE terrasync_regen_requests counter\n")
		fmt.Fprintf(rw, "terrasync_regen_requests{outcome=%q} %d\n", "succeeded", dispatcher.Succeeded())
		fmt.Fprintf(rw, "terrasync_regen_requests{outcome=%q} %d\n", "failed", dispatcher.Failed())
	})
	mux.HandleFunc("/v1/ws", ws.NewServer(hub, st, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (factions=%d territories=%d margin=%d)",
		*addr, len(factions), len(terrs), tune.ContestMargin)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Flush the write-behind persister before exit.
	if err := st.Close(); err != nil {
		logger.Printf("store close: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
