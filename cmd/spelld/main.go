package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/spellengine/internal/config"
	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/core/event"
	coresys "github.com/l1jgo/spellengine/internal/core/system"
	"github.com/l1jgo/spellengine/internal/data"
	"github.com/l1jgo/spellengine/internal/effect"
	"github.com/l1jgo/spellengine/internal/feed"
	"github.com/l1jgo/spellengine/internal/persist"
	"github.com/l1jgo/spellengine/internal/scripting"
	"github.com/l1jgo/spellengine/internal/spell"
	"github.com/l1jgo/spellengine/internal/system"
	"github.com/l1jgo/spellengine/internal/world"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main loop ─────────────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/spelld.toml"
	if p := os.Getenv("SPELLD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	fmt.Printf("\n  \033[1m%s\033[0m \033[90m(id %d)\033[0m\n\n", cfg.Server.Name, cfg.Server.ID)

	// 3. Static data and scripts
	printSection("Data")
	abilities, err := data.LoadAbilityTable(cfg.Data.AbilityPath)
	if err != nil {
		return fmt.Errorf("load abilities: %w", err)
	}
	printStat("abilities", abilities.Count())

	lua, err := scripting.NewEngine(cfg.Data.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("init lua: %w", err)
	}
	defer lua.Close()
	printOK("lua scripts loaded")

	// 4. World
	ecsWorld := ecs.NewWorld()
	bus := event.NewBus()
	worldState := world.NewState(ecsWorld, bus)
	scenario, err := world.LoadScenario(cfg.Data.ScenarioPath)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	scenario.Apply(worldState)
	printStat("units", worldState.Count())

	// 5. Spell engine
	seed := cfg.Engine.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	handlers := spell.NewHandlerTable()
	effect.NewHandlers(worldState, lua, rng, bus, log).Register(handlers)
	spells := spell.NewManager(spell.Deps{
		Abilities:    abilities,
		Prereqs:      effect.NewPrereqs(worldState, lua),
		World:        worldState,
		Handlers:     handlers,
		Bus:          bus,
		Log:          log,
		Rand:         rng,
		AuraInterval: cfg.Engine.AuraInterval,
	})
	names := unitNamer(worldState)
	observe(bus, names, log)

	// 6. Systems
	runner := coresys.NewRunner()
	spellSys := system.NewSpellSystem(spells, worldState, cfg.Engine.MaxRequestsPerTick, log)
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(system.NewInterruptSystem(spells, bus, log))
	runner.Register(spellSys)
	runner.Register(system.NewSpellFinishSystem(spells))
	runner.Register(system.NewCleanupSystem(ecsWorld, spells))

	// 7. Optional persistence
	var snapSys *system.SnapshotSystem
	if cfg.Database.Enabled {
		printSection("Database")
		var db *persist.DB
		db, snapSys, err = openPersistence(cfg, spells, worldState, log)
		if err != nil {
			return err
		}
		defer db.Close()
		runner.Register(snapSys)
	}

	// 8. Optional websocket cast feed
	if cfg.Server.FeedAddr != "" {
		hub := feed.NewHub(log)
		feed.Subscribe(bus, hub, names)
		stop := serveFeed(cfg.Server.FeedAddr, hub, log)
		defer stop()
		printReady(fmt.Sprintf("cast feed on ws://%s/feed", cfg.Server.FeedAddr))
	}

	// 9. Console commands feed the request queue
	commands := make(chan command, 64)
	go readCommands(os.Stdin, commands, log)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Engine.TickRate)
	defer ticker.Stop()

	printSection("Ready")
	printReady(fmt.Sprintf("tick loop started (tick: %s)", cfg.Engine.TickRate))
	fmt.Println()

	for {
		select {
		case cmd := <-commands:
			if err := cmd.apply(worldState, spellSys); err != nil {
				log.Warn("command failed", zap.String("line", cmd.line), zap.Error(err))
			}
		case <-ticker.C:
			runner.Tick(cfg.Engine.TickRate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal", zap.String("signal", sig.String()))
			if snapSys != nil {
				if err := snapSys.SaveAll(); err != nil {
					log.Error("final snapshot failed", zap.Error(err))
				}
			}
			log.Info("stopped")
			return nil
		}
	}
}

// openPersistence connects, migrates, restores saved state and returns the
// pool with the snapshot system that uses it.
func openPersistence(cfg *config.Config, spells *spell.Manager, ws *world.State, log *zap.Logger) (*persist.DB, *system.SnapshotSystem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	version, err := persist.RunMigrations(ctx, db.Pool)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	printOK(fmt.Sprintf("schema version %d", version))

	snapSys := system.NewSnapshotSystem(spells, ws,
		persist.NewCastRepo(db), persist.NewCooldownRepo(db),
		cfg.Engine.SnapshotInterval, log)
	restored, err := snapSys.Restore(ctx)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("restore spell state: %w", err)
	}
	printStat("casts restored", restored)
	return db, snapSys, nil
}

// serveFeed starts the feed listener and returns a function that shuts it
// down.
func serveFeed(addr string, hub *feed.Hub, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/feed", hub)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("cast feed stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return func() {
		hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func unitNamer(ws *world.State) feed.Namer {
	return func(id ecs.EntityID) string {
		if u, ok := ws.Ref(id); ok {
			return u.Name()
		}
		return id.String()
	}
}

// observe logs what casts report to their casters.
func observe(bus *event.Bus, name feed.Namer, log *zap.Logger) {
	event.Subscribe(bus, func(ev spell.CastResultEvent) {
		log.Info("cast rejected", zap.String("caster", name(ev.CasterID)), zap.Uint32("ability_id", ev.AbilityID), zap.Stringer("result", ev.Result))
	})
	event.Subscribe(bus, func(ev spell.CastGoEvent) {
		for _, tg := range ev.Targets {
			for _, e := range tg.Effects {
				fields := []zap.Field{
					zap.String("caster", name(ev.CasterID)),
					zap.Uint32("ability_id", ev.AbilityID),
					zap.String("target", name(tg.UnitID)),
					zap.Uint32("effect_id", e.EffectID),
				}
				if d := e.Damage; d != nil {
					fields = append(fields, zap.Uint32("amount", d.AdjustedDamage), zap.Uint32("absorbed", d.ShieldAbsorbAmount), zap.Bool("killed", d.KilledTarget))
				}
				log.Info("effect", fields...)
			}
		}
	})
	event.Subscribe(bus, func(ev spell.CastCancelEvent) {
		log.Info("cast cancelled", zap.String("caster", name(ev.CasterID)), zap.Uint32("casting_id", ev.CastingID), zap.Stringer("result", ev.Result))
	})
	event.Subscribe(bus, func(ev event.UnitDied) {
		log.Info("unit died", zap.String("unit", name(ev.EntityID)), zap.String("killer", name(ev.KillerID)))
	})
}
