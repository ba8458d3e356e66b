// skccspotter watches the Reverse Beacon Network feed for CW activity from
// SKCC members the operator still needs, scores each spot against award
// progress from the local contact log, and prints the spots worth chasing.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"skccspotter/awards"
	"skccspotter/buffer"
	"skccspotter/config"
	"skccspotter/dedup"
	"skccspotter/eligibility"
	"skccspotter/logbook"
	"skccspotter/pipeline"
	"skccspotter/rbn"
	"skccspotter/roster"
)

const statusInterval = 60 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	callsign := flag.String("callsign", "", "override station callsign")
	rosterSnapshot := flag.String("roster", "", "override roster snapshot path (JSON)")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *callsign)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skccspotter: %v\n", err)
		os.Exit(1)
	}
	if *rosterSnapshot != "" {
		cfg.Storage.RosterSnapshot = *rosterSnapshot
	}

	fanout, err := setupLogging(cfg.Logging, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skccspotter: file logging disabled: %v\n", err)
	}
	log.SetOutput(fanout)
	log.SetFlags(0)
	defer fanout.Close()

	if err := run(cfg); err != nil {
		log.Printf("Fatal: %v", err)
		fanout.Close()
		os.Exit(1)
	}
}

// loadConfig reads the file when present; a missing file with a -callsign
// override still produces a working default setup.
func loadConfig(path, callsign string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && callsign != "" {
		cfg := config.DefaultConfig()
		cfg.Station.Callsign = strings.ToUpper(callsign)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if callsign != "" {
		cfg.Station.Callsign = strings.ToUpper(callsign)
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	log.Printf("Starting SKCC spot monitor as %s", cfg.Station.Callsign)

	logb, err := logbook.Open(cfg.Storage.LogbookPath)
	if err != nil {
		return err
	}
	defer logb.Close()

	store, err := roster.Open(cfg.Storage.RosterPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Storage.RosterSnapshot != "" {
		count, err := store.Count()
		if err != nil {
			return err
		}
		if count == 0 {
			imported, err := store.ImportSnapshot(cfg.Storage.RosterSnapshot)
			if err != nil {
				return fmt.Errorf("roster import: %w", err)
			}
			log.Printf("Imported %s roster members from %s",
				humanize.Comma(int64(imported)), cfg.Storage.RosterSnapshot)
		}
	}

	// The goal policy is rebuilt whenever award progress is recomputed; the
	// classifier reads it through this indirection so in-flight spots always
	// see a complete policy.
	var goalMu sync.RWMutex
	var goalPolicy roster.GoalPolicy
	classifier := roster.NewClassifier(nil, func(m roster.Member) roster.GoalTag {
		goalMu.RLock()
		p := goalPolicy
		goalMu.RUnlock()
		if p == nil {
			return roster.GoalNone
		}
		return p(m)
	})

	snapshot, err := store.Snapshot()
	if err != nil {
		return err
	}
	classifier.Reload(snapshot)
	log.Printf("Roster loaded: %s members", humanize.Comma(int64(classifier.Size())))

	refreshGoals := func() {
		summary, err := awards.Progress(logb, time.Time{})
		if err != nil {
			log.Printf("Award progress unavailable: %v", err)
			return
		}
		worked, err := logb.WorkedCallsigns()
		if err != nil {
			log.Printf("Worked set unavailable: %v", err)
			return
		}
		policy := awards.DefaultGoalPolicy(summary, worked)
		goalMu.Lock()
		goalPolicy = policy
		goalMu.Unlock()
		log.Printf("Award progress: Centurion %d/%d, Tx%d at %d/%d, Senator %d/%d",
			summary.Centurion.Current, summary.Centurion.Required,
			summary.TribuneLevel, summary.Tribune.Current, summary.Tribune.Required,
			summary.Senator.Current, summary.Senator.Required)
		if name, tier, ok := summary.NearestTier(); ok && tier.Remaining() <= 10 {
			targets := awards.CriticalMembers(summary, snapshot, worked, 8)
			if len(targets) > 0 {
				log.Printf("%d to go for %s, listen for: %s",
					tier.Remaining(), name, strings.Join(targets, " "))
			}
		}
	}
	refreshGoals()

	scorer := eligibility.NewScorer(eligibility.ScorerOptions{
		FetchWorked: func() (map[string]eligibility.WorkedStat, error) {
			stats, err := logb.ContactStats()
			if err != nil {
				return nil, err
			}
			worked := make(map[string]eligibility.WorkedStat, len(stats))
			for call, st := range stats {
				worked[call] = eligibility.WorkedStat{Count: st.Count, Last: st.Last}
			}
			return worked, nil
		},
		FetchProgress: func() (awards.Summary, error) {
			return awards.Progress(logb, time.Time{})
		},
		WorkedTTL:   cfg.Caches.WorkedTTL,
		ProgressTTL: cfg.Caches.ProgressTTL,
	})
	logb.OnChange(scorer.Invalidate)
	logb.OnChange(refreshGoals)

	ring := buffer.NewEventRing(cfg.Pipeline.RingSize)
	pipe := pipeline.New(pipeline.Options{
		Gate: dedup.NewGate(dedup.GateConfig{
			Cooldown:      cfg.Dedup.Cooldown,
			PruneHorizon:  cfg.Dedup.PruneHorizon,
			BustedCheck:   cfg.Dedup.BustedCheck,
			BustedFreqKHz: cfg.Dedup.BustedFreqKHz,
		}),
		Classifier:    classifier,
		Scorer:        scorer,
		Ring:          ring,
		QueueSize:     cfg.Pipeline.QueueSize,
		PruneInterval: cfg.Dedup.PruneInterval,
	})

	pipe.SubscribeSpots(func(ev eligibility.SpotEvent) {
		if ev.Level < eligibility.LevelMedium {
			return
		}
		printSpot(ev)
	})
	pipe.SubscribeState(func(s rbn.State) {
		log.Printf("RBN connection %s", s)
	})

	servers := make([]string, 0, len(cfg.RBN.Servers))
	for _, ep := range cfg.RBN.Servers {
		servers = append(servers, ep.Addr())
	}
	client := rbn.NewClient(rbn.Options{
		Callsign:       cfg.Station.Callsign,
		Servers:        servers,
		Commands:       cfg.RBN.Commands,
		DialTimeout:    cfg.RBN.DialTimeout,
		ReadTimeout:    cfg.RBN.ReadTimeout,
		HandshakeWait:  cfg.RBN.HandshakeWait,
		BackoffStep:    cfg.RBN.BackoffStep,
		BackoffCap:     cfg.RBN.BackoffCap,
		MaxRetries:     cfg.RBN.MaxRetries,
		StopJoinWindow: cfg.RBN.StopJoinWindow,
	})
	client.SetHandlers(pipe.HandleLine, pipe.HandleState)

	pipe.Start()
	client.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	status := time.NewTicker(statusInterval)
	defer status.Stop()

	for {
		select {
		case sig := <-sigCh:
			log.Printf("Received %v, shutting down", sig)
			client.Stop()
			pipe.Stop()
			return nil
		case <-status.C:
			logStatus(pipe.Stats(), client.State(), ring)
			refreshGoals()
		}
	}
}

func printSpot(ev eligibility.SpotEvent) {
	sp := ev.Spot
	member := ""
	if sp.IsMember {
		member = " SKCC " + sp.MemberNumber
	}
	speed := ""
	if sp.HasSpeed {
		speed = fmt.Sprintf(" %d WPM", sp.SpeedWPM)
	}
	log.Printf("[%s] %s%s on %.1f kHz (%s) %d dB%s by %s: %s",
		strings.ToUpper(ev.Level.String()), sp.Callsign, member,
		sp.FrequencyMHz*1000, sp.Band, sp.SignalDB, speed, sp.Reporter,
		strings.Join(ev.Reasons, "; "))
}

func logStatus(stats pipeline.Stats, state rbn.State, ring *buffer.EventRing) {
	last := ""
	if recent := ring.Recent(1); len(recent) > 0 {
		sp := recent[0].Spot
		last = fmt.Sprintf(", last %s on %.1f kHz", sp.Callsign, sp.FrequencyMHz*1000)
	}
	log.Printf("Status: %s lines, %s spots, %s emitted, %s dupes, %s busted, %s dropped, feed %s%s",
		humanize.Comma(int64(stats.Received)),
		humanize.Comma(int64(stats.Parsed)),
		humanize.Comma(int64(stats.Emitted)),
		humanize.Comma(int64(stats.Duplicates)),
		humanize.Comma(int64(stats.Busted)),
		humanize.Comma(int64(stats.Dropped)),
		state, last)
}
