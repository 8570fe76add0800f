package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/yuresilva1/inss-study-hub/internal/cache"
	"github.com/yuresilva1/inss-study-hub/internal/config"
	"github.com/yuresilva1/inss-study-hub/internal/database"
	"github.com/yuresilva1/inss-study-hub/internal/engine"
	"github.com/yuresilva1/inss-study-hub/internal/logger"
	"github.com/yuresilva1/inss-study-hub/internal/repository"
)

// finalize closes out abandoned exams from the command line: one exam with
// -exam, or every exam whose time ran out with -stale.
func main() {
	var (
		examFlag string
		stale    bool
		yes      bool
	)
	flag.StringVar(&examFlag, "exam", "", "Exam id to finalize")
	flag.BoolVar(&stale, "stale", false, "Finalize every in-progress exam past its time limit")
	flag.BoolVar(&yes, "yes", false, "Do not ask for confirmation")
	flag.Parse()

	if (examFlag == "") == !stale {
		fmt.Fprintln(os.Stderr, "Usage: finalize (-exam <id> | -stale) [-yes]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := repository.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer db.Close()

	opts := engine.Options{Logger: &log}
	if cfg.RedisEnabled {
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		opts.Lock = cache.NewFinalizeLock(rdb, cfg.FinalizeLockTTL)
		if cfg.PersistMode == config.PersistRedis {
			opts.Sink = cache.NewSlotQueue(rdb, db.Store)
		}
	}

	var ids []uuid.UUID
	if stale {
		ids, err = db.Store.ListStaleExams(ctx, time.Now().Add(-cfg.ReconcileGrace), 1000)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list stale exams")
		}
	} else {
		id, err := uuid.Parse(examFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid exam id")
		}
		ids = []uuid.UUID{id}
	}

	if len(ids) == 0 {
		fmt.Println("Nothing to finalize.")
		return
	}
	if !yes && !confirm(fmt.Sprintf("Finalize %d exam(s)?", len(ids))) {
		fmt.Println("Aborted.")
		return
	}

	failed := 0
	for _, id := range ids {
		if opts.Sink != nil {
			if err := opts.Sink.Flush(ctx, id); err != nil {
				log.Warn().Err(err).Str("exam_id", id.String()).Msg("Flush failed")
			}
		}
		res, err := engine.Replay(ctx, db.Store, id, opts)
		if err != nil {
			failed++
			fmt.Printf("%s  error: %v\n", id, err)
			continue
		}
		fmt.Printf("%s  %d/%d correct, score %.1f\n", id, res.TotalCorrect, res.TotalQuestions, res.Score)
	}

	if failed > 0 {
		fmt.Printf("\n%d of %d exam(s) failed.\n", failed, len(ids))
		os.Exit(1)
	}
}

// confirm asks a yes/no question. Without a terminal there is nobody to
// answer, so it refuses.
func confirm(question string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "stdin is not a terminal; pass -yes to confirm")
		return false
	}
	fmt.Printf("%s [y/N] ", question)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes" || answer == "s" || answer == "sim"
}
