package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/yuresilva1/inss-study-hub/internal/config"
	"github.com/yuresilva1/inss-study-hub/internal/database"
	"github.com/yuresilva1/inss-study-hub/internal/logger"
	"github.com/yuresilva1/inss-study-hub/internal/model"
	"github.com/yuresilva1/inss-study-hub/internal/repository"
	"github.com/yuresilva1/inss-study-hub/internal/service"
)

// seedQuestion is one entry of the import file.
type seedQuestion struct {
	Subject     string            `json:"subject"`
	Statement   string            `json:"statement"`
	Options     map[string]string `json:"options"`
	Answer      string            `json:"answer"`
	Explanation string            `json:"explanation"`
}

func main() {
	var file string
	flag.StringVar(&file, "file", "questions.json", "JSON array of questions to import")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	raw, err := os.ReadFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to read seed file")
	}
	var entries []seedQuestion
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Fatal().Err(err).Msg("Failed to parse seed file")
	}

	db, err := repository.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer db.Close()

	fmt.Printf("=== Importing %d questions ===\n", len(entries))

	subjects := make(map[string]uuid.UUID)
	bySubject := make(map[uuid.UUID][]model.Question)
	skipped := 0
	for i, e := range entries {
		q, err := toQuestion(e)
		if err != nil {
			fmt.Printf("Skipping entry %d: %v\n", i+1, err)
			skipped++
			continue
		}

		id, ok := subjects[e.Subject]
		if !ok {
			id, err = db.Store.UpsertSubject(ctx, e.Subject)
			if err != nil {
				log.Fatal().Err(err).Str("subject", e.Subject).Msg("Failed to upsert subject")
			}
			subjects[e.Subject] = id
		}
		q.SubjectID = id
		bySubject[id] = append(bySubject[id], q)
	}

	imported := 0
	for name, id := range subjects {
		qs := bySubject[id]
		if err := db.Store.CreateQuestions(ctx, qs); err != nil {
			log.Fatal().Err(err).Str("subject", name).Msg("Failed to insert questions")
		}
		imported += len(qs)
		fmt.Printf("%-50s %d\n", name, len(qs))
	}

	if cfg.RedisEnabled {
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable; the subject catalog cache expires on its own")
		} else {
			defer rdb.Close()
			if err := service.NewSubjectService(db.Store, rdb, log).Invalidate(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to invalidate subject catalog")
			}
		}
	}

	fmt.Printf("\nSeed completed! Imported %d/%d questions in %d subjects (%d skipped).\n",
		imported, len(entries), len(subjects), skipped)
}

func toQuestion(e seedQuestion) (model.Question, error) {
	if e.Subject == "" || e.Statement == "" {
		return model.Question{}, fmt.Errorf("subject and statement are required")
	}
	answer, err := model.ParseOption(e.Answer)
	if err != nil {
		return model.Question{}, fmt.Errorf("answer %q: %w", e.Answer, err)
	}
	q := model.Question{
		Statement:     e.Statement,
		OptionA:       e.Options["A"],
		OptionB:       e.Options["B"],
		OptionC:       e.Options["C"],
		OptionD:       e.Options["D"],
		OptionE:       e.Options["E"],
		CorrectAnswer: answer,
		Explanation:   e.Explanation,
	}
	if q.OptionA == "" || q.OptionB == "" || q.OptionC == "" || q.OptionD == "" || q.OptionE == "" {
		return model.Question{}, fmt.Errorf("options A to E are required")
	}
	return q, nil
}
