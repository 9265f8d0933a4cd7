package cli

import (
	"fmt"

	"github.com/lazypower/questlog/internal/config"
	"github.com/lazypower/questlog/internal/engine"
	"github.com/lazypower/questlog/internal/journal"
	"github.com/lazypower/questlog/internal/llm"
	"github.com/lazypower/questlog/internal/logger"
	"github.com/lazypower/questlog/internal/notify"
	"github.com/lazypower/questlog/internal/store"
)

// app holds everything a command needs, built from config.
type app struct {
	cfg    config.Config
	log    *logger.Logger
	db     *store.DB
	svc    *journal.Service
	user   string
	dbPath string
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var analyzer engine.Analyzer
	client, err := llm.NewClient(cfg.LLM)
	switch {
	case err != nil:
		log.Warn("LLM not configured, entries without actions are recorded as text only", "error", err)
	case client == nil:
		log.Info("LLM disabled by config", "provider", cfg.LLM.Provider)
	default:
		analyzer = engine.NewLLMAnalyzer(client, log.With("component", "analyzer"))
		log.Debug("LLM configured", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	}

	eng := engine.New(analyzer, log.With("component", "engine"))
	eng.Merger.LearningRate = cfg.Engine.LearningRate
	eng.LevelThreshold = cfg.Engine.LevelThreshold
	if cfg.Engine.AnalyzeTimeout > 0 {
		eng.AnalyzeTimeout = cfg.Engine.AnalyzeTimeout
	}

	svc := journal.NewService(db, eng, notifiers(cfg.Notify), log.With("component", "journal"))

	return &app{cfg: cfg, log: log, db: db, svc: svc, user: flags.user, dbPath: dbPath}, nil
}

// notifiers builds the configured downstream collaborators, or nil.
func notifiers(cfg config.NotifyConfig) notify.Notifier {
	var m notify.Multi
	if cfg.WebhookURL != "" {
		m = append(m, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout))
	}
	if cfg.ObsidianVault != "" {
		m = append(m, notify.NewObsidian(cfg.ObsidianVault, cfg.ObsidianFolder))
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func (a *app) userID() string {
	if a.user == "" {
		return journal.DefaultUser
	}
	return a.user
}

func (a *app) Close() {
	a.db.Close()
	a.log.Sync()
}
