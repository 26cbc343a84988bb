package app

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"opinionbot/internal/config"
	"opinionbot/internal/diagnosis"
	"opinionbot/internal/export"
	"opinionbot/internal/httpx"
	"opinionbot/internal/integrations/llm"
	slackbot "opinionbot/internal/integrations/slack"
	"opinionbot/internal/session"
	"opinionbot/internal/storage/sqlite"
	"opinionbot/internal/trend"

	"github.com/slack-go/slack"
)

func Main() {
	cfg := config.LoadConfig()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	model := cfg.LLMModel
	if model == "" {
		model = llm.DefaultModel(cfg.LLMProvider)
	}
	log.Printf(
		"Config loaded. Provider=%s Model=%s Genres=%d ReferencePoints=%d MaxInput=%d MaxSessions=%d SessionTTL=%s Timezone=%s ExternalHTTPTimeout=%s",
		cfg.LLMProvider,
		model,
		len(cfg.Genres),
		len(cfg.ReferencePoints),
		cfg.MaxInputLength,
		cfg.MaxSessions,
		cfg.SessionTTL(),
		cfg.Timezone,
		appliedHTTPTimeout,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)
	defer db.Close()

	completer, err := llm.NewCompleter(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to init LLM provider: %v", err)
	}

	mgr, err := session.NewManager(db, completer, session.Options{
		Model:       model,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Prompt: diagnosis.PromptOptions{
			MaxInputLength:   cfg.MaxInputLength,
			CommentLength:    cfg.CommentLength,
			NegativePole:     cfg.NegativePole,
			PositivePole:     cfg.PositivePole,
			ResponseLanguage: cfg.ResponseLanguage,
		},
		DefaultGenre: cfg.DefaultGenre(),
		References:   cfg.ReferencePoints,
		Thresholds: trend.Thresholds{
			Bias:   cfg.TrendBiasThreshold,
			Mild:   cfg.TrendMildBelow,
			Strong: cfg.TrendStrongAbove,
		},
		Export: export.Options{
			Delimiter: cfg.ExportDelimiterRune(),
			UTF8BOM:   cfg.ExportUTF8BOM,
		},
		MaxSessions: cfg.MaxSessions,
		TTL:         cfg.SessionTTL(),
	})
	if err != nil {
		log.Fatalf("Failed to init sessions: %v", err)
	}

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
	)

	session.StartSweepScheduler(ctx, mgr, cfg.SessionSweepSchedule, cfg.Location)

	log.Println("Starting Opinion Diagnosis Bot...")
	if err := slackbot.StartSlackBot(ctx, cfg, mgr, api); err != nil && ctx.Err() == nil {
		log.Fatalf("Slack bot error: %v", err)
	}
	log.Println("Shutting down")
}
