package config

import (
	"path"
	"time"

	"github.com/eskrenkovic/code-duel-go/internal/modules/env"

	"go.uber.org/zap"
)

const (
	PortEnv        = "PORT"
	DatabaseUrlEnv = "DATABASE_URL"
	RootPathEnv    = "ROOT_PATH"

	JudgeUrlEnv         = "JUDGE_URL"
	GameDurationMsEnv   = "GAME_DURATION_MS"
	RequiredLevelsEnv   = "REQUIRED_LEVELS"
	InviteTTLMsEnv      = "INVITE_TTL_MS"
	ReadyGraceMsEnv     = "READY_GRACE_MS"
	FinalizeSettleMsEnv = "FINALIZE_SETTLE_MS"
)

type GameConfiguration struct {
	// Duration is the shared countdown for a single duel.
	Duration time.Duration

	// RequiredLevels is the completed-task count that wins a duel outright.
	RequiredLevels int

	// InviteTTL is how long a pending invite survives before expiry.
	InviteTTL time.Duration

	// ReadyGrace is the cosmetic delay between both players readying up
	// and the countdown starting.
	ReadyGrace time.Duration

	// FinalizeSettle is the pause between the final progress snapshot and
	// the end-of-game broadcast. Client-side animation contract.
	FinalizeSettle time.Duration
}

type Config struct {
	Logger *zap.Logger

	Port           int
	DatabaseURL    string
	MigrationsPath string

	JudgeURL string

	Game GameConfiguration
}

func Load() (Config, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return Config{}, err
	}

	port := env.MustGetInt(PortEnv)
	dbURL := env.MustGetString(DatabaseUrlEnv)

	rootPath := env.MustGetString(RootPathEnv)
	migrationsPath := path.Join(rootPath, "db", "migrations")

	judgeURL := env.MustGetURL(JudgeUrlEnv)

	game := GameConfiguration{
		Duration:       time.Duration(env.GetIntOrDefault(GameDurationMsEnv, 600_000)) * time.Millisecond,
		RequiredLevels: env.GetIntOrDefault(RequiredLevelsEnv, 2),
		InviteTTL:      time.Duration(env.GetIntOrDefault(InviteTTLMsEnv, 30_000)) * time.Millisecond,
		ReadyGrace:     time.Duration(env.GetIntOrDefault(ReadyGraceMsEnv, 3_000)) * time.Millisecond,
		FinalizeSettle: time.Duration(env.GetIntOrDefault(FinalizeSettleMsEnv, 1_200)) * time.Millisecond,
	}

	return Config{
		Logger:         logger,
		Port:           port,
		DatabaseURL:    dbURL,
		MigrationsPath: migrationsPath,
		JudgeURL:       judgeURL.String(),
		Game:           game,
	}, nil
}
