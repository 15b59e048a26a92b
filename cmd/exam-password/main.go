package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// Sets or clears the access password of an exam. An empty password removes
// the requirement. The cached definition is dropped so takers see the change
// on their next request.
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	examRepo := repository.NewExamRepository(pool)
	cache := repository.NewCachedExamRepository(examRepo, rdb, cfg.ExamCacheTTL, log)
	authService := service.NewAuthService(cfg)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Set Exam Access Password ===")

	fmt.Print("Enter Exam ID: ")
	rawID, _ := reader.ReadString('\n')
	examID, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		fmt.Println("Error: Exam ID must be a UUID")
		os.Exit(1)
	}

	exam, err := examRepo.GetByID(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		fmt.Println("Error: Exam not found")
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load exam")
	}
	fmt.Printf("Exam: %s\n", exam.Title)

	fmt.Print("Enter Password (empty to remove): ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		os.Exit(1)
	}
	password := string(bytePassword)

	var hash string
	if password != "" {
		if len(password) < 4 {
			fmt.Println("Error: Password must be at least 4 characters")
			os.Exit(1)
		}
		hash, err = authService.HashPassword(password)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash password")
		}
	}

	if err := examRepo.SetAccessPasswordHash(ctx, examID, hash); err != nil {
		log.Fatal().Err(err).Msg("Failed to store password")
	}
	if err := cache.Invalidate(ctx, examID); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate cached exam; it expires with the cache TTL")
	}

	if hash == "" {
		fmt.Println("Access password removed")
		return
	}
	fmt.Println("Access password updated")
}
