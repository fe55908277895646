package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/database"
	"github.com/edukit/examgate-backend/internal/logger"
	"github.com/edukit/examgate-backend/internal/model"
	"github.com/edukit/examgate-backend/internal/repository"
)

// seed-users creates or refreshes local accounts for development and testing.
// Production identities come from the external user service.
func main() {
	var (
		username = flag.String("username", "", "username to create")
		password = flag.String("password", "", "plaintext password (will be hashed)")
		role     = flag.String("role", "student", "role: admin, teacher, or student")
	)
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if *username == "" || *password == "" {
		log.Fatal().Msg("both -username and -password are required")
	}

	userRole := model.Role(strings.ToLower(*role))
	switch userRole {
	case model.RoleAdmin, model.RoleTeacher, model.RoleStudent:
	default:
		log.Fatal().Str("role", *role).Msg("unknown role")
	}

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Password hash failed")
	}

	user := &model.User{
		Username:     *username,
		PasswordHash: string(hash),
		Role:         userRole,
	}
	if err := repository.NewUserRepository(pool).Upsert(ctx, user); err != nil {
		log.Fatal().Err(err).Msg("User upsert failed")
	}

	fmt.Printf("user %q (%s) ready, id=%d\n", user.Username, user.Role, user.ID)
}
