// Command issue-token mints a bearer token for an existing user.
//
//	go run ./cmd/issue-token -user 1
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	httpserver "github.com/garyjia/expense-approval/internal/interfaces/http"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/garyjia/expense-approval/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	userID := flag.Int64("user", 0, "id of the user to issue a token for")
	flag.Parse()

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "usage: issue-token -user <id> [-config path]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewNopLogger()

	conn, err := database.New(cfg.ToDatabaseConfig(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	users := repository.NewUserRepository(sqlite.NewDB(conn.DB, logger), logger)
	user, err := users.GetByID(context.Background(), *userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to look up user: %v\n", err)
		os.Exit(1)
	}
	if user == nil {
		fmt.Fprintf(os.Stderr, "User %d not found\n", *userID)
		os.Exit(1)
	}

	tokens := httpserver.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	token, err := tokens.Issue(user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Token for %s (%s, company %d), valid %s\n",
		user.Email, user.Role, user.CompanyID, cfg.Auth.TokenTTL)
	fmt.Println(token)
}
