package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"towerstats/models"
	"towerstats/pkg/runs"
	"towerstats/pkg/runstore"
)

func main() {
	runType := flag.String("run-type", "farming", "preferred run type stored in the profile")
	screenDir := flag.String("screen-dir", "", "screenshot folder stored in the profile")
	flag.Parse()
	if flag.NArg() < 2 {
		fmt.Println("usage: go run ./cmd/create_user [--run-type farming] [--screen-dir DIR] <username> <password>")
		os.Exit(2)
	}
	username := flag.Arg(0)
	password := flag.Arg(1)

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	_ = godotenv.Load()
	db, err := runstore.Open(os.Getenv("DB_DSN"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open db")
	}

	// ensure roles exist
	role := models.Role{Name: models.RoleUser, Description: "regular user"}
	if err := db.Where("name = ?", role.Name).FirstOrCreate(&role).Error; err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure user role")
	}

	// check existing
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		fmt.Printf("user %s already exists (id=%d)\n", username, existing.ID)
		os.Exit(0)
	}

	hpw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal().Err(err).Msg("bcrypt failed")
	}
	rid := role.ID
	user := models.User{Username: username, HashedPassword: hpw, RoleID: &rid}
	if err := db.Create(&user).Error; err != nil {
		logger.Fatal().Err(err).Msg("failed to create user")
	}
	prof := models.Profile{
		UserID:           user.ID,
		Name:             username,
		PreferredRunType: string(runs.ParseRunType(*runType)),
		ScreenDir:        *screenDir,
	}
	if err := db.Create(&prof).Error; err != nil {
		logger.Warn().Err(err).Msg("failed to create profile")
	}
	fmt.Printf("created user %s id=%d\n", username, user.ID)
}
