package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"towerstats/models"
	"towerstats/pkg/runstore"
)

func main() {
	username := flag.String("username", "", "username to reset")
	password := flag.String("password", "", "new plaintext password (min 6 chars)")
	revoke := flag.Bool("revoke-tokens", true, "revoke the user's refresh tokens")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if *username == "" || *password == "" {
		logger.Fatal().Msg("--username and --password are required")
	}
	if len(*password) < 6 {
		logger.Fatal().Msg("password too short (min 6)")
	}
	// non-destructive: variables already set win
	_ = godotenv.Load()

	db, err := runstore.Open(os.Getenv("DB_DSN"))
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	var user models.User
	if err := db.Where("username = ?", *username).First(&user).Error; err != nil {
		logger.Fatal().Err(err).Str("user", *username).Msg("user not found")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal().Err(err).Msg("bcrypt")
	}
	if err := db.Model(&user).Update("hashed_password", hash).Error; err != nil {
		logger.Fatal().Err(err).Msg("update failed")
	}
	if *revoke {
		res := db.Model(&models.RefreshToken{}).Where("user_id = ? AND revoked = ?", user.ID, false).Update("revoked", true)
		if res.Error != nil {
			logger.Warn().Err(res.Error).Msg("failed to revoke refresh tokens")
		} else {
			logger.Info().Int64("tokens", res.RowsAffected).Msg("refresh tokens revoked")
		}
	}
	fmt.Printf("Password reset for user %s\n", user.Username)
}
