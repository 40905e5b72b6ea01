package main

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"towerstats/models"
	"towerstats/pkg/runstore"
)

var db *gorm.DB

func initDB() {
	var err error
	db, err = runstore.Open(cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres database")
	}
	// Ensure the roles master table exists first and seed it so users FK can be applied safely.
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&models.Role{}); err != nil {
			logger.Warn().Err(err).Msg("migration warning (roles)")
		}
	}
	seedRoles()

	// Migrate models individually so a failure on one doesn't block others
	if cfg.AutoMigrate {
		for _, m := range []struct {
			table string
			model any
		}{
			{"users", &models.User{}},
			{"profiles", &models.Profile{}},
			{"refresh_tokens", &models.RefreshToken{}},
		} {
			if err := db.AutoMigrate(m.model); err != nil {
				logger.Warn().Err(err).Str("table", m.table).Msg("migration warning")
			}
		}
		if err := runstore.New(db, logger).Migrate(); err != nil {
			logger.Warn().Err(err).Str("table", "runs").Msg("migration warning")
		}
		if err := ensureRunIndexes(); err != nil {
			logger.Warn().Err(err).Msg("ensuring run indexes failed")
		}
	}
	seedDB()
}

// ensureRunIndexes adds indexes AutoMigrate cannot express.
func ensureRunIndexes() error {
	// jsonb containment lookups on stored statistics
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_stats ON runs USING gin (stats)`).Error; err != nil {
		return err
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_user_farming ON runs (user_id, tier) WHERE run_type = 'farming'`).Error
}

func seedRoles() {
	for _, r := range models.MasterRoles() {
		var cnt int64
		db.Model(&models.Role{}).Where("name = ?", r.Name).Count(&cnt)
		if cnt == 0 {
			db.Create(&r)
		}
	}
}

func seedDB() {
	seedRoles()

	// Check if admin user exists
	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		var role models.Role
		if err := db.Where("name = ?", models.RoleAdministrator).First(&role).Error; err != nil {
			logger.Error().Err(err).Msg("failed to find administrator role")
		}
		rid := role.ID
		admin := models.User{
			Username: "admin",
			RoleID:   &rid,
		}
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		admin.HashedPassword = hashedPassword
		db.Create(&admin)
		logger.Info().Msg("Seeded admin user: username=admin, password=admin123")
	}
	// Ensure admin has a one-to-one profile
	var admin models.User
	if err := db.Where("username = ?", "admin").First(&admin).Error; err != nil {
		logger.Error().Err(err).Msg("failed to find admin user after seeding")
		return
	}
	var pcount int64
	db.Model(&models.Profile{}).Where("user_id = ?", admin.ID).Count(&pcount)
	if pcount == 0 {
		profile := models.Profile{UserID: admin.ID, Name: "Administrator", Email: "admin@example.com"}
		if err := db.Create(&profile).Error; err != nil {
			logger.Error().Err(err).Msg("failed to create profile for admin")
		} else {
			logger.Info().Uint("user_id", admin.ID).Msg("Seeded admin profile")
		}
	}
}
