// Command seed prepares a database: it runs the migrations, upserts the
// default roles and permissions and, when BOOTSTRAP_ADMIN_EMAIL and
// BOOTSTRAP_ADMIN_PASSWORD are set, creates the admin staff account.
// It is safe to run on every deploy.
package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"

	"github.com/trustcart/backoffice-auth/internal/config"
	"github.com/trustcart/backoffice-auth/internal/database"
	"github.com/trustcart/backoffice-auth/internal/utils"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := config.NewLogger(cfg.LogLevel).WithField("service", "backoffice-auth-seed")

	db, err := database.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("migration failed")
	}

	var admin *database.SeedAdmin
	if cfg.BootstrapEnabled() {
		hash, err := utils.NewPasswordHasher(cfg.BcryptCost).Hash(cfg.BootstrapAdminPassword)
		if err != nil {
			log.WithError(err).Fatal("hash admin password")
		}
		admin = &database.SeedAdmin{Email: cfg.BootstrapAdminEmail, PasswordHash: hash, RoleSlug: "super-admin"}
	}
	if err := database.Seed(ctx, db, admin); err != nil {
		log.WithError(err).Fatal("seed failed")
	}
	log.WithField("admin", admin != nil).Info("seed complete")
}
