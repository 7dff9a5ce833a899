// Package seed creates the default roles and users a fresh install needs.
package seed

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/adminkit/session-auth-service/internal/config"
	"github.com/adminkit/session-auth-service/internal/database"
	"github.com/adminkit/session-auth-service/internal/domain"
	"github.com/adminkit/session-auth-service/internal/repository"
	"github.com/adminkit/session-auth-service/internal/security"
)

type options struct {
	adminEmail     string
	adminPassword  string
	editorEmail    string
	editorPassword string
}

func NewCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create default roles and users",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			cfg, err := config.Load(logger)
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()
			return run(db, logger, opts)
		},
	}
	cmd.Flags().StringVar(&opts.adminEmail, "admin-email", "admin@example.com", "admin user email")
	cmd.Flags().StringVar(&opts.adminPassword, "admin-password", "admin123", "admin user password")
	cmd.Flags().StringVar(&opts.editorEmail, "editor-email", "editor@example.com", "editor user email")
	cmd.Flags().StringVar(&opts.editorPassword, "editor-password", "editor123", "editor user password")
	return cmd
}

// run is idempotent: existing roles and users are left untouched.
func run(db *gorm.DB, logger *slog.Logger, opts *options) error {
	roles := repository.NewRoleRepository(db)
	users := repository.NewUserRepository(db)

	admin, err := roles.FindOrCreateByName("Admin", "Full administrative access")
	if err != nil {
		return err
	}
	editor, err := roles.FindOrCreateByName("Editor", "Can manage content")
	if err != nil {
		return err
	}

	if err := ensureUser(users, "Admin User", opts.adminEmail, opts.adminPassword, admin.ID, logger); err != nil {
		return err
	}
	return ensureUser(users, "Editor User", opts.editorEmail, opts.editorPassword, editor.ID, logger)
}

func ensureUser(users repository.UserRepository, name, email, password string, roleID uint, logger *slog.Logger) error {
	_, err := users.FindByEmail(email)
	if err == nil {
		logger.Info("user already exists", "email", email)
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}
	if err := users.Create(&domain.User{
		Name:     name,
		Email:    email,
		Password: hash,
		IsActive: true,
		RoleID:   roleID,
	}); err != nil {
		return err
	}
	logger.Info("user created", "email", email)
	return nil
}
