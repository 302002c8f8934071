package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errtrack/internal/auth"
	"github.com/kiranshivaraju/errtrack/internal/config"
	"github.com/kiranshivaraju/errtrack/internal/store"
	"github.com/kiranshivaraju/errtrack/pkg/models"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// loadAdminConfig loads configuration for commands that operate on the
// persistent database.
func loadAdminConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return nil, fmt.Errorf("this command requires DATABASE_DRIVER=%s", config.DriverPostgres)
	}
	return cfg, nil
}

// withStore runs fn against a Postgres store opened from the environment.
func withStore(ctx context.Context, fn func(*config.Config, store.Store) error) error {
	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	s, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(cfg, s)
}

// --- migrate ---

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAdminConfig()
			if err != nil {
				return err
			}
			if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive")
			}
			cfg, err := loadAdminConfig()
			if err != nil {
				return err
			}
			if err := store.RollbackMigrations(cfg.Database.URL, cfg.Database.MigrationsDir, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reverted %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")
	cmd.AddCommand(down)

	return cmd
}

// --- user ---

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard users",
	}

	var email, name, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a dashboard user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := newUser(email, name, role)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(_ *config.Config, s store.Store) error {
				if err := s.CreateUser(cmd.Context(), user); err != nil {
					return fmt.Errorf("create user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user created\n  id:    %s\n  email: %s\n  role:  %s\n", user.ID, user.Email, user.Role)
				return nil
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "email address (required)")
	create.Flags().StringVar(&name, "name", "", "display name (required)")
	create.Flags().StringVar(&role, "role", string(models.RoleUser), "role: user or admin")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)

	return cmd
}

func newUser(email, name, role string) (*models.User, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid --email is required")
	}
	if name == "" {
		return nil, fmt.Errorf("--name is required")
	}
	r := models.Role(strings.ToLower(role))
	if !r.Valid() {
		return nil, fmt.Errorf("--role must be user or admin, got %q", role)
	}
	return &models.User{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		Role:      r,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// --- project ---

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	var name, description, owner string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a project and print its API key",
		Long: `Create a project owned by an existing user. The API key is printed
once; only its hash is stored.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("--owner must be a user id: %w", err)
			}
			project, key, err := newProject(name, description, ownerID, bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(_ *config.Config, s store.Store) error {
				if err := s.CreateProject(cmd.Context(), project); err != nil {
					return fmt.Errorf("create project: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "project created\n  id:      %s\n  name:    %s\n  api key: %s\n\nStore the API key now; it cannot be shown again.\n",
					project.ID, project.Name, key.Raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "project name (required)")
	create.Flags().StringVar(&description, "description", "", "project description")
	create.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("owner")
	cmd.AddCommand(create)

	return cmd
}

func newProject(name, description string, ownerID uuid.UUID, cost int) (*models.Project, *auth.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, fmt.Errorf("--name is required")
	}
	key, err := auth.GenerateAPIKey(cost)
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	return &models.Project{
		ID:           uuid.New(),
		Name:         name,
		Description:  strings.TrimSpace(description),
		OwnerID:      ownerID,
		APIKeyPrefix: key.Prefix,
		APIKeyHash:   key.Hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, key, nil
}

// --- token ---

func newTokenCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a dashboard access token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("--user must be a user id: %w", err)
			}
			return withStore(cmd.Context(), func(cfg *config.Config, s store.Store) error {
				user, err := s.GetUser(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("get user: %w", err)
				}
				tokens := auth.NewJWTService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, cfg.Auth.Issuer)
				token, err := tokens.GenerateToken(user)
				if err != nil {
					return fmt.Errorf("issue token: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// --- version ---

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "errtrack %s (%s)\n", version, commit)
		},
	}
}
