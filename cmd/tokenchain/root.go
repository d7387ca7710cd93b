package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tech-arch1tect/tokenchain"
	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/database"
	"github.com/tech-arch1tect/tokenchain/services/auth"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"golang.org/x/crypto/bcrypt"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tokenchain",
		Short:        "JWT authentication service with rotating refresh tokens",
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewCreateUserCmd())
	cmd.AddCommand(NewHashPasswordCmd())

	return cmd
}

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  `Start the HTTP API and the expired token sweeper. Configuration is read from the environment and an optional .env file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := tokenchain.New()
			if err != nil {
				return err
			}
			return app.Run()
		},
	}
}

func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the users and refresh_tokens tables",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Database.AutoMigrate = false

	logger, err := logging.NewService(logging.Config{
		Level:      logging.LogLevel(cfg.Log.Level),
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cmd.Println("Connecting to database...")
	db, err := database.ProvideDatabase(*cfg, nil, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	cmd.Println("Running migrations...")
	if err := database.Migrate(db); err != nil {
		return err
	}

	cmd.Println("Migrations completed successfully")
	return nil
}

func NewCreateUserCmd() *cobra.Command {
	var firstName, lastName, username string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user, reading the password from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}

			app, err := tokenchain.New(tokenchain.WithoutHTTP(), tokenchain.WithoutSweeper())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()

			user, err := app.Auth().CreateUser(ctx, firstName, lastName, username, password)
			if err != nil {
				return err
			}

			cmd.Printf("Created user %q with id %d\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func NewHashPasswordCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print the bcrypt hash of the password read from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}

			service, err := auth.NewService(&config.Config{Auth: config.AuthConfig{BcryptCost: cost}}, nil, nil, nil, nil, nil)
			if err != nil {
				return err
			}

			hash, err := service.HashPassword(password)
			if err != nil {
				return err
			}

			cmd.Println(hash)
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")

	return cmd
}

func readPassword(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, 1024))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	password := strings.TrimRight(string(data), "\r\n")
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return password, nil
}
