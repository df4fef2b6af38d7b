package admin

import (
	"bufio"
	"context"
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/bunbase/bunbase/internal/auth"
	"github.com/bunbase/bunbase/internal/db/bunx"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/bunbase/bunbase/internal/repository"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	passwordFlag string
	stdinFlag    bool
)

var createCmd = &cobra.Command{
	Use:   "create EMAIL",
	Short: "Create a new admin account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := strings.ToLower(args[0])
		if _, err := mail.ParseAddress(email); err != nil {
			return fmt.Errorf("invalid email format: %w", err)
		}

		password := passwordFlag
		if stdinFlag {
			// Read password from stdin
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("Enter password: ")
			if scanner.Scan() {
				password = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}
		if len(password) < 8 {
			return fmt.Errorf("password must be at least 8 characters (use --password or --stdin)")
		}

		db, err := bunx.NewDB(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer bunx.Close(db)

		ctx := context.Background()
		if err := bunx.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}

		now := models.NowUTC()
		adminRow := &models.Admin{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		admins := repository.NewBunAdminRepository(db)
		if err := admins.Create(ctx, adminRow); err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}

		fmt.Println("Admin created successfully!")
		fmt.Println("----------------------------------------")
		fmt.Printf("ID: %s\n", adminRow.ID)
		fmt.Printf("Email: %s\n", adminRow.Email)
		fmt.Println("----------------------------------------")
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&passwordFlag, "password", "", "Password for the new admin")
	createCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read the password from stdin")
}
