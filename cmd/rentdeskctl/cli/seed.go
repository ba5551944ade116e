package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rentdesk/rentdesk/internal/platform/db"
	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/users"
)

func seedAdminCmd(e *env) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the first administrator",
		Long:  "Create an administrator profile. The password is read from RENTDESK_ADMIN_PASSWORD.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password := os.Getenv("RENTDESK_ADMIN_PASSWORD")
			if password == "" {
				return errors.New("RENTDESK_ADMIN_PASSWORD must be set")
			}
			pool, err := db.New(cmd.Context(), e.cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := users.NewService(users.NewRepository(pool), shared.NewActivityLogger(pool, nil, e.logger))
			u, err := svc.Create(cmd.Context(), users.CreateInput{
				Email:    email,
				FullName: name,
				Role:     rbac.RoleAdmin,
				Password: password,
			})
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (id %d)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "administrator email")
	cmd.Flags().StringVar(&name, "name", "Administrateur", "administrator full name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
