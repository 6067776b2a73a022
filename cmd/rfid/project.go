package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/rfi-tracker/internal/services"
	"github.com/tbourn/rfi-tracker/internal/sysutil"
)

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Seed and remove projects and their participants",
	}
	cmd.AddCommand(projectCreateCmd())
	cmd.AddCommand(projectAddMemberCmd())
	cmd.AddCommand(projectDeleteCmd())
	return cmd
}

// withProjects runs fn against a ProjectService over the configured database.
func withProjects(cmd *cobra.Command, fn func(*services.ProjectService) error) error {
	cfg, _, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	db, closeDB, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	return fn(services.NewProjectService(db))
}

func projectCreateCmd() *cobra.Command {
	var code, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project; its code prefixes every RFI number",
		Example: `  rfid project create --code HQ --name "Headquarters fit-out"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withProjects(cmd, func(svc *services.ProjectService) error {
				p, err := svc.Create(cmd.Context(), code, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created project %s %s\n", p.Code, p.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "project code, 1-16 letters or digits")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectAddMemberCmd() *cobra.Command {
	var project, userID, email, name string
	cmd := &cobra.Command{
		Use:   "add-member",
		Short: "Register a participant whose replies are attributed to them",
		Example: `  rfid project add-member --project HQ --user-id u-17 --email architect@example.com --name "A. Architect"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withProjects(cmd, func(svc *services.ProjectService) error {
				m, err := svc.AddMember(cmd.Context(), project, userID, email, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s to %s as %s\n", m.Email, project, m.UserID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project code")
	cmd.Flags().StringVar(&userID, "user-id", "", "participant user id")
	cmd.Flags().StringVar(&email, "email", "", "participant email address")
	cmd.Flags().StringVar(&name, "name", "", "participant display name")
	for _, f := range []string{"project", "user-id", "email"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	var code string
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project with its members, RFIs, responses and email log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !sysutil.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete project %s and all its RFIs?", code)) {
				return errors.New("aborted")
			}
			return withProjects(cmd, func(svc *services.ProjectService) error {
				if err := svc.Delete(cmd.Context(), code); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted project %s\n", code)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "project code")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}
