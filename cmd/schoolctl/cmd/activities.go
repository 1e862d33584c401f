package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"example.com/mergington/internal/config"
	"example.com/mergington/internal/domain"
)

var showRoster bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List activities with their remaining spots",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var signupCmd = &cobra.Command{
	Use:   "signup <activity> <email>",
	Short: "Register a student for an activity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(service *domain.Service, _ config.Config) error {
			if err := service.Signup(cmd.Context(), args[0], args[1]); err != nil {
				printError("signup", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed up %s for %s\n", args[1], args[0])
			return nil
		})
	},
}

var unregisterCmd = &cobra.Command{
	Use:   "unregister <activity> <email>",
	Short: "Remove a student from an activity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(service *domain.Service, _ config.Config) error {
			if err := service.Unregister(cmd.Context(), args[0], args[1]); err != nil {
				printError("unregister", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unregistered %s from %s\n", args[1], args[0])
			return nil
		})
	},
}

func init() {
	listCmd.Flags().BoolVar(&showRoster, "roster", false, "print participant emails")
	rootCmd.AddCommand(listCmd, signupCmd, unregisterCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withService(cmd.Context(), func(service *domain.Service, _ config.Config) error {
		activities, err := service.ListActivities(cmd.Context())
		if err != nil {
			printError("list activities", err)
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSCHEDULE\tENROLLED\tSPOTS LEFT")
		for _, a := range activities {
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\n", a.Name, a.Schedule, a.Participants.Len(), a.MaxParticipants, a.SpotsLeft())
			if showRoster && a.Participants.Len() > 0 {
				fmt.Fprintf(w, "\t%s\t\t\n", strings.Join(a.Participants.Emails(), ", "))
			}
		}
		return w.Flush()
	})
}
