package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mubeen104/uips-attendance/internal/directory"
)

var employeesCmd = &cobra.Command{
	Use:   "employees",
	Short: "Manage the employee roster",
}

var employeesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active employees and their device user IDs",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		employees, err := provider.ListActiveEmployees(ctx)
		if err != nil {
			slog.Error("Failed to list employees", "error", err)
			os.Exit(1)
		}

		if len(employees) == 0 {
			fmt.Println("No active employees found")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tDEVICE USER ID")
		for _, e := range employees {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, e.FullName, e.Email, e.DeviceUserID)
		}
		w.Flush()
	},
}

var employeesImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import the employee roster from an HR export",
	Long:  `Import employees from a tab-separated CSV export. UTF-16 files with BOM are handled. Rows are matched on device user ID; existing employees are updated.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		importer := directory.NewImporter(provider)
		result, err := importer.ImportFile(ctx, args[0])
		if err != nil {
			slog.Error("Import failed", "file", args[0], "error", err)
			os.Exit(1)
		}

		fmt.Printf("Imported %d employees (%s format), skipped %d rows without a device user ID\n",
			result.Imported, result.Language, result.Skipped)
	},
}

func init() {
	employeesCmd.AddCommand(employeesListCmd)
	employeesCmd.AddCommand(employeesImportCmd)
	rootCmd.AddCommand(employeesCmd)
}
