package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Metabor/salesforce-orm/internal/cli/ui"
)

var describeCmd = &cobra.Command{
	Use:   "describe <object-type>",
	Short: "Show the org's field metadata for an object type",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

func runDescribe(cmd *cobra.Command, args []string) error {
	client, err := buildClient()
	if err != nil {
		return err
	}

	describe, err := client.Describe(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	title := fmt.Sprintf("%s (%s)", describe.Name, describe.Label)
	if describe.Custom {
		title += " [custom]"
	}
	ui.Header(os.Stdout, title)

	table := ui.NewTable(os.Stdout, "FIELD", "TYPE", "FLAGS")
	for _, field := range describe.Fields {
		var flags []string
		if !field.Nillable {
			flags = append(flags, "required")
		}
		if !field.Updateable {
			flags = append(flags, "read-only")
		}
		table.AddRow(field.Name, field.Type, strings.Join(flags, " "))
	}
	table.Render()

	fmt.Printf("\n%d fields\n", len(describe.Fields))
	return nil
}
