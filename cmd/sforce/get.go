package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var getFields string

var getCmd = &cobra.Command{
	Use:   "get <object-type> <id>",
	Short: "Fetch a raw record by id",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().StringVar(&getFields, "fields", "", "Comma-separated external field names to fetch")
}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := buildClient()
	if err != nil {
		return err
	}

	var fields []string
	if getFields != "" {
		fields = strings.Split(getFields, ",")
	}

	record, err := client.Get(cmd.Context(), args[0], args[1], fields)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
