package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Metabor/salesforce-orm/internal/cli/config"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and print the issued session",
	Long:  "Run the JWT bearer flow with the configured credentials and report the instance the session was issued for",
	RunE:  runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	provider, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	token, err := provider.Token(cmd.Context())
	if err != nil {
		return err
	}

	color.New(color.FgGreen, color.Bold).Println("✓ Authenticated")
	fmt.Printf("Instance: %s\n", token.InstanceURL)
	fmt.Printf("Issued at: %s\n", token.IssuedAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}
