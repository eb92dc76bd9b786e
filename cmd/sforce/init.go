package main

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a sforce.yml configuration file",
	Long:  "Interactively collect connected-app credentials and write sforce.yml in the current directory",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing sforce.yml")
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat("sforce.yml"); err == nil && !initForce {
		return fmt.Errorf("sforce.yml already exists (use --force to overwrite)")
	}

	answers := struct {
		LoginURL   string
		ClientID   string
		Username   string
		PrivateKey string
		RedisAddr  string
	}{}

	questions := []*survey.Question{
		{
			Name: "loginURL",
			Prompt: &survey.Select{
				Message: "Login host:",
				Options: []string{"https://login.salesforce.com", "https://test.salesforce.com"},
				Default: "https://login.salesforce.com",
			},
		},
		{
			Name:     "clientID",
			Prompt:   &survey.Input{Message: "Connected app client id (consumer key):"},
			Validate: survey.Required,
		},
		{
			Name:     "username",
			Prompt:   &survey.Input{Message: "Integration username:"},
			Validate: survey.Required,
		},
		{
			Name:     "privateKey",
			Prompt:   &survey.Input{Message: "Path to RSA private key (PEM):", Default: "sforce.key"},
			Validate: survey.Required,
		},
		{
			Name:   "redisAddr",
			Prompt: &survey.Input{Message: "Redis address for shared tokens (empty to skip):"},
		},
	}
	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	cfg := map[string]interface{}{
		"login_url":   answers.LoginURL,
		"api_version": "59.0",
		"auth": map[string]interface{}{
			"client_id":   answers.ClientID,
			"username":    answers.Username,
			"private_key": answers.PrivateKey,
		},
	}
	if answers.RedisAddr != "" {
		cfg["redis"] = map[string]interface{}{
			"addr": answers.RedisAddr,
			"key":  "sforce:token",
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile("sforce.yml", data, 0o600); err != nil {
		return fmt.Errorf("failed to write sforce.yml: %w", err)
	}

	color.New(color.FgGreen, color.Bold).Println("✓ Wrote sforce.yml")
	fmt.Println("Run 'sforce login' to verify the credentials.")
	return nil
}
