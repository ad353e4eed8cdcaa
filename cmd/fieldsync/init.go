package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/salesbeat/fieldsync/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively create fieldsync.yaml",
	Long: `Create a fieldsync.yaml config file in the current directory.

Prompts for the backend URL, API key, and user ID. Everything else starts
from defaults and can be edited in the file afterwards.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runInit(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runInit() error {
	const path = "fieldsync.yaml"
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists; edit it directly or remove it first", path)
	}

	var backendURL, apiKey, userID string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Backend URL").
				Description("Base REST URL of the hosted backend").
				Placeholder("https://api.example.com/rest/v1").
				Value(&backendURL).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("backend URL is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("API key").
				Description("Service key sent with every request (leave empty for none)").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("User ID").
				Description("The field rep this device syncs for").
				Value(&userID).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("user ID is required")
					}
					return nil
				}),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("init cancelled: %w", err)
	}

	type backendYAML struct {
		URL    string `yaml:"url"`
		APIKey string `yaml:"api_key,omitempty"`
		UserID string `yaml:"user_id"`
	}
	cfg := struct {
		Backend backendYAML `yaml:"backend"`
	}{
		Backend: backendYAML{URL: backendURL, APIKey: apiKey, UserID: userID},
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	fmt.Printf("   Start the engine with: fieldsync daemon\n")
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}
