package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jo-hoe/snapframe/internal/core"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapframe",
		Short: "Capture, frame and publish kiosk photos from the command line",
		Long: `snapframe drives the kiosk pipeline without a browser.

It composes a still image into the branded portrait frame, publishes it to the
configured stores and prints the retrieval code guests scan to fetch it.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env.local if present (ignore errors)
			_ = godotenv.Load(core.DefaultEnvFile)
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("config", "", "path to config.yaml (defaults to $CONFIG_PATH or ./config.yaml)")

	cmd.AddCommand(newShootCmd())
	cmd.AddCommand(newCheckCmd())

	return cmd
}

func resolveConfigPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, "config.yaml"), nil
}

// openService loads the config and credentials and builds the core service.
// A missing config file falls back to the defaults.
func openService(cmd *cobra.Command) (*core.CoreService, error) {
	path, err := resolveConfigPath(cmd)
	if err != nil {
		return nil, err
	}
	config, err := core.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		defaults := core.DefaultServiceConfig()
		config = &defaults
	} else if err != nil {
		return nil, err
	}

	creds, err := core.LoadCredentials()
	if err != nil {
		if core.CredentialErrorCode(err) == core.CodeLoadError {
			return nil, err
		}
		creds = nil
	}
	service, err := core.NewCoreService(cmd.Context(), config, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapframe: %w", err)
	}
	return service, nil
}
