package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/comfyone/internal/secrets"
)

var loginCmd = &cobra.Command{
	Use:   "login [API_KEY]",
	Short: "Store the API key in the system keychain",
	Long: `Store the ComfyOne API key in the system keychain so later commands
can use it without --api-key or COMFYONE_API_KEY.

When API_KEY is omitted it is read from the first line of standard input.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the API key from the system keychain",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	if !secretStore.IsSupported() {
		return fmt.Errorf("no keychain on this platform: set COMFYONE_API_KEY or api_key in the config file")
	}

	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		fmt.Fprint(cmd.ErrOrStderr(), "API key: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		key = line
	}
	key = strings.TrimSpace(key)

	if err := secrets.SaveAPIKey(secretStore, key); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "API key stored in keychain")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if !secretStore.IsSupported() {
		return fmt.Errorf("no keychain on this platform")
	}
	if err := secrets.DeleteAPIKey(secretStore); err != nil {
		return fmt.Errorf("failed to remove API key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "API key removed from keychain")
	return nil
}
