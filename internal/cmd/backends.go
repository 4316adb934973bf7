package cmd

import (
	"github.com/spf13/cobra"

	"github.com/inercia/comfyone/client"
)

var backendsCmd = &cobra.Command{
	Use:     "backends",
	Aliases: []string{"backend"},
	Short:   "Manage compute backends",
}

var backendsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered backends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) (*client.Response, error) {
			return c.ListBackends(cmd.Context())
		})
	},
}

var backendsGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Show one backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) (*client.Response, error) {
			return c.GetBackend(cmd.Context(), args[0])
		})
	},
}

var backendsRegisterCmd = &cobra.Command{
	Use:   "register INSTANCE_ID",
	Short: "Register a compute instance as a backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) (*client.Response, error) {
			return c.RegisterBackend(cmd.Context(), args[0])
		})
	},
}

var backendsDeleteCmd = &cobra.Command{
	Use:   "delete INSTANCE_ID",
	Short: "Remove a backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) (*client.Response, error) {
			return c.DeleteBackend(cmd.Context(), args[0])
		})
	},
}

var backendsUpCmd = &cobra.Command{
	Use:   "up NAME",
	Short: "Mark a backend up",
	Args:  cobra.ExactArgs(1),
	RunE:  setBackendState(client.BackendUp),
}

var backendsDownCmd = &cobra.Command{
	Use:   "down NAME",
	Short: "Mark a backend down",
	Args:  cobra.ExactArgs(1),
	RunE:  setBackendState(client.BackendDown),
}

func init() {
	rootCmd.AddCommand(backendsCmd)
	backendsCmd.AddCommand(backendsListCmd)
	backendsCmd.AddCommand(backendsGetCmd)
	backendsCmd.AddCommand(backendsRegisterCmd)
	backendsCmd.AddCommand(backendsDeleteCmd)
	backendsCmd.AddCommand(backendsUpCmd)
	backendsCmd.AddCommand(backendsDownCmd)
}

func setBackendState(state client.BackendState) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) (*client.Response, error) {
			return c.SetBackendState(cmd.Context(), args[0], state)
		})
	}
}

// withClient runs call with a fresh client and prints its response.
func withClient(cmd *cobra.Command, call func(*client.Client) (*client.Response, error)) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := call(c)
	if err != nil {
		return err
	}
	return finish(cmd.OutOrStdout(), resp)
}
