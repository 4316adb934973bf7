package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inercia/comfyone/client"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Upload inputs and download outputs",
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload PATH",
	Short: "Upload a local file",
	Long: `Upload a local file as a multipart form. The response data usually holds
the name to reference from a prompt input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) (*client.Response, error) {
			return c.UploadFile(cmd.Context(), args[0])
		})
	},
}

var downloadOutput string

var filesDownloadCmd = &cobra.Command{
	Use:   "download URL",
	Short: "Download an output file",
	Long: `Download an output file. Without --output the file is saved under the
download directory using the last segment of the URL as its name.`,
	Args: cobra.ExactArgs(1),
	RunE: runFilesDownload,
}

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.AddCommand(filesUploadCmd)
	filesCmd.AddCommand(filesDownloadCmd)

	filesDownloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "Destination path")
}

func runFilesDownload(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	path, err := c.Download(cmd.Context(), args[0], downloadOutput)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
