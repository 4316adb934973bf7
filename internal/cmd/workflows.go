package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/inercia/comfyone/client"
	"github.com/inercia/comfyone/internal/fileutil"
	"github.com/inercia/comfyone/internal/hooks"
	"github.com/inercia/comfyone/internal/logging"
	"github.com/inercia/comfyone/internal/watch"
)

var workflowsCmd = &cobra.Command{
	Use:     "workflows",
	Aliases: []string{"workflow", "wf"},
	Short:   "Manage workflows",
	Long: `Manage workflows stored on the service.

Workflow files are JSON or YAML documents with the workflow fields:

  name: "txt2img"
  description: "SDXL text to image"
  inputs:
    - {id: "5", type: number, name: width}
    - {id: "5", type: number, name: height}
  outputs: ["9"]
  workflow: { ... exported ComfyUI graph ... }`,
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) (*client.Response, error) {
			return c.ListWorkflows(cmd.Context())
		})
	},
}

var workflowsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) (*client.Response, error) {
			return c.GetWorkflow(cmd.Context(), args[0])
		})
	},
}

var workflowsCreateCmd = &cobra.Command{
	Use:   "create FILE",
	Short: "Create a workflow from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload client.WorkflowPayload
		if err := fileutil.ReadPayload(args[0], &payload); err != nil {
			return err
		}
		return withClient(cmd, func(c *client.Client) (*client.Response, error) {
			return c.CreateWorkflow(cmd.Context(), payload)
		})
	},
}

var workflowsUpdateCmd = &cobra.Command{
	Use:   "update ID FILE",
	Short: "Replace a workflow with the contents of a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload client.WorkflowPayload
		if err := fileutil.ReadPayload(args[1], &payload); err != nil {
			return err
		}
		return withClient(cmd, func(c *client.Client) (*client.Response, error) {
			return c.UpdateWorkflow(cmd.Context(), args[0], payload)
		})
	},
}

var workflowsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) (*client.Response, error) {
			return c.DeleteWorkflow(cmd.Context(), args[0])
		})
	},
}

var (
	syncWatch     bool
	syncWriteBack bool
)

var workflowsSyncCmd = &cobra.Command{
	Use:   "sync DIR",
	Short: "Push every workflow file in a directory",
	Long: `Push every *.json, *.yaml and *.yml file in DIR. Files with an "id" field
update that workflow; the others are created.

With --write-back, the id returned for a created workflow is written into its
file so the next sync updates it. With --watch, the directory is watched and
changed files are pushed again until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflowsSync,
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsGetCmd)
	workflowsCmd.AddCommand(workflowsCreateCmd)
	workflowsCmd.AddCommand(workflowsUpdateCmd)
	workflowsCmd.AddCommand(workflowsDeleteCmd)
	workflowsCmd.AddCommand(workflowsSyncCmd)

	workflowsSyncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false, "Keep watching DIR and push changed files")
	workflowsSyncCmd.Flags().BoolVar(&syncWriteBack, "write-back", false, "Store the id of created workflows in their files")
}

func runWorkflowsSync(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path %q: %w", args[0], err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("directory does not exist: %s", dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	sm := hooks.NewShutdownManager()
	sm.AddCleanup(func(string) { c.Close() })
	defer sm.Shutdown("sync finished")

	s := &syncer{client: c, out: cmd.OutOrStdout(), writeBack: syncWriteBack}

	files, err := payloadFiles(dir)
	if err != nil {
		return err
	}
	failed := s.pushAll(sm.Context(), files)

	if !syncWatch {
		if failed > 0 {
			return fmt.Errorf("%d of %d workflow file(s) failed to sync", failed, len(files))
		}
		return nil
	}

	w, err := watch.New(func(ev watch.ChangeEvent) {
		s.pushAll(sm.Context(), ev.Updated)
		for _, p := range ev.Removed {
			// Removing a file never deletes the remote workflow.
			logging.Watch().Info("Workflow file removed", "path", p)
		}
	}, logging.Watch())
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	// Cleanups run in reverse, so the watcher stops before the client closes.
	sm.AddCleanup(func(string) { w.Close() })
	w.Start()
	sm.Start()

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", dir)
	<-sm.Context().Done()
	return nil
}

// syncer pushes workflow files to the service.
type syncer struct {
	client    *client.Client
	out       io.Writer
	writeBack bool
}

// pushAll pushes each file and returns how many failed.
func (s *syncer) pushAll(ctx context.Context, files []string) int {
	failed := 0
	for _, path := range files {
		if err := s.push(ctx, path); err != nil {
			failed++
			fmt.Fprintln(s.out, renderEvent(client.MsgTypeError, filepath.Base(path), err.Error()))
		}
	}
	return failed
}

func (s *syncer) push(ctx context.Context, path string) error {
	logger := logging.WithWorkflowFile(logging.API(), path)

	var payload client.WorkflowPayload
	if err := fileutil.ReadPayload(path, &payload); err != nil {
		return err
	}

	if payload.ID != "" {
		resp, err := s.client.UpdateWorkflow(ctx, payload.ID, payload)
		if err != nil {
			return err
		}
		if err := checkResponse(resp); err != nil {
			return err
		}
		logger.Debug("Workflow updated", "workflow_id", payload.ID)
		fmt.Fprintln(s.out, renderEvent(client.MsgTypeFinished, filepath.Base(path), "updated "+payload.ID))
		return nil
	}

	resp, err := s.client.CreateWorkflow(ctx, payload)
	if err != nil {
		return err
	}
	if err := checkResponse(resp); err != nil {
		return err
	}
	var created struct {
		ID string `json:"id"`
	}
	// Some deployments answer without data; the create still succeeded.
	_ = resp.DecodeData(&created)
	logger.Debug("Workflow created", "workflow_id", created.ID)
	fmt.Fprintln(s.out, renderEvent(client.MsgTypeFinished, filepath.Base(path), "created "+created.ID))

	if s.writeBack && created.ID != "" {
		payload.ID = created.ID
		if err := fileutil.WritePayloadAtomic(path, payload, 0644); err != nil {
			return fmt.Errorf("workflow created as %s but failed to update file: %w", created.ID, err)
		}
	}
	return nil
}

// payloadFiles lists the workflow files directly inside dir, sorted.
func payloadFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !fileutil.IsPayloadFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
