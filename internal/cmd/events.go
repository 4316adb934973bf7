package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inercia/comfyone/client"
	"github.com/inercia/comfyone/internal/hooks"
	"github.com/inercia/comfyone/internal/logging"
)

var (
	eventTypes []string
	eventTask  string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream WebSocket events until interrupted",
	Long: `Connect to the event stream and print every task event until interrupted.

By default the pending, progress, finished and error events are shown; --type
adds other event types. --task limits the output to one prompt.`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringSliceVarP(&eventTypes, "type", "t", nil, "Additional event types to show")
	eventsCmd.Flags().StringVar(&eventTask, "task", "", "Only show events for this prompt id")
}

func runEvents(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	sm := hooks.NewShutdownManager()
	sm.AddCleanup(func(string) { c.Close() })
	defer sm.Shutdown("events stream finished")

	out := cmd.OutOrStdout()
	show := func(msg client.Message) {
		if eventTask != "" {
			var head struct {
				TaskID string `json:"taskId"`
			}
			if err := msg.Decode(&head); err != nil || head.TaskID != eventTask {
				return
			}
		}
		printEvent(out, msg)
	}

	session := c.NewSession()
	for _, typ := range append(append([]string{}, taskEventTypes...), eventTypes...) {
		session.AddMessageHandler(typ, show)
	}
	session.SetConnectionHandler(func() {
		logging.WS().Info("Connected to event stream", "url", c.WebsocketURL())
	})
	session.SetErrorHandler(func(err error) {
		logging.WS().Warn("WebSocket error", "error", err)
	})

	sm.Start()
	session.Start(sm.Context())
	sm.AddCleanup(func(string) { session.Close() })

	fmt.Fprintln(cmd.ErrOrStderr(), "Streaming events (Ctrl+C to stop)")
	<-sm.Context().Done()
	return nil
}
