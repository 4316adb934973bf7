package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/inercia/comfyone/client"
	"github.com/inercia/comfyone/internal/fileutil"
	"github.com/inercia/comfyone/internal/hooks"
	"github.com/inercia/comfyone/internal/logging"
)

var promptsCmd = &cobra.Command{
	Use:     "prompts",
	Aliases: []string{"prompt"},
	Short:   "Run and track prompts",
}

var (
	promptInputs      []string
	promptInputsFile  string
	promptWait        bool
	promptDownload    bool
	promptWaitTimeout time.Duration
)

var promptsRunCmd = &cobra.Command{
	Use:   "run WORKFLOW_ID",
	Short: "Submit a prompt for a workflow",
	Long: `Submit a prompt for a workflow.

Input values are given per node as NODE.PARAM=VALUE. VALUE is read as JSON
when it parses (numbers, booleans, quoted strings, objects) and as a plain
string otherwise:

  comfyone prompts run wf-123 --input 5.width=1024 --input 5.height=1024 \
      --input 6.text="a lighthouse at dusk" --wait --download

--inputs reads a JSON or YAML prompt file ({workflow_id, inputs}); --input
values are merged on top of it.

With --wait, the command follows the prompt over the event stream until it
finishes or fails, then prints the output URLs. --download saves them and
implies --wait. Configured completion hooks run after the prompt ends.`,
	Args: cobra.ExactArgs(1),
	RunE: runPromptsRun,
}

var promptsStatusCmd = &cobra.Command{
	Use:   "status PROMPT_ID",
	Short: "Show the status of a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) (*client.Response, error) {
			return c.GetPromptStatus(cmd.Context(), args[0])
		})
	},
}

var promptsCancelCmd = &cobra.Command{
	Use:   "cancel PROMPT_ID",
	Short: "Cancel a queued or running prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) (*client.Response, error) {
			return c.CancelPrompt(cmd.Context(), args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)
	promptsCmd.AddCommand(promptsRunCmd)
	promptsCmd.AddCommand(promptsStatusCmd)
	promptsCmd.AddCommand(promptsCancelCmd)

	promptsRunCmd.Flags().StringArrayVarP(&promptInputs, "input", "i", nil, "Input value as NODE.PARAM=VALUE. Can be specified multiple times.")
	promptsRunCmd.Flags().StringVar(&promptInputsFile, "inputs", "", "JSON or YAML prompt file")
	promptsRunCmd.Flags().BoolVar(&promptWait, "wait", false, "Follow the prompt until it finishes")
	promptsRunCmd.Flags().BoolVar(&promptDownload, "download", false, "Download the outputs (implies --wait)")
	promptsRunCmd.Flags().DurationVar(&promptWaitTimeout, "wait-timeout", 0, "Give up waiting after this long (0 waits forever)")
}

// buildPromptPayload combines the inputs file and --input flags.
func buildPromptPayload(workflowID, inputsFile string, flags []string) (client.PromptPayload, error) {
	var payload client.PromptPayload
	if inputsFile != "" {
		if err := fileutil.ReadPayload(inputsFile, &payload); err != nil {
			return payload, err
		}
	}
	payload.WorkflowID = workflowID

	extra, err := parseInputFlags(flags)
	if err != nil {
		return payload, err
	}
	payload.Inputs = mergeInputs(payload.Inputs, extra)
	return payload, nil
}

// parseInputFlags parses NODE.PARAM=VALUE flags, grouping params by node in
// the order nodes first appear.
func parseInputFlags(flags []string) ([]client.PromptInput, error) {
	var inputs []client.PromptInput
	index := map[string]int{}
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid input %q: expected NODE.PARAM=VALUE", f)
		}
		node, param, ok := strings.Cut(strings.TrimSpace(key), ".")
		if !ok || node == "" || param == "" {
			return nil, fmt.Errorf("invalid input %q: expected NODE.PARAM=VALUE", f)
		}
		i, seen := index[node]
		if !seen {
			i = len(inputs)
			index[node] = i
			inputs = append(inputs, client.PromptInput{ID: node, Params: map[string]any{}})
		}
		inputs[i].Params[param] = parseValue(value)
	}
	return inputs, nil
}

// parseValue reads s as JSON, falling back to the raw string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// mergeInputs adds the params of extra to base. Params for a node already
// in base replace values with the same name.
func mergeInputs(base, extra []client.PromptInput) []client.PromptInput {
	out := make([]client.PromptInput, 0, len(base)+len(extra))
	index := map[string]int{}
	for _, in := range base {
		params := make(map[string]any, len(in.Params))
		for k, v := range in.Params {
			params[k] = v
		}
		index[in.ID] = len(out)
		out = append(out, client.PromptInput{ID: in.ID, Params: params})
	}
	for _, in := range extra {
		i, ok := index[in.ID]
		if !ok {
			index[in.ID] = len(out)
			out = append(out, in)
			continue
		}
		for k, v := range in.Params {
			out[i].Params[k] = v
		}
	}
	return out
}

// promptIDFrom extracts the prompt id from a submit response. The service
// answers with an object holding the id, or with the bare id.
func promptIDFrom(resp *client.Response) (string, error) {
	var fields struct {
		ID       string `json:"id"`
		TaskID   string `json:"taskId"`
		PromptID string `json:"prompt_id"`
	}
	if err := resp.DecodeData(&fields); err == nil {
		for _, id := range []string{fields.ID, fields.TaskID, fields.PromptID} {
			if id != "" {
				return id, nil
			}
		}
	}
	var id string
	if err := resp.DecodeData(&id); err == nil && id != "" {
		return id, nil
	}
	return "", fmt.Errorf("prompt response has no id: %s", string(resp.Data))
}

func runPromptsRun(cmd *cobra.Command, args []string) error {
	payload, err := buildPromptPayload(args[0], promptInputsFile, promptInputs)
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	sm := hooks.NewShutdownManager()
	sm.AddCleanup(func(string) { c.Close() })
	defer sm.Shutdown("prompt command finished")

	if !promptWait && !promptDownload {
		resp, err := c.Prompt(cmd.Context(), payload)
		if err != nil {
			return err
		}
		return finish(cmd.OutOrStdout(), resp)
	}

	sm.Start()
	ctx := sm.Context()
	if promptWaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, promptWaitTimeout)
		defer cancel()
	}

	// Handlers go in before the session connects so no event is missed.
	tracker := newPromptTracker(cmd.OutOrStdout())
	session := c.NewSession()
	tracker.attach(session)
	session.Start(ctx)
	sm.AddCleanup(func(string) { session.Close() })

	resp, err := c.Prompt(ctx, payload)
	if err != nil {
		return err
	}
	if err := checkResponse(resp); err != nil {
		return err
	}
	promptID, err := promptIDFrom(resp)
	if err != nil {
		return err
	}
	logger := logging.WithPrompt(logging.WS(), promptID, payload.WorkflowID)
	logger.Info("Prompt submitted")
	fmt.Fprintf(cmd.ErrOrStderr(), "Prompt %s submitted, waiting for events\n", promptID)

	result, err := tracker.wait(ctx, promptID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("stopped waiting for prompt %s (it may still be running; see 'comfyone prompts cancel %s')", promptID, promptID)
		}
		return err
	}
	result.WorkflowID = payload.WorkflowID

	if result.Status == statusFinished {
		outputs, err := collectOutputs(ctx, c, cmd.OutOrStdout(), promptID, promptDownload)
		if err != nil {
			return err
		}
		result.Outputs = outputs
	}

	runner := &hooks.Runner{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
	if err := runner.RunFor(cmd.Context(), cfg.Hooks, result); err != nil {
		logger.Warn("Completion hook failed", "error", err)
		fmt.Fprintln(cmd.ErrOrStderr(), renderEvent(client.MsgTypeError, promptID, err.Error()))
	}

	if result.Status != statusFinished {
		msg := result.Message
		if msg == "" {
			msg = "no details from the service"
		}
		return fmt.Errorf("prompt %s failed: %s", promptID, msg)
	}
	return nil
}

// collectOutputs fetches the prompt's output URLs and downloads them when
// download is set. It returns the saved paths, or the URLs.
func collectOutputs(ctx context.Context, c *client.Client, out io.Writer, promptID string, download bool) ([]string, error) {
	resp, err := c.GetPromptStatus(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	var status client.PromptStatus
	if err := resp.DecodeData(&status); err != nil {
		return nil, fmt.Errorf("failed to read prompt status: %w", err)
	}
	if !download {
		for _, u := range status.Images {
			fmt.Fprintln(out, u)
		}
		return status.Images, nil
	}

	paths := make([]string, 0, len(status.Images))
	for _, u := range status.Images {
		p, err := c.Download(ctx, u, "")
		if err != nil {
			return paths, err
		}
		fmt.Fprintln(out, p)
		paths = append(paths, p)
	}
	return paths, nil
}

const (
	statusFinished = "finished"
	statusError    = "error"
)

// taskEventTypes are the event types a prompt goes through.
var taskEventTypes = []string{
	client.MsgTypePending,
	client.MsgTypeProgress,
	client.MsgTypeFinished,
	client.MsgTypeError,
}

// promptTracker buffers task events from the session's read goroutine until
// the prompt id is known.
type promptTracker struct {
	out    io.Writer
	events chan client.Message
}

func newPromptTracker(out io.Writer) *promptTracker {
	return &promptTracker{out: out, events: make(chan client.Message, 256)}
}

func (t *promptTracker) attach(s *client.Session) {
	for _, typ := range taskEventTypes {
		s.AddMessageHandler(typ, t.push)
	}
	s.SetErrorHandler(func(err error) {
		logging.WS().Warn("WebSocket error", "error", err)
	})
}

func (t *promptTracker) push(msg client.Message) {
	select {
	case t.events <- msg:
	default:
		logging.WS().Warn("Event buffer full, dropping event", "type", msg.Type)
	}
}

// wait prints the events of promptID until a terminal one arrives.
func (t *promptTracker) wait(ctx context.Context, promptID string) (hooks.Result, error) {
	for {
		select {
		case <-ctx.Done():
			return hooks.Result{}, ctx.Err()
		case msg := <-t.events:
			var head struct {
				TaskID string `json:"taskId"`
			}
			if err := msg.Decode(&head); err != nil || head.TaskID != promptID {
				continue
			}
			printEvent(t.out, msg)

			switch msg.Type {
			case client.MsgTypeFinished:
				var ev client.FinishedEvent
				if err := msg.Decode(&ev); err != nil {
					return hooks.Result{}, err
				}
				if !ev.Data.Success {
					return hooks.Result{PromptID: promptID, Status: statusError, Message: ev.Data.Message}, nil
				}
				return hooks.Result{PromptID: promptID, Status: statusFinished, Message: ev.Data.Message}, nil
			case client.MsgTypeError:
				var ev client.ErrorEvent
				if err := msg.Decode(&ev); err != nil {
					return hooks.Result{}, err
				}
				return hooks.Result{PromptID: promptID, Status: statusError, Message: ev.Data.Message}, nil
			}
		}
	}
}
