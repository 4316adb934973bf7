package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/inercia/comfyone/client"
)

// checkResponse turns an envelope with a non-zero code into an error.
func checkResponse(resp *client.Response) error {
	if resp.OK() {
		return nil
	}
	msg := resp.Message
	if msg == "" {
		msg = "no message"
	}
	return fmt.Errorf("request failed (code %d, HTTP %d): %s", resp.Code, resp.StatusCode, msg)
}

// printResponse writes the response data as indented JSON, or the whole
// envelope with --json. A response without data prints its message.
func printResponse(w io.Writer, resp *client.Response) error {
	if jsonOutput {
		return writeJSON(w, resp)
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		msg := resp.Message
		if msg == "" {
			msg = "ok"
		}
		_, err := fmt.Fprintln(w, msg)
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, resp.Data, "", "  "); err != nil {
		// Not JSON we can indent; print as received.
		_, err = fmt.Fprintln(w, string(resp.Data))
		return err
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// finish checks resp and prints it.
func finish(w io.Writer, resp *client.Response) error {
	if err := checkResponse(resp); err != nil {
		return err
	}
	return printResponse(w, resp)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- Event rendering ---

var eventStyles = map[string]lipgloss.Style{
	client.MsgTypePending:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
	client.MsgTypeProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("#89B4FA")),
	client.MsgTypeFinished: lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")),
	client.MsgTypeError:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")),
}

var labelStyle = lipgloss.NewStyle().Bold(true)

// renderEvent formats one event line. Unknown types are printed unstyled.
func renderEvent(eventType, taskID, text string) string {
	style, ok := eventStyles[eventType]
	if !ok {
		style = lipgloss.NewStyle()
	}
	label := labelStyle.Render(fmt.Sprintf("%-8s", eventType))
	if taskID == "" {
		return style.Render(label + " " + text)
	}
	return style.Render(fmt.Sprintf("%s %s %s", label, taskID, text))
}

// renderProgressBar draws a bar of the given width for a 0-100 percentage.
func renderProgressBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent * float64(width) / 100)
	return fmt.Sprintf("[%s%s] %3.0f%%", strings.Repeat("#", filled), strings.Repeat("-", width-filled), percent)
}

// describeEvent renders msg for display. It returns false when msg is not
// one of the task event types.
func describeEvent(msg client.Message) (string, bool) {
	switch msg.Type {
	case client.MsgTypePending:
		var ev client.PendingEvent
		if err := msg.Decode(&ev); err != nil {
			return "", false
		}
		return renderEvent(msg.Type, ev.TaskID, fmt.Sprintf("queued at position %d", ev.Data.Current)), true
	case client.MsgTypeProgress:
		var ev client.ProgressEvent
		if err := msg.Decode(&ev); err != nil {
			return "", false
		}
		return renderEvent(msg.Type, ev.TaskID, renderProgressBar(ev.Data.Process, 20)), true
	case client.MsgTypeFinished:
		var ev client.FinishedEvent
		if err := msg.Decode(&ev); err != nil {
			return "", false
		}
		text := "completed"
		if !ev.Data.Success {
			text = "failed"
			if ev.Data.Message != "" {
				text += ": " + ev.Data.Message
			}
		}
		return renderEvent(msg.Type, ev.TaskID, text), true
	case client.MsgTypeError:
		var ev client.ErrorEvent
		if err := msg.Decode(&ev); err != nil {
			return "", false
		}
		return renderEvent(msg.Type, ev.TaskID, ev.Data.Message), true
	}
	return "", false
}

// printEvent writes msg as a styled line, or as compact JSON with --json.
func printEvent(w io.Writer, msg client.Message) {
	if jsonOutput {
		var buf bytes.Buffer
		if err := json.Compact(&buf, msg.Raw); err == nil {
			fmt.Fprintln(w, buf.String())
			return
		}
	}
	if line, ok := describeEvent(msg); ok {
		fmt.Fprintln(w, line)
		return
	}
	fmt.Fprintln(w, renderEvent(msg.Type, "", string(msg.Raw)))
}
