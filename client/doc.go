// Package client provides a Go client for the ComfyOne workflow-execution service.
//
// It covers the REST API (backends, workflows, files and prompts) and the
// WebSocket event stream that reports job progress.
//
// # Basic Usage
//
// Create a client and list backends:
//
//	c, err := client.New(client.Config{APIKey: os.Getenv("COMFYONE_API_KEY")})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := c.ListBackends(ctx)
//
// Every API method returns the service envelope ({code, message, data}) as a
// *Response. A non-zero Code is not an error at this level; check resp.OK().
//
// # Errors and Retries
//
// Network errors, 429 and 5xx responses are retried up to Config.MaxRetries
// attempts, waiting BackoffBase*2^attempt between them (2s, 4s, ... by
// default). A 401 is never retried. Use errors.Is with the sentinels, or the
// helpers, to branch:
//
//	_, err := c.GetWorkflow(ctx, id)
//	switch {
//	case client.IsAuthentication(err):
//	    // refresh the API key
//	case client.IsRetryExhausted(err):
//	    // the service is unreachable
//	}
//
// # WebSocket Events
//
// ConnectWebsocket opens the event stream and keeps it open, reconnecting
// after Config.ReconnectDelay whenever the connection drops:
//
//	sess := c.ConnectWebsocket(ctx)
//	defer c.Close()
//
//	sess.OnProgress(func(ev client.ProgressEvent) {
//	    fmt.Printf("%s: %.0f%%\n", ev.TaskID, ev.Data.Process)
//	})
//	sess.AddMessageHandler("finished", func(msg client.Message) {
//	    fields, _ := msg.Fields()
//	    fmt.Println(fields["data"])
//	})
//
// Frames whose type has no handler are dropped, as are frames that are not
// valid JSON.
//
// # Thread Safety
//
// Client and Session are safe for concurrent use. Message handlers are
// invoked from a single goroutine (the WebSocket read loop), so handlers
// must be thread-safe if they access shared state.
package client
