// Command ssetail tails a server-sent event stream from the terminal. It is
// a thin binding over the ssemux library: one hub, one session, events and
// connection transitions printed as they arrive.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/streamkit/ssemux"
)

var (
	flagHeaders    []string
	flagMaxRetries int
	flagRetryDelay time.Duration
	flagMaxDelay   time.Duration
	flagBuffer     int
	flagNoRetry    bool
	flagVerbose    bool
)

func main() {
	cmd := &cobra.Command{
		Use:   "ssetail <url>",
		Short: "Tail a server-sent event stream",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	cmd.Flags().StringArrayVarP(&flagHeaders, "header", "H", nil, "extra request header, name:value (repeatable)")
	cmd.Flags().IntVar(&flagMaxRetries, "max-retries", ssemux.DefaultMaxRetries, "reconnect attempts before giving up")
	cmd.Flags().DurationVar(&flagRetryDelay, "retry-delay", ssemux.DefaultInitialRetryDelay, "initial reconnect delay")
	cmd.Flags().DurationVar(&flagMaxDelay, "max-delay", ssemux.DefaultMaxRetryDelay, "reconnect delay ceiling")
	cmd.Flags().IntVar(&flagBuffer, "buffer", ssemux.DefaultBufferSize, "events kept in history")
	cmd.Flags().BoolVar(&flagNoRetry, "no-retry", false, "exit on first disconnect instead of reconnecting")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log connection internals")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	url := args[0]

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if flagVerbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	headers, err := parseHeaders(flagHeaders)
	if err != nil {
		return err
	}

	opts := ssemux.DefaultOptions()
	opts.Headers = headers
	opts.MaxRetries = flagMaxRetries
	opts.InitialRetryDelay = flagRetryDelay
	opts.MaxRetryDelay = flagMaxDelay
	opts.BufferSize = flagBuffer
	opts.AutoReconnect = !flagNoRetry

	hub := ssemux.NewHub(log)
	defer hub.Shutdown()

	sess, err := hub.Session(url, opts)
	if err != nil {
		return err
	}
	defer sess.Detach()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			sess.Close()
			return nil
		case n, ok := <-sess.Updates():
			if !ok {
				return nil
			}
			if done := print(cmd, n); done {
				return sess.Err()
			}
		}
	}
}

// print renders one notification and reports whether the stream is over.
func print(cmd *cobra.Command, n ssemux.Notification) bool {
	switch n.Type {
	case ssemux.NotifyStatus:
		fmt.Fprintf(cmd.ErrOrStderr(), "-- %s\n", n.Status)
		return n.Status == ssemux.StateDisconnected || n.Status == ssemux.StateClosed
	case ssemux.NotifyEvent:
		data, err := json.Marshal(n.Event.Data)
		if err != nil {
			data = []byte(fmt.Sprint(n.Event.Data))
		}
		if n.Event.ID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s\n", n.Event.Type, n.Event.ID, data)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", n.Event.Type, data)
		}
	case ssemux.NotifyError:
		if n.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "-- error: %v\n", n.Err)
		}
	case ssemux.NotifyRetryCount:
		if n.RetryCount > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "-- retry %d\n", n.RetryCount)
		}
	}
	return false
}

func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, want name:value", h)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}
