package main

import (
	"io"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/rasa-chat/backend/internal/logging"
	"github.com/zhouzirui/rasa-chat/backend/internal/service/session"
	"github.com/zhouzirui/rasa-chat/backend/internal/service/transport"
	"github.com/zhouzirui/rasa-chat/backend/internal/widget"
)

type options struct {
	webhook  string
	sender   string
	fallback string
	timeout  time.Duration
	logLevel string
	logFile  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:          "rasa-widget",
		Short:        "Chat with a Rasa assistant from the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.webhook, "webhook", transport.DefaultWebhookURL, "Rasa REST webhook URL")
	flags.StringVar(&opts.sender, "sender", session.DefaultSenderID, "sender id sent with every message")
	flags.StringVar(&opts.fallback, "fallback", session.DefaultFallbackText, "message shown when the assistant cannot be reached")
	flags.DurationVar(&opts.timeout, "timeout", 0, "webhook request timeout, 0 waits indefinitely")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level")
	flags.StringVar(&opts.logFile, "log-file", "", "write logs to this file")

	return cmd
}

func run(opts options) error {
	var logOut io.Writer = io.Discard
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		defer f.Close()
		logOut = f
	}
	logger := logging.Setup(opts.logLevel, false, logOut)

	var clientOpts []transport.RasaOption
	if opts.timeout > 0 {
		clientOpts = append(clientOpts, transport.WithHTTPClient(&http.Client{Timeout: opts.timeout}))
	}
	client := transport.NewRasaClient(opts.webhook, clientOpts...)

	ctrl := session.NewController("", client,
		session.WithSenderID(opts.sender),
		session.WithFallbackText(opts.fallback),
		session.WithLogger(logger),
	)
	defer ctrl.Close()

	if _, err := tea.NewProgram(widget.New("Chatbot Rasa", ctrl), tea.WithAltScreen(), tea.WithMouseCellMotion()).Run(); err != nil {
		return errors.Wrap(err, "run terminal widget")
	}
	return nil
}
