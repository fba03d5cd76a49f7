package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"hightrade/internal/command"
	"hightrade/internal/config"
	"hightrade/internal/orchestrator"
)

const responseTimeout = 10 * time.Second

// clientCommands builds one cobra command per operator verb. Each drops a
// command file into the daemon's queue and waits for the reply.
func clientCommands(cfgPath *string) []*cobra.Command {
	specs := []struct {
		use   string
		verb  string
		short string
		args  cobra.PositionalArgs
	}{
		{"status", command.VerbStatus, "Show daemon state and current defcon", cobra.NoArgs},
		{"portfolio", command.VerbPortfolio, "List open and recently closed positions", cobra.NoArgs},
		{"defcon", command.VerbDefcon, "Show defcon level and transition history", cobra.NoArgs},
		{"hold", command.VerbHold, "Pause entries, keep monitoring and exits", cobra.NoArgs},
		{"resume", command.VerbResume, "Resume from hold or e-stop", cobra.NoArgs},
		{"yes", command.VerbYes, "Approve the pending entry", cobra.NoArgs},
		{"no", command.VerbNo, "Reject the pending entry", cobra.NoArgs},
		{"refresh", command.VerbRefresh, "Run the next cycle now", cobra.NoArgs},
		{"shutdown", command.VerbShutdown, "Drain the current cycle and exit", cobra.NoArgs},
		{"estop", command.VerbEstop, "Emergency stop: halt all trading activity", cobra.NoArgs},
		{"mode <disabled|semi_auto|full_auto>", command.VerbMode, "Switch broker mode", cobra.ExactArgs(1)},
		{"interval <minutes>", command.VerbInterval, "Change the cycle interval", cobra.ExactArgs(1)},
	}

	cmds := make([]*cobra.Command, 0, len(specs))
	for _, s := range specs {
		verb := s.verb
		cmds = append(cmds, &cobra.Command{
			Use:   s.use,
			Short: s.short,
			Args:  s.args,
			RunE: func(_ *cobra.Command, args []string) error {
				return sendVerb(*cfgPath, verb, args)
			},
		})
	}
	return cmds
}

// sendVerb queues one command, waits for the daemon's reply, prints any
// payload to stdout, and exits with the verb's status code.
func sendVerb(cfgPath, verb string, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	queue, err := command.NewQueue(commandDir(cfg))
	if err != nil {
		return err
	}

	cmd := command.Command{
		ID:         uuid.NewString(),
		Verb:       verb,
		Args:       args,
		ReceivedAt: time.Now().UTC(),
	}
	if err := queue.Enqueue(cmd); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), responseTimeout)
	defer cancel()
	body, err := queue.AwaitResponse(ctx, cmd.ID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "no reply from daemon; is it running?")
		os.Exit(exitInvalidState)
	}

	var res orchestrator.Result
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("malformed daemon reply: %w", err)
	}

	if res.Data != nil {
		out, err := json.MarshalIndent(res.Data, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else if res.Detail != "" {
		fmt.Println(res.Detail)
	}

	switch res.Status {
	case orchestrator.ResultAccepted:
		os.Exit(exitOK)
	case orchestrator.ResultUnknownVerb:
		os.Exit(exitUnknownVerb)
	default:
		fmt.Fprintln(os.Stderr, res.Status)
		os.Exit(exitInvalidState)
	}
	return nil
}
