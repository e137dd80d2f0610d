package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const prompt = "memcache> "

func shellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Starts an interactive shell sharing one client",
		Long: wrapString(`Reads commands from standard input, one per line, and runs them with the same client.
Type "help" to list the commands and "exit" to leave.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runShell(cmd, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (a *app) runShell(parent *cobra.Command, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			return nil
		}

		// Commands keep flag state between runs, so every line gets a fresh tree.
		line := &cobra.Command{
			Use:           "",
			SilenceUsage:  true,
			SilenceErrors: true,
		}
		line.AddCommand(operationCommands(a)...)
		line.SetArgs(args)
		line.SetIn(in)
		line.SetOut(out)
		line.SetErr(out)

		if err := line.ExecuteContext(parent.Context()); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			a.logger.Debug("shell command failed", zap.Strings("args", args), zap.Error(err))
		}
	}
}
