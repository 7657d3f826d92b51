package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/HyperSonicCTF/BUUCTF-Agent/internal/agent"
)

// ConsoleApprover implements the manual-mode approval checkpoint on a
// terminal.
type ConsoleApprover struct {
	In  io.Reader
	Out io.Writer
}

// Review presents the proposed action and gathers the operator's decision.
// Unrecognized input re-prompts.
func (c *ConsoleApprover) Review(action *agent.Action) (agent.Decision, string) {
	scanner := bufio.NewScanner(c.In)

	fmt.Fprintln(c.Out)
	color.New(color.FgYellow, color.Bold).Fprintln(c.Out, "Proposed step")
	fmt.Fprintf(c.Out, "Tool:    %s\n", action.ToolName)
	fmt.Fprintf(c.Out, "Purpose: %s\n", action.Purpose())
	fmt.Fprintf(c.Out, "Content:\n%s\n\n", action.Content())

	for {
		fmt.Fprintln(c.Out, "1. Approve and execute")
		fmt.Fprintln(c.Out, "2. Provide feedback and rethink")
		fmt.Fprintln(c.Out, "3. Abort solving")
		fmt.Fprint(c.Out, "Enter the option number: ")

		if !scanner.Scan() {
			return agent.DecisionAbort, ""
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			return agent.DecisionApprove, ""
		case "2":
			fmt.Fprint(c.Out, "Enter your feedback or suggested changes: ")
			if !scanner.Scan() {
				return agent.DecisionAbort, ""
			}
			return agent.DecisionRevise, strings.TrimSpace(scanner.Text())
		case "3":
			return agent.DecisionAbort, ""
		default:
			fmt.Fprintln(c.Out, "Invalid option, please try again.")
		}
	}
}

// ConsoleFlagConfirmer asks the operator to confirm a candidate flag.
type ConsoleFlagConfirmer struct {
	In  io.Reader
	Out io.Writer
}

// Confirm presents the candidate and reads a y/n answer.
func (c *ConsoleFlagConfirmer) Confirm(candidate string) bool {
	scanner := bufio.NewScanner(c.In)

	fmt.Fprintln(c.Out)
	color.New(color.FgGreen, color.Bold).Fprintf(c.Out, "Possible flag detected:\n%s\n", candidate)
	fmt.Fprintln(c.Out, "Please confirm whether this flag is correct.")

	for {
		fmt.Fprint(c.Out, "Enter 'y' to accept, or 'n' if it is incorrect: ")
		if !scanner.Scan() {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y":
			return true
		case "n":
			return false
		default:
			fmt.Fprintln(c.Out, "Invalid input. Please respond with 'y' or 'n'.")
		}
	}
}

// promptRunMode asks the operator to choose automatic or manual mode.
// Returns true for automatic.
func promptRunMode(in io.Reader, out io.Writer) bool {
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "\nSelect a run mode:")
	fmt.Fprintln(out, "1. Automatic mode (the agent generates and executes every command)")
	fmt.Fprintln(out, "2. Manual mode (each step requires approval)")

	for {
		fmt.Fprint(out, "Enter the option number: ")
		if !scanner.Scan() {
			return false
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			return true
		case "2":
			return false
		default:
			fmt.Fprintln(out, "Invalid option, please try again.")
		}
	}
}
