package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/msto63/wiener/internal/orchestrator"
	"github.com/msto63/wiener/internal/server"
)

var (
	goalScript  bool
	goalWait    bool
	goalTimeout time.Duration
	goalJSON    bool
)

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Submit, inspect and cancel goals",
}

var goalSubmitCmd = &cobra.Command{
	Use:   "submit <goal>",
	Short: "Submit a goal predicate or start a script",
	Long: `Submit a goal to a running orchestrator.

Examples:
  wiener goal submit 'at(robot, kitchen)'
  wiener goal submit --script patrol
  wiener goal submit --wait 'fetch(robot, cup)'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoalSubmit,
}

var goalStatusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show one goal or the whole goal table",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGoalStatus,
}

var goalCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a running goal",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoalCancel,
}

func init() {
	rootCmd.AddCommand(goalCmd)
	goalCmd.AddCommand(goalSubmitCmd, goalStatusCmd, goalCancelCmd)

	goalSubmitCmd.Flags().BoolVar(&goalScript, "script", false, "treat the argument as a script name")
	goalSubmitCmd.Flags().BoolVarP(&goalWait, "wait", "w", false, "wait until the goal is finished")
	goalSubmitCmd.Flags().DurationVar(&goalTimeout, "timeout", time.Minute, "how long to wait")
	goalStatusCmd.Flags().BoolVar(&goalJSON, "json", false, "print JSON")
}

func runGoalSubmit(cmd *cobra.Command, args []string) error {
	client := server.NewClient(apiAddr)
	defer client.Close()

	req := server.SubmitRequest{Goal: strings.Join(args, " ")}
	if goalScript {
		req = server.SubmitRequest{Script: args[0]}
	}

	ctx := cmd.Context()
	resp, err := client.Submit(ctx, req)
	if err != nil {
		printError("submit failed", err)
		return err
	}
	fmt.Printf("goal %d %s\n", resp.ID, resp.Status)
	if !goalWait {
		return nil
	}

	info, err := waitForGoal(ctx, client, resp.ID, goalTimeout)
	if err != nil {
		printError("wait failed", err)
		return err
	}
	printGoal(info)
	if info.Status != orchestrator.StatusSuccess {
		return fmt.Errorf("goal %d ended with %s", info.ID, info.Status)
	}
	return nil
}

// waitForGoal polls until the goal reaches a terminal status
func waitForGoal(ctx context.Context, client *server.Client, id int64, timeout time.Duration) (orchestrator.GoalInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		info, err := client.Goal(ctx, id)
		if err != nil {
			return info, err
		}
		if info.Status.Terminal() {
			return info, nil
		}
		select {
		case <-ctx.Done():
			return info, ctx.Err()
		case <-ticker.C:
		}
	}
}

func runGoalStatus(cmd *cobra.Command, args []string) error {
	client := server.NewClient(apiAddr)
	defer client.Close()
	ctx := cmd.Context()

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid goal id %q", args[0])
		}
		info, err := client.Goal(ctx, id)
		if err != nil {
			printError("status failed", err)
			return err
		}
		if goalJSON {
			return printJSON(info)
		}
		printGoal(info)
		return nil
	}

	goals, err := client.Goals(ctx)
	if err != nil {
		printError("status failed", err)
		return err
	}
	if goalJSON {
		return printJSON(goals)
	}
	if len(goals) == 0 {
		fmt.Println("no goals")
		return nil
	}
	for _, g := range goals {
		printGoal(g)
	}
	return nil
}

func runGoalCancel(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid goal id %q", args[0])
	}
	client := server.NewClient(apiAddr)
	defer client.Close()

	if err := client.Cancel(cmd.Context(), id); err != nil {
		printError("cancel failed", err)
		return err
	}
	fmt.Printf("cancellation of goal %d requested\n", id)
	return nil
}

func printGoal(g orchestrator.GoalInfo) {
	line := fmt.Sprintf("%4d  %-10s %s", g.ID, g.Status, g.Predicate)
	if g.Script != "" {
		line += "  [" + g.Script + "]"
	}
	if g.Delegated {
		line += "  (planner)"
	}
	if len(g.Causes) > 0 {
		line += "  because " + strings.Join(g.Causes, ", ")
	}
	fmt.Println(line)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
