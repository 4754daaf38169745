package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/taskrelay/internal/state"
	"github.com/user/taskrelay/internal/types"
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskListCmd, taskAddCmd)

	taskAddCmd.Flags().String("title", "", "task title (required)")
	taskAddCmd.Flags().String("description", "", "task description")
	_ = taskAddCmd.MarkFlagRequired("title")
}

func taskStore() *state.TaskStore {
	cfg := loadConfig()
	return state.NewTaskStore(filepath.Join(cfg.DataDir, "tasks.json"))
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage monitored tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a task to monitor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")

		task := &types.Task{
			ID:          types.NewTaskID(),
			Title:       title,
			Description: description,
			Status:      types.TaskStatusTodo,
		}
		if err := taskStore().Put(cmd.Context(), task); err != nil {
			return fmt.Errorf("add task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Task %s added.\n", task.ID)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := taskStore().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		if len(tasks) == 0 {
			fmt.Fprintln(os.Stdout, "No tasks.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tTITLE")
		for _, task := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\n", task.ID, task.Status, task.Title)
		}
		return w.Flush()
	},
}
