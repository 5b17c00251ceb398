package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tth05/code-viewer/internal/classpath"
	"github.com/tth05/code-viewer/internal/core"
	"github.com/tth05/code-viewer/internal/navigate"
)

func NewNavigateCommand() *cobra.Command {
	var root string
	var extraClasspath []string

	navigateCmd := &cobra.Command{
		Use:   "navigate <relative-path> <row> <column>",
		Short: "Resolve a click position to its declaration without the companion app",
		Long: `Runs the navigation pipeline the companion app triggers on a click.

Row and column are zero-based, as the companion app sends them. The file is
looked up below --root, which defaults to the decompilation directory. The
declaring class is decompiled with the configured decompiler and the class and
zero-based line to open are printed.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid row %q: %w", args[1], err)
			}
			column, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid column %q: %w", args[2], err)
			}
			format, _ := cmd.Flags().GetString("format")
			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q", format)
			}

			cfg := core.Config
			if root == "" {
				root = cfg.Decompiler.OutputDir
			}

			index, err := classpath.Open(append(append([]string{}, cfg.Classpath...), extraClasspath...))
			if err != nil {
				return fmt.Errorf("failed to index classpath: %w", err)
			}
			defer index.Close()

			decompiler := &navigate.CommandDecompiler{Command: cfg.Decompiler.Command, Dir: cfg.Decompiler.OutputDir}
			pipeline := navigate.NewPipeline(root, navigate.ReflectionSolver{Index: index}, decompiler)
			if events := openEvents(); events != nil {
				defer events.Close()
				pipeline.Log = events
			}

			pos, err := pipeline.Navigate(cmd.Context(), navigate.Request{
				RelativePath: args[0],
				Row:          row,
				Column:       column,
			})
			if err != nil {
				return fmt.Errorf("navigation failed: %w", err)
			}

			if format == "json" {
				out, _ := json.Marshal(map[string]any{"class": pos.ClassName, "line": pos.Line})
				fmt.Println(string(out))
				return nil
			}
			fmt.Printf("%s:%d\n", pos.ClassName, pos.Line)
			return nil
		},
	}
	navigateCmd.Flags().StringVar(&root, "root", "", "directory the path is relative to")
	navigateCmd.Flags().StringSliceVar(&extraClasspath, "classpath", nil, "additional jars or class directories")
	navigateCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return navigateCmd
}
