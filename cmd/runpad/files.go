package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/codefionn/runpad/internal/apperr"
	"github.com/codefionn/runpad/internal/workspace"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	lsJSON     bool
	flushDry   bool
	addedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	goneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	hunkStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the workspace tree",
	Long:  "List remote and local files. Files with local content are marked with '*'.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cfg)
		defer a.close()

		root := a.ws.List(cmd.Context())
		out := cmd.OutOrStdout()
		if lsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(root)
		}
		printTree(out, root, 0)
		return nil
	},
}

func printTree(w io.Writer, n *workspace.FileNode, depth int) {
	for _, child := range n.Children {
		name := child.Name
		if child.IsFolder() {
			name += "/"
		}
		if child.Local {
			name += " *"
		}
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), name)
		if child.IsFolder() {
			printTree(w, child, depth+1)
		}
	}
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a file, preferring local content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cfg)
		defer a.close()

		content, err := a.ws.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, err = io.WriteString(cmd.OutOrStdout(), content)
		return err
	},
}

var putCmd = &cobra.Command{
	Use:   "put <path>",
	Short: "Save stdin as a file",
	Long:  "Save stdin to path locally, then try to save it to the workspace service.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cfg)
		defer a.close()

		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		return a.ws.Save(cmd.Context(), args[0], string(data))
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <old> <new>",
	Short: "Rename a local file",
	Long:  "Rename a local file. A local file already at new is replaced; remote copies are untouched.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cfg)
		defer a.close()
		return moveFile(a.ws, args[0], args[1])
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Delete local files",
	Long:  "Delete local files. Remote copies are untouched and show up again in 'runpad ls'.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cfg)
		defer a.close()
		for _, p := range args {
			if err := removeFile(a.ws, p); err != nil {
				return err
			}
		}
		return nil
	},
}

func moveFile(ws *workspace.Workspace, oldPath, newPath string) error {
	if workspace.CleanPath(newPath) == "" {
		return apperr.Errorf(apperr.KindValidation, "invalid destination: %q", newPath)
	}
	if !ws.Rename(oldPath, newPath) {
		return apperr.Errorf(apperr.KindNotFound, "no local file: %s", oldPath)
	}
	return nil
}

func removeFile(ws *workspace.Workspace, p string) error {
	if !ws.Delete(p) {
		return apperr.Errorf(apperr.KindNotFound, "no local file: %s", p)
	}
	return nil
}

var diffCmd = &cobra.Command{
	Use:   "diff <path>",
	Short: "Show local changes against the workspace service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cfg)
		defer a.close()

		diff, err := a.ws.Diff(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			_, err = io.WriteString(out, diff)
			return err
		}
		for _, line := range strings.SplitAfter(diff, "\n") {
			switch {
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
				fmt.Fprint(out, line)
			case strings.HasPrefix(line, "+"):
				fmt.Fprint(out, addedStyle.Render(strings.TrimSuffix(line, "\n"))+"\n")
			case strings.HasPrefix(line, "-"):
				fmt.Fprint(out, goneStyle.Render(strings.TrimSuffix(line, "\n"))+"\n")
			case strings.HasPrefix(line, "@@"):
				fmt.Fprint(out, hunkStyle.Render(strings.TrimSuffix(line, "\n"))+"\n")
			default:
				fmt.Fprint(out, line)
			}
		}
		return nil
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Push unsynced local files to the workspace service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cfg)
		defer a.close()

		out := cmd.OutOrStdout()
		if flushDry {
			for _, p := range a.ws.Pending() {
				fmt.Fprintln(out, p)
			}
			return nil
		}
		n, err := a.ws.Flush(cmd.Context())
		fmt.Fprintf(out, "Synced %d file(s)\n", n)
		return err
	},
}

func init() {
	lsCmd.Flags().BoolVar(&lsJSON, "json", false, "Print the tree as JSON")
	flushCmd.Flags().BoolVar(&flushDry, "dry-run", false, "Only list unsynced files")

	rootCmd.AddCommand(lsCmd, catCmd, putCmd, mvCmd, rmCmd, diffCmd, flushCmd)
}
