package main

import (
	"fmt"
	"strings"

	"github.com/codefionn/runpad/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	importPrefix      string
	importMaxSize     int64
	importNoGitignore bool
	importUpload      bool
	importWatch       bool
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Import a directory into the local workspace",
	Long: `Import every text file under dir into the local workspace. Binaries,
oversized files and paths matched by dir/.gitignore are skipped.

With --upload the imported files are also uploaded to the workspace service.
With --watch runpad keeps the local copies in sync with dir until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cfg)
		defer a.close()

		ctx := cmd.Context()
		opts := workspace.ImportOptions{
			Prefix:      importPrefix,
			MaxFileSize: importMaxSize,
			NoGitignore: importNoGitignore,
		}
		res, err := a.ws.ImportDir(ctx, args[0], opts)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported %d file(s)\n", res.Imported)
		for _, p := range res.Skipped {
			fmt.Fprintf(out, "  skipped %s\n", p)
		}

		if importUpload {
			if !a.ws.HasRemote() {
				return fmt.Errorf("--upload needs a workspace service (workspace_url)")
			}
			a.ws.Upload(ctx, "", importedEntries(a.ws.Store().Snapshot(), importPrefix))
			if pending := a.ws.Pending(); len(pending) > 0 {
				fmt.Fprintf(out, "%d file(s) still unsynced; run 'runpad flush' to retry\n", len(pending))
			}
		}

		if !importWatch {
			return nil
		}
		w, err := a.ws.Watch(args[0], opts)
		if err != nil {
			return err
		}
		defer w.Close()
		fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", args[0])
		<-ctx.Done()
		return nil
	},
}

func importedEntries(all []workspace.Entry, prefix string) []workspace.Entry {
	prefix = workspace.CleanPath(prefix)
	if prefix == "" {
		return all
	}
	var out []workspace.Entry
	for _, e := range all {
		if e.Path == prefix || strings.HasPrefix(e.Path, prefix+"/") {
			out = append(out, e)
		}
	}
	return out
}

func init() {
	importCmd.Flags().StringVar(&importPrefix, "prefix", "", "Workspace folder to import into")
	importCmd.Flags().Int64Var(&importMaxSize, "max-size", workspace.DefaultMaxImportSize, "Skip files larger than this many bytes")
	importCmd.Flags().BoolVar(&importNoGitignore, "no-gitignore", false, "Do not apply dir/.gitignore")
	importCmd.Flags().BoolVar(&importUpload, "upload", false, "Upload imported files to the workspace service")
	importCmd.Flags().BoolVar(&importWatch, "watch", false, "Keep watching dir for changes")
	rootCmd.AddCommand(importCmd)
}
