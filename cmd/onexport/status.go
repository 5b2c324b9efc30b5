package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gjican/onexport/internal/config"
	"github.com/gjican/onexport/internal/export"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the export tree's sync state",
	Long: `Status inspects the local export directory without touching the network
and reports, per page, whether it is fully exported or still references
the remote host (meaning the next export run will repair it).`,
	RunE: runStatus,
}

// showAll lists synced pages too, not just the partial ones.
var showAll bool

func init() {
	statusCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	statusCmd.Flags().BoolVarP(&showAll, "all", "a", false, "list every page, not just partial ones")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	root := cfg.Output.Dir
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("no export found at %s\n", root)
			return nil
		}
		return fmt.Errorf("reading export directory: %w", err)
	}

	remoteHost := cfg.RemoteHost()
	var synced, partial int

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		// Anything inside an assets directory is media, not a page.
		if filepath.Base(filepath.Dir(path)) == export.AssetsDirName {
			return nil
		}

		assetsDir := filepath.Join(filepath.Dir(path), export.AssetsDirName)
		state := export.ClassifyPage(path, assetsDir, remoteHost)

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}

		if state == export.StateSynced {
			synced++
			if showAll {
				fmt.Printf("  synced   %s\n", rel)
			}
		} else {
			partial++
			fmt.Printf("  partial  %s\n", rel)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning export directory: %w", err)
	}

	fmt.Printf("\n%s: %d pages synced, %d partial\n", root, synced, partial)
	if partial > 0 {
		fmt.Println("run `onexport export` to repair partial pages")
	}
	return nil
}
