package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/convbench/internal/cache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate cached references and trials",
		Long: `Cached references and trials live as checksummed blobs in the cache
directory, indexed by a catalogue. Stale blobs are never trusted: a format,
kind or fingerprint mismatch is a miss. Use these commands to see what is
cached and to invalidate it explicitly.

Examples:
  convbench cache list --system light_ends_cascade
  convbench cache verify
  convbench cache clear --kind profile`,
	}

	cmd.AddCommand(
		newCacheListCmd(),
		newCacheVerifyCmd(),
		newCacheClearCmd(),
	)
	return cmd
}

// cacheFilter reads --system and --kind.
func cacheFilter(cmd *cobra.Command) (cache.Filter, error) {
	system, _ := cmd.Flags().GetString("system")
	kind, _ := cmd.Flags().GetString("kind")
	switch cache.Kind(kind) {
	case "", cache.KindReference, cache.KindProfile:
	default:
		return cache.Filter{}, fmt.Errorf("invalid kind %q (valid: reference, profile)", kind)
	}
	return cache.Filter{System: system, Kind: cache.Kind(kind)}, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("system", "", "Only entries of this system")
	cmd.Flags().String("kind", "", "Only entries of this kind: reference or profile")
}

func newCacheListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			filter, err := cacheFilter(cmd)
			if err != nil {
				return err
			}

			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := rt.store.List(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("failed to list cache: %w", err)
			}

			if jsonOut {
				if entries == nil {
					entries = []cache.Entry{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"entries":     entries,
					"total_count": len(entries),
					"directory":   rt.store.Dir(),
				})
			}

			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(w, "No cached entries in %s\n", rt.store.Dir())
				return nil
			}
			var totalSize int64
			for _, e := range entries {
				totalSize += e.Size
				fmt.Fprintf(w, "  %-9s %-52s %8s  %s\n", e.Kind, e.Name, formatSize(e.Size), e.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(w, "\nTotal: %d entries, %s\n", len(entries), formatSize(totalSize))
			return nil
		},
	}
	addFilterFlags(cmd)
	return cmd
}

func newCacheVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify checksums of every cached blob",
		Long: `Verify the checksum of every blob in the cache directory and reconcile the
catalogue with the files on disk. Corrupt blobs are reported; they are
treated as misses and recomputed on next use.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.store.Catalog().ValidateIntegrity(cmd.Context()); err != nil {
				return err
			}
			results, err := rt.store.Verify(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to verify cache: %w", err)
			}
			bad := 0
			for _, r := range results {
				if !r.OK {
					bad++
				}
			}

			if jsonOut {
				if results == nil {
					results = []cache.VerifyResult{}
				}
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"results": results,
					"corrupt": bad,
				}); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				for _, r := range results {
					if r.OK {
						fmt.Fprintf(w, "  ok       %s\n", r.Name)
					} else {
						fmt.Fprintf(w, "  CORRUPT  %s: %s\n", r.Name, r.Error)
					}
				}
				fmt.Fprintf(w, "%d blobs checked, %d corrupt\n", len(results), bad)
			}
			if bad > 0 {
				return fmt.Errorf("%d corrupt blobs", bad)
			}
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached entries",
		Long: `Remove cached entries matching --system and --kind. Without filters
--all is required.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			all, _ := cmd.Flags().GetBool("all")
			filter, err := cacheFilter(cmd)
			if err != nil {
				return err
			}
			if filter == (cache.Filter{}) && !all {
				return fmt.Errorf("refusing to clear the whole cache without --all")
			}

			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.store.Clear(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"status":  "cleared",
					"removed": n,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", n)
			return nil
		},
	}
	addFilterFlags(cmd)
	cmd.Flags().Bool("all", false, "Clear every entry")
	return cmd
}

// formatSize renders bytes in human-readable units.
func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
