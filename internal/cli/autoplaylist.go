package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keshon/djwillex/datastore"
	"github.com/keshon/djwillex/internal/autoplaylist"
	"github.com/keshon/djwillex/internal/dependencies/random"
	"github.com/keshon/djwillex/internal/music/extractor"
)

// newProber is replaced in tests.
var newProber = func(proxy string) autoplaylist.Prober { return extractor.New(proxy) }

func newAutoplaylistCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "autoplaylist",
		Short: "Inspect and maintain the autoplaylist file",
	}
	cmd.PersistentFlags().StringVarP(&file, "file", "f", envOr("AUTO_PLAYLIST_FILE", "config/autoplaylist.txt"), "Autoplaylist file (env: AUTO_PLAYLIST_FILE)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every URL in the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openPool(file)
			if err != nil {
				return err
			}
			for _, url := range pool.URLs() {
				fmt.Fprintln(cmd.OutOrStdout(), url)
			}
			return nil
		},
	})

	var (
		prune bool
		proxy string
	)
	check := &cobra.Command{
		Use:   "check",
		Short: "Probe every URL and report the ones that no longer resolve",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openPool(file)
			if err != nil {
				return err
			}
			cont := autoplaylist.New(pool, newProber(proxy), random.New(), true)

			bad, err := cont.Check(cmd.Context(), prune)
			out := cmd.OutOrStdout()
			for _, url := range bad {
				fmt.Fprintln(out, "unplayable:", url)
			}
			if err != nil {
				return err
			}
			verb := "found"
			if prune {
				verb = "removed"
			}
			fmt.Fprintf(out, "%s %d unplayable of %d checked\n", verb, len(bad), pool.Len()+pruned(prune, bad))
			return nil
		},
	}
	check.Flags().BoolVar(&prune, "prune", false, "Remove unplayable URLs from the file")
	check.Flags().StringVar(&proxy, "proxy", os.Getenv("EXTRACTOR_PROXY"), "Proxy for the extractor (env: EXTRACTOR_PROXY)")
	cmd.AddCommand(check)

	return cmd
}

// pruned is how many entries left the pool during the check.
func pruned(prune bool, bad []string) int {
	if prune {
		return len(bad)
	}
	return 0
}

func openPool(file string) (*autoplaylist.Pool, error) {
	store, err := datastore.Open(file)
	if err != nil {
		return nil, err
	}
	return autoplaylist.LoadPool(store)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
