package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/drg911/htb-pro-card/internal/utils"
	"github.com/drg911/htb-pro-card/pkg/cache"
	"github.com/drg911/htb-pro-card/pkg/identifier"
	"github.com/drg911/htb-pro-card/pkg/service"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage cached profiles",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop a cached profile",
	Long:  "Drop the cached profile of --id (default: defaults.id). With --last-known-good the SQLite fallback slot is removed as well; --all together with it empties the table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawID, _ := cmd.Flags().GetString("id")
		lkg, _ := cmd.Flags().GetBool("last-known-good")
		all, _ := cmd.Flags().GetBool("all")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		id := identifier.Resolve(rawID, a.server.Defaults.Identifier)
		if id == "" && !all {
			return identifier.ErrMissingIdentifier
		}
		switch perr := a.persistentCache(); {
		case perr != nil && !lkg:
			return perr
		case perr != nil:
			utils.Log.Warnf("skipping TTL cache: %v", perr)
		case id != "":
			if err := a.svc.Invalidate(cmd.Context(), id); err != nil {
				return err
			}
			utils.Log.Infof("Cache cleared for %s", id)
		}

		if !lkg {
			return nil
		}
		if a.db == nil {
			return fmt.Errorf("--last-known-good needs cache.fallback=sqlite")
		}

		key := cache.Key(id)
		if all {
			key = ""
		}
		var n int64
		err = a.lock.WithLock(func() error {
			var err error
			n, err = a.db.DeleteLastKnownGood(cmd.Context(), key)
			return err
		})
		if err != nil {
			return err
		}
		utils.Log.Infof("Removed %d last-known-good entries", n)
		return nil
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the last-known-good profiles kept in SQLite",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openSQLite()
		if err != nil {
			return err
		}
		defer db.Close()

		slots, err := db.ListSlots(cmd.Context())
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			fmt.Println("No last-known-good profiles stored.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tNAME\tSTORED")
		for _, s := range slots {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Key, s.Name, s.StoredAt.Local().Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var cacheWarmCmd = &cobra.Command{
	Use:   "warm [id...]",
	Short: "Fetch profiles from the Labs API and store them in the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.persistentCache(); err != nil {
			if a.db == nil {
				return err
			}
			utils.Log.Warnf("only the last-known-good slots will be kept: %v", err)
		}

		ids := make([]string, 0, len(args))
		for _, arg := range args {
			if id := identifier.Resolve(arg, ""); id != "" {
				ids = append(ids, id)
			}
		}

		var failed []string
		results := a.svc.WarmAll(cmd.Context(), ids, a.server.Labs, a.server.Defaults.TTL, concurrency, func(r service.WarmResult) {
			if r.Err == nil {
				utils.Log.Infof("warmed %s (%s)", r.Identifier, r.Profile.Name)
			}
		})
		for _, r := range results {
			if r.Err != nil {
				failed = append(failed, r.Identifier)
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("failed to warm %d of %d profiles: %s", len(failed), len(results), strings.Join(failed, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd, cacheListCmd, cacheWarmCmd)

	cacheClearCmd.Flags().String("id", "", "HTB user id or profile URL (default: defaults.id)")
	cacheClearCmd.Flags().Bool("last-known-good", false, "Also remove the SQLite last-known-good slot")
	cacheClearCmd.Flags().Bool("all", false, "With --last-known-good, remove every slot")

	cacheWarmCmd.Flags().IntP("concurrency", "c", 4, "Parallel fetches")
}
