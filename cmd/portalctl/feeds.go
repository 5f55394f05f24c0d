package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var feedsCmd = &cobra.Command{
	Use:   "feeds [category] [sub] [region]",
	Short: "Fetch the merged RSS items of a sidebar entry",
	Long:  `Without arguments lists the catalog. With a category and subkey prints its newest items.`,
	Args:  cobra.RangeArgs(0, 3),
	RunE:  runFeeds,
}

func init() {
	feedsCmd.Flags().Int("limit", 0, "maximum items (default 24)")
	feedsCmd.Flags().Bool("json", false, "output items as JSON")
	rootCmd.AddCommand(feedsCmd)
}

func runFeeds(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd, "warn")
	if err != nil {
		return err
	}
	defer rt.Close()

	f := rt.Feeds()
	w := cmd.OutOrStdout()
	if len(args) == 0 {
		for _, cat := range f.Catalog().Categories() {
			fmt.Fprintf(w, "%s: %s\n", cat, strings.Join(f.Catalog().Subkeys(cat), ", "))
		}
		return nil
	}
	if len(args) < 2 {
		return fmt.Errorf("subkey required: %s", strings.Join(f.Catalog().Subkeys(args[0]), ", "))
	}
	region := ""
	if len(args) == 3 {
		region = args[2]
	}

	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 1 {
		limit = rt.Config.Feeds.Limit
	}
	items, err := f.Fetch(cmd.Context(), args[0], args[1], region, limit)
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	for _, it := range items {
		fmt.Fprintf(w, "%s  [%s]\n", it.Title, it.Source)
		if it.PublishedAt != "" {
			fmt.Fprintf(w, "    %s\n", it.PublishedAt)
		}
		fmt.Fprintf(w, "    %s\n", it.URL)
	}
	return nil
}
