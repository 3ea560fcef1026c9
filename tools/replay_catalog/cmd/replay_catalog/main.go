package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	replaycatalog "squadfire/battlecore/tools/replay_catalog"
)

func main() {
	root := flag.String("dir", ".", "directory containing replay bundles")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := replaycatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := replaycatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		h := entry.Header
		fmt.Printf("%s (schema %d)\n", h.MissionID, h.SchemaVersion)
		if h.Scenario != "" {
			fmt.Printf("  scenario: %s\n", h.Scenario)
		}
		fmt.Printf("  seed: %d\n  events: %d, turn frames: %d\n", h.Seed, h.Events, h.Turns)
		if len(h.Rules) > 0 {
			keys := make([]string, 0, len(h.Rules))
			for key := range h.Rules {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			fmt.Printf("  rules:\n")
			for _, key := range keys {
				fmt.Printf("    %s: %d\n", key, h.Rules[key])
			}
		}
		fmt.Printf("  bundle: %s\n", entry.ReplayPath)
	}
}
