package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	replayplayer "squadfire/battlecore/tools/replay_player"
)

func main() {
	path := flag.String("path", "", "Path to a replay directory or manifest.json")
	asJSON := flag.Bool("json", false, "emit the summary as JSON")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}

	summary, err := replayplayer.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	//1.- Text for terminals, JSON for pipelines.
	if !*asJSON {
		if err := replayplayer.WriteText(os.Stdout, summary); err != nil {
			fmt.Fprintln(os.Stderr, "write error:", err)
			os.Exit(3)
		}
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
}
