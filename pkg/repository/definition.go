package repository

import "github.com/auriora/timelocker/pkg/engine"

func intp(i int) *int { return &i }

// DefaultEngineDefinition builds the CommandDefinition a Repository
// uses when the caller doesn't supply one of its own, covering every
// subcommand §4.3's proxy operations need. Callers driving a different
// engine binary with a different flag grammar can supply their own.
func DefaultEngineDefinition() *engine.CommandDefinition {
	return &engine.CommandDefinition{
		Name: "snapshot-engine",
		Subcommands: map[string]*engine.CommandDefinition{
			"init": {
				Name: "init",
			},
			"backup": {
				Name: "backup",
				Parameters: map[string]*engine.Parameter{
					"json": {Name: "json", Style: engine.StyleDoubleDash, Position: intp(0)},
					"tag":  {Name: "tag", Style: engine.StyleSeparate, Position: intp(1)},
				},
				// Paths and excludes come from the file selection's own
				// ToEngineArgs() and are appended after Build, not
				// declared here as synopsis params (the selection can
				// carry an arbitrary number of each).
			},
			"snapshots": {
				Name: "snapshots",
				Parameters: map[string]*engine.Parameter{
					"json": {Name: "json", Style: engine.StyleDoubleDash, Position: intp(0)},
					"tag":  {Name: "tag", Style: engine.StyleSeparate, Position: intp(1)},
				},
			},
			"restore": {
				Name: "restore",
				Parameters: map[string]*engine.Parameter{
					"target":    {Name: "target", Style: engine.StyleSeparate, Position: intp(0)},
					"include":   {Name: "include", Style: engine.StyleSeparate, Position: intp(1)},
					"exclude":   {Name: "exclude", Style: engine.StyleSeparate, Position: intp(2)},
					"overwrite": {Name: "overwrite", Style: engine.StyleDoubleDash, Position: intp(3)},
					"json":      {Name: "json", Style: engine.StyleDoubleDash, Position: intp(4)},
				},
				SynopsisParams: []string{"snapshot-id"},
			},
			"check": {
				Name: "check",
				Parameters: map[string]*engine.Parameter{
					"read-data": {Name: "read-data", Style: engine.StyleDoubleDash, Position: intp(0)},
					"json":      {Name: "json", Style: engine.StyleDoubleDash, Position: intp(1)},
				},
			},
			"stats": {
				Name: "stats",
				Parameters: map[string]*engine.Parameter{
					"json": {Name: "json", Style: engine.StyleDoubleDash, Position: intp(0)},
				},
			},
			"forget": {
				Name: "forget",
				Parameters: map[string]*engine.Parameter{
					"prune": {Name: "prune", Style: engine.StyleDoubleDash, Position: intp(0)},
					"json":  {Name: "json", Style: engine.StyleDoubleDash, Position: intp(1)},
				},
				SynopsisParams: []string{"[snapshot-id]"},
			},
			"prune": {
				Name: "prune",
			},
			"version": {
				Name: "version",
			},
			"cat": {
				Name:           "cat",
				SynopsisParams: []string{"item"},
			},
		},
	}
}
