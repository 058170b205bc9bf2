package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"livecast/internal/browser"
	"livecast/internal/config"
	"livecast/internal/prompts"
)

var forceInit bool

// doctorCmd checks the environment before going live.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check external tools, config and prompt instructions",
	RunE:  runDoctor,
}

// initCmd writes a default config into the workspace.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config to the workspace",
	RunE:  runInit,
}

type check struct {
	name   string
	detail string
	ok     bool
}

// doctorChecks runs every check against cfg.
func doctorChecks(cfg *config.Config, ws string, lookPath func(string) (string, error), chrome func(string) (string, bool)) []check {
	var checks []check

	for _, bin := range []string{cfg.Audio.FFmpegBin, cfg.Audio.FFprobeBin} {
		p, err := lookPath(bin)
		if err != nil {
			checks = append(checks, check{name: bin, detail: "not found in PATH"})
			continue
		}
		checks = append(checks, check{name: bin, detail: p, ok: true})
	}

	if p, ok := chrome(cfg.Browser.Bin); ok {
		checks = append(checks, check{name: "chrome", detail: p, ok: true})
	} else {
		checks = append(checks, check{name: "chrome", detail: "no browser binary found"})
	}

	if err := cfg.Validate(); err != nil {
		checks = append(checks, check{name: "config", detail: err.Error()})
	} else {
		checks = append(checks, check{name: "config", detail: "valid", ok: true})
	}

	catalog, err := prompts.Default()
	if err == nil {
		catalog, err = catalog.WithOverrides(prompts.OverridesDir(ws))
	}
	if err != nil {
		return append(checks, check{name: "prompts", detail: err.Error()})
	}
	for _, sc := range cfg.Collection.Scenes {
		name := "instructions " + sc.Instructions
		if _, err := catalog.Instructions(sc.Instructions); err != nil {
			checks = append(checks, check{name: name, detail: err.Error()})
			continue
		}
		checks = append(checks, check{name: name, detail: "scene " + sc.Name, ok: true})
	}
	return checks
}

func printChecks(w io.Writer, checks []check) int {
	failed := 0
	for _, c := range checks {
		mark := "ok"
		if !c.ok {
			mark = "FAIL"
			failed++
		}
		fmt.Fprintf(w, "%-4s %-28s %s\n", mark, c.name, c.detail)
	}
	return failed
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadConfig()
	if err != nil {
		return err
	}
	checks := doctorChecks(cfg, ws, exec.LookPath, browser.LookPath)
	if failed := printChecks(cmd.OutOrStdout(), checks); failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	path := resolveConfigPath(ws)
	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	if err := os.MkdirAll(prompts.OverridesDir(ws), 0755); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
