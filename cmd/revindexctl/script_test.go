package main

import (
	"bytes"
	"context"
	"os"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestScripts runs every testdata/*.txt script against an engine whose
// only custom command, revindexctl, invokes this package's rootCmd
// in-process (no subprocess spawn needed, since cobra commands are
// cheap to re-run against a fresh os.Args-free invocation).
func TestScripts(t *testing.T) {
	engine := script.NewEngine()
	engine.Cmds = scripttest.DefaultCmds()
	engine.Conds = scripttest.DefaultConds()
	engine.Cmds["revindexctl"] = scriptCmdRevindexctl()

	ctx := context.Background()
	env := []string{"HOME=" + os.Getenv("HOME")}
	scripttest.Test(t, ctx, engine, env, "testdata/*.txt")
}

func scriptCmdRevindexctl() script.Cmd {
	return script.Command(
		script.CmdUsage{
			Summary: "run revindexctl",
			Args:    "args...",
		},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			var stdout, stderr bytes.Buffer
			rootCmd.SetArgs(args)
			rootCmd.SetOut(&stdout)
			rootCmd.SetErr(&stderr)
			err := rootCmd.Execute()
			return func(*script.State) (string, string, error) {
				return stdout.String(), stderr.String(), err
			}, nil
		},
	)
}
