package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Config   string `short:"c" help:"Config file path (defaults to ./loom.toml when present)"`
	LogLevel string `help:"Log level override (debug, info, warn, error)"`

	Run      RunCmd      `cmd:"" help:"Execute every node of a plan"`
	Step     StepCmd     `cmd:"" help:"Execute a plan one node at a time"`
	Validate ValidateCmd `cmd:"" help:"Validate a plan document"`
	Tools    ToolsCmd    `cmd:"" help:"List the built-in tools"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// RunCmd executes a plan until it completes or fails.
type RunCmd struct {
	Plan      string `arg:"" help:"Plan file (JSON or YAML)"`
	Message   string `short:"m" required:"" help:"User message that seeds the main thread"`
	ToolLimit int    `short:"l" help:"Default tool invocation limit; 0 keeps the configured value, negative is unlimited"`
	Thread    string `short:"t" default:"main" help:"Thread whose final message is printed"`
	Events    bool   `short:"e" help:"Print session events while the plan runs"`
	Inspect   bool   `help:"Dump every node context after the run"`
}

// StepCmd executes nodes one at a time and prints each node context.
type StepCmd struct {
	Plan      string   `arg:"" help:"Plan file (JSON or YAML)"`
	Message   string   `short:"m" required:"" help:"User message that seeds the main thread"`
	Nodes     []string `short:"n" help:"Node ids to execute, in order; defaults to every eligible node"`
	ToolLimit int      `short:"l" help:"Default tool invocation limit; 0 keeps the configured value, negative is unlimited"`
}

// ValidateCmd checks a plan without executing it.
type ValidateCmd struct {
	Plan  string `arg:"" help:"Plan file (JSON or YAML)"`
	Tools bool   `help:"Also require every referenced tool to be a built-in tool"`
}

// ToolsCmd lists the built-in tools.
type ToolsCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
