package main

import "fmt"

// Set with -ldflags "-X main.gitSHA1=..." at build time.
var (
	gitSHA1   string = "unknown"
	gitDirty  string = "unknown"
	buildID   string = "unknown"
	buildDate string = "unknown"
)

func versionString() string {
	return fmt.Sprintf("linechat git:%s dirty:%s build:%s date:%s", gitSHA1, gitDirty, buildID, buildDate)
}
