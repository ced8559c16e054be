package manifest

import (
	"fmt"
	"os/exec"
	"strings"
)

// runGit executes one git command in dir (empty for commands like
// clone that take their target as an argument) and returns trimmed
// stdout. Failures carry git's combined output in the error.
func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func gitClone(url, dest string) error {
	_, err := runGit("", "clone", "--quiet", url, dest)
	return err
}

func gitFetch(dir string) error {
	_, err := runGit(dir, "fetch", "--quiet", "--all", "--tags")
	return err
}

func gitCheckout(dir, ref string) error {
	_, err := runGit(dir, "checkout", "--quiet", ref)
	return err
}

func gitCurrentCommit(dir string) (string, error) {
	return runGit(dir, "rev-parse", "HEAD")
}
