package log

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"pkgsynth/config"
)

// ListLogs prints the rotating run log and any per-package planning
// trace logs under cfg.LogsDir.
func ListLogs(cfg *config.Config) {
	fmt.Println("Run log:")
	fmt.Println("  pkgsynth.log")
	fmt.Println()
	fmt.Println("Per-package planning logs:")
	fmt.Println("  Use a database/name key (e.g. default/libfoo) to view one")
	fmt.Println()

	entries, err := os.ReadDir(cfg.LogsDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") || entry.Name() == "pkgsynth.log" {
			continue
		}
		pkgKey := strings.TrimSuffix(entry.Name(), ".log")
		pkgKey = strings.ReplaceAll(pkgKey, "___", "/")
		fmt.Printf("  %s\n", pkgKey)
	}
}

// ViewLog prints logName (relative to cfg.LogsDir) through a pager if
// one is available, or directly to stdout otherwise.
func ViewLog(cfg *config.Config, logName string) {
	logPath := filepath.Join(cfg.LogsDir, logName)
	viewFile(logPath)
}

// ViewPackageLog prints the per-package planning trace for pkgKey.
func ViewPackageLog(cfg *config.Config, pkgKey string) {
	filename := strings.ReplaceAll(pkgKey, "/", "___") + ".log"
	logPath := filepath.Join(cfg.LogsDir, filename)
	viewFile(logPath)
}

func viewFile(logPath string) {
	file, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		return
	}
	defer file.Close()

	if usePager() {
		viewWithPager(logPath)
		return
	}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
}

// usePager checks if a pager is available.
func usePager() bool {
	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = "less"
	}
	_, err := exec.LookPath(pager)
	return err == nil
}

// viewWithPager views a file using $PAGER (or less).
func viewWithPager(path string) {
	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = "less"
	}

	cmd := exec.Command(pager, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Run()
}

// TailLog shows the last N lines of a log file under cfg.LogsDir.
func TailLog(cfg *config.Config, logName string, lines int) {
	logPath := filepath.Join(cfg.LogsDir, logName)

	file, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		return
	}
	defer file.Close()

	var allLines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		allLines = append(allLines, scanner.Text())
	}

	start := len(allLines) - lines
	if start < 0 {
		start = 0
	}
	for i := start; i < len(allLines); i++ {
		fmt.Println(allLines[i])
	}
}

// GrepLog searches for pattern in a log file under cfg.LogsDir.
func GrepLog(cfg *config.Config, logName, pattern string) {
	logPath := filepath.Join(cfg.LogsDir, logName)

	file, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.Contains(line, pattern) {
			fmt.Printf("%d: %s\n", lineNum, line)
		}
	}
}
