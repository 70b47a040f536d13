package paths

import (
	"os"
	"path/filepath"
	"sync"
)

const defaultDirName = "javafmtd"

var (
	root string
	once sync.Once
)

func resolveRoot() {
	candidate := os.Getenv("JAVAFMTD_STATE_DIR")
	if candidate == "" {
		base, err := os.UserCacheDir()
		if err != nil || base == "" {
			base = os.TempDir()
		}
		candidate = filepath.Join(base, defaultDirName)
	}
	root = filepath.Clean(candidate)
}

// Root returns the base directory holding daemon state (launch journal, runtime jars).
func Root() string {
	once.Do(resolveRoot)
	return root
}

// Join resolves a path relative to the state root.
func Join(elements ...string) string {
	all := append([]string{Root()}, elements...)
	return filepath.Join(all...)
}

func RuntimeDir() string  { return Join("runtime") }
func JournalPath() string { return Join("journal.db") }

// DefaultServiceJar is where `javafmtd` expects the packaged format service.
func DefaultServiceJar() string {
	return filepath.Join(RuntimeDir(), "spring-javaformat-format-service-0.0.16-SNAPSHOT.jar")
}

// DefaultFormatterJar is the stdin/stdout formatter used by the one-shot backend.
func DefaultFormatterJar() string {
	return filepath.Join(RuntimeDir(), "spring-java-format.jar")
}

// SetRoot pins the state root ahead of the environment. Call before the
// first Root lookup.
func SetRoot(dir string) {
	if dir == "" {
		return
	}
	once.Do(func() {})
	root = filepath.Clean(dir)
}

// SetRootForTest resets the cached root so tests can override JAVAFMTD_STATE_DIR.
func SetRootForTest(dir string) {
	if dir != "" {
		os.Setenv("JAVAFMTD_STATE_DIR", dir)
	}
	root = ""
	once = sync.Once{}
}
