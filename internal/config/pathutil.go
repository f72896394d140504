package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// ProjectRoot locates the repository root so relative config paths keep
// working regardless of the process working directory. It walks upward from
// this source file until a go.mod or .git entry marks the root and falls
// back to the working directory for built binaries.
func ProjectRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if ok {
		if root := rootAbove(filepath.Dir(file)); root != "" {
			return root, nil
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return ".", err
	}
	return wd, nil
}

// ProjectPath joins the project root with the provided relative path.
func ProjectPath(rel string) (string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

func rootAbove(dir string) string {
	for {
		for _, marker := range []string{"go.mod", ".git"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
