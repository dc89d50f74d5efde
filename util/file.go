package util

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// EnsureDir creates the directory (and its parents) if it does not exist
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Wrapf(err, "create directory %s", dir)
	}
	return nil
}

// takes a save path and a variable number of strings and writes them to file separated by new lines
func WriteToFile(savePath string, content ...string) error {
	if err := EnsureDir(filepath.Dir(savePath)); err != nil {
		return err
	}
	if err := os.WriteFile(savePath, []byte(strings.Join(content, "\n")+"\n"), 0644); err != nil {
		return errors.Wrapf(err, "write %s", savePath)
	}
	return nil
}

// AppendToFile appends every string as a new line, creating the file if needed
func AppendToFile(savePath string, content ...string) error {
	if err := EnsureDir(filepath.Dir(savePath)); err != nil {
		return err
	}
	f, err := os.OpenFile(savePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrapf(err, "open %s", savePath)
	}

	defer f.Close()

	for _, s := range content {
		if _, err = f.WriteString(s + "\n"); err != nil {
			return errors.Wrapf(err, "append to %s", savePath)
		}
	}
	return nil
}
