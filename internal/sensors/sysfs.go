package sensors

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// readValue reads a single numeric sysfs attribute.
func readValue(dir, name string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s", name)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid value in %s", name)
	}
	return v, nil
}

// checkDir returns an error if dir does not exist or lacks any of attrs.
func checkDir(dir string, attrs ...string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "sensor %s not found", dir)
	}
	if !info.IsDir() {
		return errors.Errorf("sensor path %s is not a directory", dir)
	}
	for _, attr := range attrs {
		if _, err := os.Stat(filepath.Join(dir, attr)); err != nil {
			return errors.Wrapf(err, "sensor %s has no %s", dir, attr)
		}
	}
	return nil
}
