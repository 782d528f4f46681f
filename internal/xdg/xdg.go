package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Dirs holds the XDG base directories rayjudge reads configuration from.
type Dirs struct {
	configHome string
	configDirs []string
}

func New() *Dirs {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
		if homeDir == "" {
			homeDir = "/tmp"
		}
	}

	d := &Dirs{}

	d.configHome = os.Getenv("XDG_CONFIG_HOME")
	if d.configHome == "" {
		d.configHome = filepath.Join(homeDir, ".config")
	}

	configDirsEnv := os.Getenv("XDG_CONFIG_DIRS")
	if configDirsEnv == "" {
		d.configDirs = []string{"/etc/xdg"}
	} else {
		d.configDirs = filepath.SplitList(configDirsEnv)
	}

	return d
}

func (d *Dirs) ConfigHome() string {
	return d.configHome
}

// ConfigDirs returns the preference-ordered base directories for configuration files.
func (d *Dirs) ConfigDirs() []string {
	return append([]string{d.configHome}, d.configDirs...)
}

func (d *Dirs) AppConfigDir(appName string) string {
	return filepath.Join(d.configHome, appName)
}

// FindConfig returns the first existing appName/fileName under ConfigDirs.
// The boolean is false when no directory holds the file.
func (d *Dirs) FindConfig(appName, fileName string) (string, bool, error) {
	for _, dir := range d.ConfigDirs() {
		path := filepath.Join(dir, appName, fileName)
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", false, err
		}
		if info.IsDir() {
			continue
		}
		return path, true, nil
	}
	return "", false, nil
}
