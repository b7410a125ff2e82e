// Package datadir lays out the daemon's data directory and resolves where
// its configuration comes from.
package datadir

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wpphub.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wpphub")
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// Layout names the files under one data directory.
type Layout struct {
	Root string
}

// New returns the layout rooted at dir, or at BaseDir when dir is empty.
func New(dir string) Layout {
	if dir == "" {
		dir = BaseDir()
	}
	return Layout{Root: dir}
}

// HubDBPath returns the hub-owned database with clients, messages, chats,
// contacts and credentials.
func (l Layout) HubDBPath() string {
	return filepath.Join(l.Root, "hub.db")
}

// DevicesDBPath returns the whatsmeow device container shared by all clients.
func (l Layout) DevicesDBPath() string {
	return filepath.Join(l.Root, "devices.db")
}

// LockPath returns the daemon lock file path.
func (l Layout) LockPath() string {
	return filepath.Join(l.Root, "LOCK")
}

// LogDir returns the log directory.
func (l Layout) LogDir() string {
	return filepath.Join(l.Root, "logs")
}

// LogPath returns the daemon log file path.
func (l Layout) LogPath() string {
	return filepath.Join(l.LogDir(), "wpphubd.log")
}

// Ensure creates the directory tree with proper permissions.
func (l Layout) Ensure() error {
	for _, d := range []string{l.Root, l.LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
