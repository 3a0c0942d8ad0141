package config

import "fmt"

// ChangeSet describes what changed between two configs. Only the log level
// can be applied to a running relay; everything else is reported so the
// operator knows a restart is needed.
type ChangeSet struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

// Empty reports whether nothing relevant changed.
func (c ChangeSet) Empty() bool {
	return !c.LogLevelChanged && len(c.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ChangeSet {
	var c ChangeSet

	if old.Server.LogLevel != new.Server.LogLevel {
		c.LogLevelChanged = true
		c.NewLogLevel = new.Server.LogLevel
	}

	restart := func(name string) {
		c.RestartRequired = append(c.RestartRequired, name)
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		restart("server.listen_addr")
	}
	if old.Discord != new.Discord {
		restart("discord")
	}
	if old.Source != new.Source {
		restart("source")
	}
	if old.Capture != new.Capture {
		restart("capture")
	}
	if old.Buffer != new.Buffer {
		restart("buffer")
	}
	if old.Retry != new.Retry {
		restart("retry")
	}

	return c
}

// String renders the change set for logging.
func (c ChangeSet) String() string {
	if c.Empty() {
		return "no effective changes"
	}
	s := ""
	if c.LogLevelChanged {
		s = fmt.Sprintf("log level set to %s", c.NewLogLevel)
	}
	for _, name := range c.RestartRequired {
		if s != "" {
			s += ", "
		}
		s += name + " (restart required)"
	}
	return s
}
