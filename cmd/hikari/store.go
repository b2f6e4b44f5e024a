package main

import (
	"fmt"

	"hikari-hq/gateway/pkg/config"
	"hikari-hq/gateway/pkg/rule"
)

// openRuleStore opens the rule store named by cfg.Source.
func openRuleStore(cfg *config.RulesConfig) (rule.Store, error) {
	switch cfg.Source {
	case config.RulesSourceMemory:
		return rule.NewMemoryStore(cfg.Inline...)
	case config.RulesSourceFile:
		return rule.LoadFile(cfg.FilePath)
	case config.RulesSourceSQLite:
		return rule.NewSQLiteStore(rule.SQLiteConfig{
			Driver:      cfg.SQLite.Driver,
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported rules source %q", cfg.Source)
	}
}
