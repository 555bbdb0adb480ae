package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/newthinker/upbot/internal/config"
	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/exchange/upbit"
	"github.com/newthinker/upbot/internal/journal"
	"github.com/newthinker/upbot/internal/notifier"
	"github.com/newthinker/upbot/internal/notifier/email"
	"github.com/newthinker/upbot/internal/notifier/telegram"
	"github.com/newthinker/upbot/internal/notifier/webhook"
	"github.com/newthinker/upbot/internal/storage/archive"
	"go.uber.org/zap"
)

func newClient(cfg *config.Config, log *zap.Logger) *upbit.Client {
	return upbit.New(
		upbit.WithBaseURL(cfg.Exchange.BaseURL),
		upbit.WithCredentials(cfg.Exchange.AccessKey, cfg.Exchange.SecretKey),
		upbit.WithTimeout(cfg.Exchange.Timeout),
		upbit.WithRateLimit(cfg.Exchange.RequestsPerSecond),
		upbit.WithLogger(log),
	)
}

// openJournal returns nil when no journal path is configured.
func openJournal(cfg *config.Config) (*journal.SQLite, error) {
	if cfg.Storage.JournalPath == "" {
		return nil, nil
	}
	j, err := journal.NewSQLite(cfg.Storage.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return j, nil
}

// openArchiver returns nil when no archive is configured.
func openArchiver(cfg *config.Config, log *zap.Logger) (*archive.Archiver, error) {
	a := cfg.Storage.Archive
	if a.Type == "" && a.Path == "" {
		return nil, nil
	}
	store, err := archive.New(a)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return archive.NewArchiver(store, log), nil
}

// buildNotifiers initializes every enabled notifier section.
func buildNotifiers(sections map[string]config.NotifierConfig, log *zap.Logger) (*notifier.Registry, error) {
	reg := notifier.NewRegistry()
	for _, name := range slices.Sorted(maps.Keys(sections)) {
		nc := sections[name]
		if !nc.Enabled {
			continue
		}

		var n notifier.Notifier
		switch name {
		case "telegram":
			n = telegram.New("", "")
		case "email":
			n = email.New("", 0, "", "", "", nil)
		case "webhook":
			n = webhook.New("", nil)
		default:
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown notifier %q", name))
		}

		if err := n.Init(nc); err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, err)
		}
		if err := reg.Register(n); err != nil {
			return nil, err
		}
		log.Info("notifier enabled", zap.String("notifier", name))
	}
	return reg, nil
}
