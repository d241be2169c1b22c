package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/autobib/autobib/config"
	"github.com/autobib/autobib/edittree"
	"github.com/autobib/autobib/provider"
	"github.com/autobib/autobib/replaycache"
	"github.com/autobib/autobib/resolve"
	"github.com/autobib/autobib/store"
)

// appContext bundles the core objects a command needs, built once from the
// parsed global flags, rather than threading individual flags through
// every command.
type appContext struct {
	cfg        *config.Config
	configPath string
	db         *store.Store
	registry   *provider.Registry
	resolver   *resolve.Resolver
	edit       *edittree.Manager
	cache      *replaycache.Cache
	log        *logrus.Logger
}

func (a *appContext) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func newAppContext(globals globalFlags) (*appContext, error) {
	log := logrus.New()
	log.Level = logrus.InfoLevel
	if globals.debug {
		log.Level = logrus.DebugLevel
	}

	cfg, err := loadConfig(globals.configFile)
	if err != nil {
		return nil, &configLoadError{err}
	}
	configPath := globals.configFile
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	if globals.noInteractive {
		cfg.NoInteractive = true
		if cfg.ConflictPolicy == "prompt" {
			cfg.ConflictPolicy = config.DefaultConflictPolicy
		}
	}

	dbPath := globals.databasePath
	if dbPath == "" {
		dbPath = defaultDatabasePath()
	}
	if err := ensureParentDir(dbPath); err != nil {
		return nil, &configLoadError{err}
	}
	db, err := store.Open(dbPath, log)
	if err != nil {
		return nil, err
	}

	var cache *replaycache.Cache
	cachePath := globals.responseCachePath
	if cachePath == "" {
		cachePath = defaultResponseCachePath()
	}
	if cachePath != "" {
		mode := replaycache.Record
		if globals.replayResponses {
			mode = replaycache.Replay
		}
		cache, err = replaycache.Open(cachePath, mode)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	registry := buildRegistry(cache)
	resolver := resolve.New(db, registry, log,
		resolve.WithOnInsertHooks(onInsertHooks(cfg)),
		resolve.WithAliasRules(aliasRules(cfg), cfg.CreateAlias),
	)

	return &appContext{
		cfg:        cfg,
		configPath: configPath,
		db:         db,
		registry:   registry,
		resolver:   resolver,
		edit:       edittree.New(db, log),
		cache:      cache,
		log:        log,
	}, nil
}

// configLoadError categorizes a config failure as spec §6's exit code 4.
type configLoadError struct{ err error }

func (e *configLoadError) Error() string { return e.err.Error() }
func (e *configLoadError) Unwrap() error { return e.err }

func loadConfig(path string) (*config.Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if _, err := os.Stat(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, err
		}
		// No config at the default location yet (default-config was never
		// run): fall back to defaults rather than forcing that step first.
		return config.Unmarshal(nil)
	}
	return config.LoadConfigFile(path)
}
