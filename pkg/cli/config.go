package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/convgen/pkg/adapter"
	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/policy"
	"github.com/m-mizutani/convgen/pkg/repository"
	"github.com/m-mizutani/convgen/pkg/usecase/orchestrator"
	"github.com/m-mizutani/convgen/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	storeFile      = "file"
	storeSQLite    = "sqlite"
	storeFirestore = "firestore"
	storeGCS       = "gcs"
	storeMemory    = "memory"

	defaultPageBaseURL = "http://localhost:3000"
)

// config holds configuration values
type config struct {
	configPath string
	logLevel   string

	// Generation service
	baseURL     string
	pageBaseURL string
	model       string
	timeout     time.Duration
	policyDir   string

	// History store
	store      string
	path       string
	project    string
	database   string
	collection string
	bucket     string
	prefix     string
}

// fileConfig is the YAML layout of --config
type fileConfig struct {
	BaseURL     string `yaml:"base_url"`
	PageBaseURL string `yaml:"page_base_url"`
	Model       string `yaml:"model"`
	LogLevel    string `yaml:"log_level"`
	Timeout     string `yaml:"timeout"`
	PolicyDir   string `yaml:"policy_dir"`
	Store       struct {
		Backend    string `yaml:"backend"`
		Path       string `yaml:"path"`
		Project    string `yaml:"project"`
		Database   string `yaml:"database"`
		Collection string `yaml:"collection"`
		Bucket     string `yaml:"bucket"`
		Prefix     string `yaml:"prefix"`
	} `yaml:"store"`
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML config file",
			Sources:     cli.EnvVars("CONVGEN_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("CONVGEN_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "Base URL of the page generation service",
			Value:       adapter.DefaultBaseURL,
			Sources:     cli.EnvVars("CONVGEN_BASE_URL"),
			Destination: &cfg.baseURL,
		},
		&cli.StringFlag{
			Name:        "page-base-url",
			Usage:       "Base URL generated pages are served under",
			Value:       defaultPageBaseURL,
			Sources:     cli.EnvVars("CONVGEN_PAGE_BASE_URL"),
			Destination: &cfg.pageBaseURL,
		},
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "Generation model",
			Sources:     cli.EnvVars("CONVGEN_MODEL"),
			Destination: &cfg.model,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Timeout for each request to the generation service",
			Value:       60 * time.Second,
			Sources:     cli.EnvVars("CONVGEN_TIMEOUT"),
			Destination: &cfg.timeout,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego request policies (package convgen.request)",
			Sources:     cli.EnvVars("CONVGEN_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// storeFlags returns flags selecting the history store
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "History store backend (file, sqlite, firestore, gcs, memory)",
			Value:       storeFile,
			Sources:     cli.EnvVars("CONVGEN_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "history-path",
			Usage:       "History file or SQLite database path (default ~/.convgen/history.json or history.db)",
			Sources:     cli.EnvVars("CONVGEN_HISTORY_PATH"),
			Destination: &cfg.path,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID for the firestore store",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "collection",
			Usage:       "Firestore collection for history entries",
			Value:       "convgen_history",
			Sources:     cli.EnvVars("CONVGEN_FIRESTORE_COLLECTION"),
			Destination: &cfg.collection,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for the gcs store",
			Sources:     cli.EnvVars("CONVGEN_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "prefix",
			Usage:       "Object prefix for the gcs store",
			Sources:     cli.EnvVars("CONVGEN_PREFIX"),
			Destination: &cfg.prefix,
		},
	}
}

// load applies the YAML config file to every option not set by flag or env,
// then installs the logger into ctx
func (cfg *config) load(ctx context.Context, c *cli.Command) (context.Context, error) {
	if cfg.configPath != "" {
		data, err := os.ReadFile(cfg.configPath)
		if err != nil {
			return ctx, goerr.Wrap(err, "failed to read config file", goerr.V("path", cfg.configPath))
		}

		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return ctx, goerr.Wrap(err, "failed to parse config file", goerr.V("path", cfg.configPath))
		}

		if err := cfg.apply(&fc, c.IsSet); err != nil {
			return ctx, err
		}
	}

	logger := logging.New(cfg.logLevel, c.Root().ErrWriter)
	return logging.With(ctx, logger), nil
}

// apply copies file values into cfg for options isSet reports as unset
func (cfg *config) apply(fc *fileConfig, isSet func(name string) bool) error {
	set := func(name string, dst *string, v string) {
		if v != "" && !isSet(name) {
			*dst = v
		}
	}

	set("base-url", &cfg.baseURL, fc.BaseURL)
	set("page-base-url", &cfg.pageBaseURL, fc.PageBaseURL)
	set("model", &cfg.model, fc.Model)
	set("log-level", &cfg.logLevel, fc.LogLevel)
	set("policy-dir", &cfg.policyDir, fc.PolicyDir)
	set("store", &cfg.store, fc.Store.Backend)
	set("history-path", &cfg.path, fc.Store.Path)
	set("project", &cfg.project, fc.Store.Project)
	set("database", &cfg.database, fc.Store.Database)
	set("collection", &cfg.collection, fc.Store.Collection)
	set("bucket", &cfg.bucket, fc.Store.Bucket)
	set("prefix", &cfg.prefix, fc.Store.Prefix)

	if fc.Timeout != "" && !isSet("timeout") {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return goerr.Wrap(err, "invalid timeout in config file", goerr.V("timeout", fc.Timeout))
		}
		cfg.timeout = d
	}
	return nil
}

// newAPI creates a new generation service client
func (cfg *config) newAPI() (*adapter.APIClient, error) {
	api, err := adapter.NewAPI(cfg.baseURL, adapter.WithTimeout(cfg.timeout))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create API client")
	}
	return api, nil
}

type closeFunc func() error

func noClose() error { return nil }

// newStore creates the configured history store
func (cfg *config) newStore(ctx context.Context) (repository.HistoryStore, closeFunc, error) {
	switch cfg.store {
	case storeFile, "":
		path := cfg.path
		if path == "" {
			p, err := repository.DefaultFilePath()
			if err != nil {
				return nil, nil, err
			}
			path = p
		}
		store, err := repository.NewFile(path)
		if err != nil {
			return nil, nil, err
		}
		return store, noClose, nil

	case storeSQLite:
		path := cfg.path
		if path == "" {
			p, err := repository.DefaultFilePath()
			if err != nil {
				return nil, nil, err
			}
			path = strings.TrimSuffix(p, ".json") + ".db"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create sqlite directory", goerr.V("path", path))
		}
		store, err := repository.NewSQLite(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case storeFirestore:
		store, err := repository.NewFirestore(ctx, cfg.project, cfg.database, repository.WithCollection(cfg.collection))
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create firestore store")
		}
		return store, store.Close, nil

	case storeGCS:
		if cfg.bucket == "" {
			return nil, nil, goerr.New("bucket is required for gcs store")
		}
		storage, err := adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create storage")
		}
		return repository.NewObject(storage, cfg.prefix), noClose, nil

	case storeMemory:
		return repository.NewMemory(), noClose, nil

	default:
		return nil, nil, goerr.New("unknown store backend", goerr.V("store", cfg.store))
	}
}

// newOrchestrator wires API client and store. The returned closeFunc releases the store.
func (cfg *config) newOrchestrator(ctx context.Context, api adapter.API, mode model.InputMode) (*orchestrator.Orchestrator, closeFunc, error) {
	store, closer, err := cfg.newStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithModel(cfg.model),
		orchestrator.WithMode(mode),
	}
	if cfg.policyDir != "" {
		engine, err := policy.Load(ctx, cfg.policyDir)
		if err != nil {
			closer()
			return nil, nil, err
		}
		opts = append(opts, orchestrator.WithPolicy(engine))
	}

	orch, err := orchestrator.New(ctx, api, store, opts...)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return orch, closer, nil
}
