package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"accounting-reconciliation-engine/cmd/reconengine/config"
	"accounting-reconciliation-engine/internal/exceptions"
	"accounting-reconciliation-engine/internal/feed"
	"accounting-reconciliation-engine/internal/matcher"
	"accounting-reconciliation-engine/internal/notify"
	"accounting-reconciliation-engine/internal/reconciler"
	"accounting-reconciliation-engine/internal/store"
	"accounting-reconciliation-engine/internal/thresholds"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
	"accounting-reconciliation-engine/pkg/logger"
)

// environment wires the store and the engine components for one command
// invocation. With a database URL it runs against Postgres; without one it
// runs against an in-memory store seeded from the demo data directory.
type environment struct {
	store      store.Store
	service    *reconciler.Service
	thresholds *thresholds.Manager
	exceptions *exceptions.Manager
	closeStore func() error
}

// close releases the store connection if one was opened
func (e *environment) close() {
	if e.closeStore == nil {
		return
	}
	if err := e.closeStore(); err != nil {
		logger.GetGlobalLogger().WithComponent("cli").WithError(err).Warn("Failed to close store")
	}
}

// newEnvironment builds the engine against the configured store. The tenant
// is needed only when demo files are loaded; uuid.Nil skips seeding.
func newEnvironment(ctx context.Context, tenantID uuid.UUID, profile string, batchLimit, workers int) (*environment, error) {
	engineStore, closeStore, err := openStore(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	matcherConfig, err := config.CreateMatcherConfig(profile)
	if err != nil {
		if closeStore != nil {
			closeStore()
		}
		return nil, engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, "profile", profile, err)
	}

	thresholdManager := thresholds.NewManager(engineStore)
	exceptionManager := exceptions.NewManager(engineStore)
	finder := matcher.NewFinder(engineStore, matcher.NewEngine(matcherConfig))

	service, err := reconciler.NewService(
		engineStore,
		finder,
		thresholdManager,
		exceptionManager,
		notify.NewLogSender(),
		config.CreateReconcilerConfig(batchLimit, workers),
	)
	if err != nil {
		if closeStore != nil {
			closeStore()
		}
		return nil, err
	}

	return &environment{
		store:      engineStore,
		service:    service,
		thresholds: thresholdManager,
		exceptions: exceptionManager,
		closeStore: closeStore,
	}, nil
}

// openStore connects to Postgres when a database URL is configured, and
// otherwise builds an in-memory store from the demo data directory.
func openStore(ctx context.Context, tenantID uuid.UUID) (store.Store, func() error, error) {
	if dsn := viper.GetString("database_url"); dsn != "" {
		gormStore, err := store.Open(dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := gormStore.AutoMigrate(); err != nil {
			gormStore.Close()
			return nil, nil, err
		}
		if err := gormStore.Ping(ctx); err != nil {
			gormStore.Close()
			return nil, nil, err
		}
		return gormStore, gormStore.Close, nil
	}

	memStore := store.NewMemoryStore()

	dataDir := viper.GetString("data_dir")
	if dataDir == "" {
		return memStore, nil, nil
	}
	if tenantID == uuid.Nil {
		return nil, nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "tenant",
			"", fmt.Errorf("a tenant is required to load demo files"))
	}
	if err := loadDemoData(ctx, memStore, tenantID, dataDir); err != nil {
		return nil, nil, err
	}

	return memStore, nil, nil
}

// loadDemoData seeds the in-memory store from bank.csv and documents.csv in
// the data directory. Either file may be absent.
func loadDemoData(ctx context.Context, memStore store.Store, tenantID uuid.UUID, dataDir string) error {
	log := logger.GetGlobalLogger().WithComponent("cli")

	bankFile := filepath.Join(dataDir, "bank.csv")
	if _, err := os.Stat(bankFile); err == nil {
		reader, err := feed.NewBankCSVReader(tenantID, nil, nil)
		if err != nil {
			return err
		}
		txs, stats, err := reader.ReadFile(bankFile)
		if err != nil {
			return err
		}
		if err := memStore.CreateTransactions(ctx, txs); err != nil {
			return err
		}
		log.WithField("stats", stats.String()).Debug("Loaded demo bank transactions")
	}

	docsFile := filepath.Join(dataDir, "documents.csv")
	if _, err := os.Stat(docsFile); err == nil {
		reader, err := feed.NewDocumentCSVReader(tenantID, nil, nil)
		if err != nil {
			return err
		}
		docs, stats, err := reader.ReadFile(docsFile)
		if err != nil {
			return err
		}
		if err := memStore.CreateDocuments(ctx, docs); err != nil {
			return err
		}
		log.WithField("stats", stats.String()).Debug("Loaded demo documents")
	}

	return nil
}

// parseTenant parses the required --tenant flag
func parseTenant(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "tenant", "", nil)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, engineerrors.ValidationError(engineerrors.CodeInvalidData, "tenant", value, err)
	}
	return id, nil
}

// parseID parses a UUID flag by name
func parseID(name, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, engineerrors.ValidationError(engineerrors.CodeMissingField, name, "", nil)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, engineerrors.ValidationError(engineerrors.CodeInvalidData, name, value, err)
	}
	return id, nil
}
