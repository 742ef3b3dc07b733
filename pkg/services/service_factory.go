package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-xattrfs/internal/config"
	"github.com/deploymenttheory/go-xattrfs/internal/inode"
	"github.com/deploymenttheory/go-xattrfs/internal/interfaces"
	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/search"
	xattrs "github.com/deploymenttheory/go-xattrfs/internal/services"
	"github.com/deploymenttheory/go-xattrfs/internal/store"
	"github.com/deploymenttheory/go-xattrfs/internal/trans"
)

// ServiceFactory opens the item store described by a config and wires the
// lock manager, transactions, search index, inode table and attribute
// service on top of it.
type ServiceFactory struct {
	cfg    *config.Config
	logger *zap.Logger

	mu          sync.RWMutex
	store       interfaces.ItemStore
	locks       *locks.Manager
	trans       *trans.Manager
	search      *search.Index
	inodes      *inode.Table
	xattrs      *xattrs.Service
	initialized bool
}

// Common errors
var (
	ErrNotInitialized = errors.New("service factory not initialized")
)

// NewServiceFactory creates a factory for a validated config.
func NewServiceFactory(cfg *config.Config, logger *zap.Logger) *ServiceFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceFactory{cfg: cfg, logger: logger}
}

// Initialize opens the store and creates every service. Calling it again
// is a no-op.
func (sf *ServiceFactory) Initialize() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if sf.initialized {
		return nil
	}

	st, err := store.Open(sf.cfg.Store.Backend, sf.cfg.Store.Dir)
	if err != nil {
		return err
	}

	sf.store = st
	sf.locks = locks.NewManager(sf.cfg.Node(), sf.logger)
	sf.trans = trans.NewManager(st, sf.cfg.Transactions.MaxHolders, sf.logger)
	sf.search = search.NewIndex(st, sf.locks, sf.logger)
	sf.inodes = inode.NewTable(st, sf.locks, sf.trans, nil, sf.logger)

	svc, err := xattrs.NewService(xattrs.ServiceConfig{
		Store:         st,
		Locks:         sf.locks,
		Trans:         sf.trans,
		Search:        sf.search,
		FormatVersion: sf.cfg.FormatVersion,
		Logger:        sf.logger,
	})
	if err != nil {
		st.Close()
		return fmt.Errorf("creating attribute service: %w", err)
	}
	sf.xattrs = svc

	sf.initialized = true
	sf.logger.Sugar().Infow("services initialized",
		"backend", sf.cfg.Store.Backend, "node", sf.cfg.NodeID, "format_version", sf.cfg.FormatVersion)
	return nil
}

// XattrService returns the attribute service.
func (sf *ServiceFactory) XattrService() (xattrs.XattrService, error) {
	sf.mu.RLock()
	defer sf.mu.RUnlock()

	if !sf.initialized {
		return nil, ErrNotInitialized
	}
	return sf.xattrs, nil
}

// Inodes returns the inode table.
func (sf *ServiceFactory) Inodes() (*inode.Table, error) {
	sf.mu.RLock()
	defer sf.mu.RUnlock()

	if !sf.initialized {
		return nil, ErrNotInitialized
	}
	return sf.inodes, nil
}

// SearchIndex returns the search index.
func (sf *ServiceFactory) SearchIndex() (*search.Index, error) {
	sf.mu.RLock()
	defer sf.mu.RUnlock()

	if !sf.initialized {
		return nil, ErrNotInitialized
	}
	return sf.search, nil
}

// DropFile removes every attribute of a file and then the file's inode.
func (sf *ServiceFactory) DropFile(ctx context.Context, ino uint64) error {
	sf.mu.RLock()
	defer sf.mu.RUnlock()

	if !sf.initialized {
		return ErrNotInitialized
	}
	if err := sf.xattrs.Drop(ctx, ino); err != nil {
		return err
	}
	return sf.inodes.Delete(ctx, ino)
}

// Sync commits the open transaction.
func (sf *ServiceFactory) Sync(ctx context.Context) error {
	sf.mu.RLock()
	defer sf.mu.RUnlock()

	if !sf.initialized {
		return ErrNotInitialized
	}
	return sf.trans.Sync(ctx)
}

// Shutdown commits outstanding changes and closes the store.
func (sf *ServiceFactory) Shutdown(ctx context.Context) error {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if !sf.initialized {
		return nil
	}

	syncErr := sf.trans.Sync(ctx)
	closeErr := sf.store.Close()

	sf.store = nil
	sf.locks = nil
	sf.trans = nil
	sf.search = nil
	sf.inodes = nil
	sf.xattrs = nil
	sf.initialized = false

	return errors.Join(syncErr, closeErr)
}

// IsInitialized returns whether the factory has been initialized
func (sf *ServiceFactory) IsInitialized() bool {
	sf.mu.RLock()
	defer sf.mu.RUnlock()
	return sf.initialized
}
