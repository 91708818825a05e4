package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jo-hoe/snapframe/internal/backend/blobstore"
	"github.com/jo-hoe/snapframe/internal/backend/codeminter"
	"github.com/jo-hoe/snapframe/internal/backend/composer"
	"github.com/jo-hoe/snapframe/internal/backend/database"
	"github.com/jo-hoe/snapframe/internal/backend/publisher"
	"github.com/jo-hoe/snapframe/internal/backend/supabase"
	"github.com/jo-hoe/snapframe/internal/camera"
	"github.com/jo-hoe/snapframe/internal/session"
)

const supabaseDriver = "supabase"

type CoreService struct {
	config    *ServiceConfig
	records   database.RecordStore
	storage   blobstore.Storage
	composer  *composer.Composer
	publisher *publisher.Publisher
	minter    *codeminter.Minter
	sessions  *SessionRegistry
	location  *time.Location
	now       func() time.Time
}

// NewCoreService wires the pipeline from config. Credentials are only needed when the
// hosted backend serves storage or records; pass nil otherwise.
func NewCoreService(ctx context.Context, config *ServiceConfig, creds *Credentials) (*CoreService, error) {
	opts, err := config.ComposerOptions()
	if err != nil {
		return nil, fmt.Errorf("invalid composition config: %w", err)
	}
	level, err := config.RecoveryLevel()
	if err != nil {
		return nil, err
	}

	storage, err := openStorage(config, creds)
	if err != nil {
		return nil, err
	}
	records, err := openRecordStore(ctx, config, creds)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	var asset composer.AssetSource
	if config.Composition.AssetLocation != "" {
		asset = composer.NewAssetSource(config.Composition.AssetLocation)
	}
	comp, err := composer.New(asset, opts)
	if err != nil {
		_ = storage.Close()
		_ = records.Close()
		return nil, err
	}

	service := &CoreService{
		config:    config,
		records:   records,
		storage:   storage,
		composer:  comp,
		publisher: publisher.New(storage, records, config.Origin),
		minter:    codeminter.New(config.Origin, config.Code.Size, level),
		location:  config.Location(),
		now:       time.Now,
	}
	service.sessions = NewSessionRegistry(session.Dependencies{
		Composer:  service.composer,
		Publisher: service.publisher,
		Minter:    service.minter,
	}, config.SessionSettings(), config.Session.IdleTimeout)

	slog.Info("Core: pipeline ready",
		"storage", storage.Name(),
		"database", config.Database.Type,
		"origin", config.Origin,
		"asset", config.Composition.AssetLocation)
	return service, nil
}

func openStorage(config *ServiceConfig, creds *Credentials) (blobstore.Storage, error) {
	storageConfig := config.Storage
	params := make(map[string]any, len(storageConfig.Params)+2)
	for k, v := range storageConfig.Params {
		params[k] = v
	}
	if storageConfig.Driver == supabaseDriver {
		if creds == nil {
			return nil, fmt.Errorf("storage driver %s: %w", supabaseDriver, ErrNotConfigured)
		}
		params["endpoint"] = creds.URL
		params["apiKey"] = creds.Key
	} else if base, _ := params["publicBaseUrl"].(string); strings.TrimSpace(base) == "" {
		// Locally stored binaries are served by this service under its public origin.
		params["publicBaseUrl"] = config.Origin
	}
	storageConfig.Params = params

	storage, err := blobstore.New(storageConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return storage, nil
}

func openRecordStore(ctx context.Context, config *ServiceConfig, creds *Credentials) (database.RecordStore, error) {
	if config.Database.Type != supabaseDriver {
		store, err := database.NewDatabase(ctx, config.Database.Type, config.Database.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return store, nil
	}
	if creds == nil {
		return nil, fmt.Errorf("database %s: %w", supabaseDriver, ErrNotConfigured)
	}
	client, err := supabase.NewClient(supabase.Config{Endpoint: creds.URL, APIKey: creds.Key})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return client, nil
}

func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// UsesHostedBackend reports whether storage or records live on the hosted backend.
func (service *CoreService) UsesHostedBackend() bool {
	return service.config.Storage.Driver == supabaseDriver || service.config.Database.Type == supabaseDriver
}

func (service *CoreService) Sessions() *SessionRegistry {
	return service.sessions
}

// PublishedPhoto looks up a record by id. A missing record is database.ErrNotFound.
func (service *CoreService) PublishedPhoto(ctx context.Context, id string) (*database.PublishedRecord, error) {
	record, err := service.records.SelectByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up photo %s: %w", id, err)
	}
	if record == nil {
		return nil, database.ErrNotFound
	}
	return service.withRetrieval(record), nil
}

// Media returns a stored binary for drivers that rely on this service to serve them.
func (service *CoreService) Media(ctx context.Context, objectPath string) ([]byte, error) {
	cleaned, err := blobstore.CleanPath(objectPath)
	if err != nil {
		return nil, err
	}
	return service.storage.Download(ctx, cleaned)
}

// Shoot runs one unattended session against cam and returns its final snapshot.
// It waits for the record and the retrieval code attempt to settle.
func (service *CoreService) Shoot(ctx context.Context, cam camera.Camera) (session.Snapshot, error) {
	settings := service.config.SessionSettings()
	machine, err := session.New("cli", session.Dependencies{
		Camera:    cam,
		Composer:  service.composer,
		Publisher: service.publisher,
		Minter:    service.minter,
	}, settings)
	if err != nil {
		return session.Snapshot{}, err
	}
	defer machine.Stop()

	steps := []struct {
		command func(context.Context) error
		reached func(session.Snapshot) bool
	}{
		{machine.Start, func(s session.Snapshot) bool {
			return s.Phase == session.PhaseLive || s.Phase == session.PhasePermissionDenied
		}},
		{machine.Capture, func(s session.Snapshot) bool {
			return s.Phase == session.PhasePreviewing || s.Error != ""
		}},
		{machine.Continue, func(s session.Snapshot) bool {
			return (s.Phase == session.PhaseReady && (s.Code != nil || s.Error != "")) ||
				s.Affordance != session.AffordanceNone
		}},
	}
	var snap session.Snapshot
	for _, step := range steps {
		if err := step.command(ctx); err != nil {
			return machine.Snapshot(), err
		}
		snap, err = machine.WaitFor(ctx, step.reached)
		if err != nil {
			return snap, err
		}
		if snap.Error != "" && snap.Phase != session.PhaseReady {
			return snap, fmt.Errorf("session stopped in %s: %s", snap.Phase, snap.Error)
		}
	}
	return snap, nil
}

// Check verifies that the record store and the blob store are reachable.
func (service *CoreService) Check(ctx context.Context) error {
	var errs []error
	if !service.records.DoesDatabaseExist(ctx) {
		errs = append(errs, fmt.Errorf("record store %s is not reachable", service.config.Database.Type))
	}

	checkPath := fmt.Sprintf("preflight/check-%d.txt", service.now().UnixNano())
	payload := []byte("snapframe preflight")
	err := service.storage.Upload(ctx, checkPath, payload, blobstore.UploadOptions{Overwrite: true, ContentType: "text/plain"})
	if err != nil {
		errs = append(errs, fmt.Errorf("blob store %s rejected upload: %w", service.storage.Name(), err))
	} else if data, err := service.storage.Download(ctx, checkPath); err != nil {
		errs = append(errs, fmt.Errorf("blob store %s download failed: %w", service.storage.Name(), err))
	} else if string(data) != string(payload) {
		errs = append(errs, fmt.Errorf("blob store %s returned unexpected content", service.storage.Name()))
	}
	return errors.Join(errs...)
}

func (service *CoreService) Close() error {
	service.sessions.Close()
	return errors.Join(service.storage.Close(), service.records.Close())
}
