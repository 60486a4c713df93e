// Package store defines the persistence boundary of tmserver and provides
// a PostgreSQL implementation for production and an in-memory
// implementation for development and tests.
package store

import (
	"context"
	"errors"

	"github.com/tissuemaps/tmserver/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint (typically a name
// within its parent scope) would be violated.
var ErrConflict = errors.New("already exists")

// AcquisitionFilter narrows Acquisitions listings. Zero values match all.
type AcquisitionFilter struct {
	Name      string
	PlateName string
}

// SegmentationFilter narrows ObjectMetadata listings. Zero values match
// all; Tpoint is a pointer so time point zero can be selected.
type SegmentationFilter struct {
	PlateName string
	WellName  string
	Tpoint    *int
}

// Store is the persistence interface used by the HTTP API. Implementations
// must be safe for concurrent use.
type Store interface {
	// Users
	CreateUser(ctx context.Context, name, email, passwordHash string) (model.User, error)
	UserByName(ctx context.Context, name string) (model.User, error)
	User(ctx context.Context, id int64) (model.User, error)

	// Experiments
	CreateExperiment(ctx context.Context, name, description string, microscopeType model.MicroscopeType) (model.Experiment, error)
	Experiments(ctx context.Context) ([]model.Experiment, error)
	Experiment(ctx context.Context, id int64) (model.Experiment, error)
	DeleteExperiment(ctx context.Context, id int64) error

	// Plates
	CreatePlate(ctx context.Context, experimentID int64, name, description string) (model.Plate, error)
	Plates(ctx context.Context, experimentID int64) ([]model.Plate, error)
	Plate(ctx context.Context, experimentID, id int64) (model.Plate, error)
	PlateByName(ctx context.Context, experimentID int64, name string) (model.Plate, error)
	RenamePlate(ctx context.Context, experimentID, id int64, name string) error
	DeletePlate(ctx context.Context, experimentID, id int64) error

	// Acquisitions
	CreateAcquisition(ctx context.Context, plateID int64, name, description string) (model.Acquisition, error)
	Acquisitions(ctx context.Context, experimentID int64, filter AcquisitionFilter) ([]model.Acquisition, error)
	Acquisition(ctx context.Context, experimentID, id int64) (model.Acquisition, error)
	RenameAcquisition(ctx context.Context, experimentID, id int64, name string) error
	DeleteAcquisition(ctx context.Context, experimentID, id int64) error

	// Microscope files. RegisterFiles skips names already registered for
	// the acquisition and returns only the newly created records.
	RegisterFiles(ctx context.Context, acquisitionID int64, files []model.MicroscopeFile) ([]model.MicroscopeFile, error)
	Files(ctx context.Context, acquisitionID int64, kind model.MicroscopeFileKind) ([]model.MicroscopeFile, error)
	AllFiles(ctx context.Context, acquisitionID int64) ([]model.MicroscopeFile, error)
	FileByName(ctx context.Context, acquisitionID int64, name string) (model.MicroscopeFile, error)
	SetFileStatus(ctx context.Context, fileID int64, status model.UploadStatus, size int64) error
	CompleteFileCount(ctx context.Context, acquisitionID int64) (int, error)

	// Mapobject types and features
	GetOrCreateMapobjectType(ctx context.Context, experimentID int64, name string) (model.MapobjectType, error)
	MapobjectTypes(ctx context.Context, experimentID int64, name string) ([]model.MapobjectType, error)
	MapobjectType(ctx context.Context, experimentID, id int64) (model.MapobjectType, error)
	RenameMapobjectType(ctx context.Context, experimentID, id int64, name string) error
	DeleteMapobjectType(ctx context.Context, experimentID, id int64) error

	Features(ctx context.Context, mapobjectTypeID int64) ([]model.Feature, error)
	RenameFeature(ctx context.Context, experimentID, id int64, name string) error
	DeleteFeature(ctx context.Context, experimentID, id int64) error

	// Feature values. AddFeatureValues creates missing features on the
	// fly; FeatureValues returns rows ordered by mapobject id.
	AddFeatureValues(ctx context.Context, mapobjectTypeID int64, values []model.FeatureValues) error
	FeatureValues(ctx context.Context, mapobjectTypeID int64) ([]model.FeatureValues, error)

	// Segmentations. PutSegmentation replaces the labeled image stored
	// for a site; mapobject ids stay stable for labels that persist
	// across uploads, objects for vanished labels are removed. The
	// returned objects are ordered by label.
	PutSegmentation(ctx context.Context, mapobjectTypeID int64, site model.SegmentationSite, image [][]int32) ([]model.SegmentedObject, error)
	Segmentation(ctx context.Context, mapobjectTypeID int64, site model.SegmentationSite) ([][]int32, error)
	// ObjectMetadata returns one row per segmented object of the type,
	// ordered by mapobject id.
	ObjectMetadata(ctx context.Context, mapobjectTypeID int64, filter SegmentationFilter) ([]model.ObjectMetadata, error)

	Close() error
}
