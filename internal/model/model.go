// Package model defines the entities served by the tmserver HTTP API.
package model

import "time"

// MicroscopeType identifies the vendor file-naming convention of an
// experiment's raw data. It determines how uploaded filenames are
// classified into image and metadata files.
type MicroscopeType string

const (
	MicroscopeVisiview    MicroscopeType = "visiview"
	MicroscopeCellvoyager MicroscopeType = "cellvoyager"
	MicroscopeGeneric     MicroscopeType = "default"
)

// Experiment is the top-level container for all data of one imaging study.
type Experiment struct {
	ID             int64          `db:"id"`
	Name           string         `db:"name"`
	Description    string         `db:"description"`
	MicroscopeType MicroscopeType `db:"microscope_type"`
	CreatedAt      time.Time      `db:"created_at"`
}

// Plate groups acquisitions of one physical multi-well plate.
type Plate struct {
	ID           int64     `db:"id"`
	ExperimentID int64     `db:"experiment_id"`
	Name         string    `db:"name"`
	Description  string    `db:"description"`
	CreatedAt    time.Time `db:"created_at"`
}

// Acquisition is one run of the microscope over a plate. Its status is
// derived from the upload status of its registered files.
type Acquisition struct {
	ID          int64     `db:"id"`
	PlateID     int64     `db:"plate_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// MicroscopeFileKind distinguishes the two classes of registered files.
type MicroscopeFileKind string

const (
	FileKindImage    MicroscopeFileKind = "image"
	FileKindMetadata MicroscopeFileKind = "metadata"
)

// MicroscopeFile is a file registered for upload to an acquisition,
// either a raw image or a vendor metadata file.
type MicroscopeFile struct {
	ID            int64              `db:"id"`
	AcquisitionID int64              `db:"acquisition_id"`
	Name          string             `db:"name"`
	Kind          MicroscopeFileKind `db:"kind"`
	Status        UploadStatus       `db:"status"`
	Size          int64              `db:"size"`
}

// MapobjectType is a class of segmented objects (e.g. "Cells") for which
// features are measured.
type MapobjectType struct {
	ID           int64  `db:"id"`
	ExperimentID int64  `db:"experiment_id"`
	Name         string `db:"name"`
}

// Feature is a named measurement defined for a mapobject type.
type Feature struct {
	ID              int64  `db:"id"`
	MapobjectTypeID int64  `db:"mapobject_type_id"`
	Name            string `db:"name"`
}

// FeatureValues holds the measured values of one mapobject, keyed by
// feature name.
type FeatureValues struct {
	MapobjectID int64
	Values      map[string]float64
}

// User is an account that can authenticate against the server.
type User struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
}
