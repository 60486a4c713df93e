package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tissuemaps/tmserver/internal/config"
	"github.com/tissuemaps/tmserver/internal/model"
)

//go:embed schema.sql
var schema string

// Postgres implements Store on top of PostgreSQL.
type Postgres struct {
	db *sqlx.DB
}

// OpenPostgres connects to the database described by cfg, applies the
// schema and sizes the connection pool. The pool size is fixed once here,
// at startup.
func OpenPostgres(ctx context.Context, cfg config.DatabaseSection) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// wrapErr translates driver errors into the store's sentinel errors.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

// Users

func (p *Postgres) CreateUser(ctx context.Context, name, email, passwordHash string) (model.User, error) {
	var u model.User
	err := p.db.GetContext(ctx, &u,
		`INSERT INTO users (name, email, password_hash) VALUES ($1, $2, $3)
		 RETURNING id, name, email, password_hash`,
		name, email, passwordHash,
	)
	return u, wrapErr(err)
}

func (p *Postgres) UserByName(ctx context.Context, name string) (model.User, error) {
	var u model.User
	err := p.db.GetContext(ctx, &u,
		`SELECT id, name, email, password_hash FROM users WHERE name = $1`, name)
	return u, wrapErr(err)
}

func (p *Postgres) User(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	err := p.db.GetContext(ctx, &u,
		`SELECT id, name, email, password_hash FROM users WHERE id = $1`, id)
	return u, wrapErr(err)
}

// Experiments

func (p *Postgres) CreateExperiment(ctx context.Context, name, description string, microscopeType model.MicroscopeType) (model.Experiment, error) {
	var e model.Experiment
	err := p.db.GetContext(ctx, &e,
		`INSERT INTO experiments (name, description, microscope_type)
		 VALUES ($1, $2, $3)
		 RETURNING id, name, description, microscope_type, created_at`,
		name, description, microscopeType,
	)
	return e, wrapErr(err)
}

func (p *Postgres) Experiments(ctx context.Context) ([]model.Experiment, error) {
	var out []model.Experiment
	err := p.db.SelectContext(ctx, &out,
		`SELECT id, name, description, microscope_type, created_at
		 FROM experiments ORDER BY id`)
	return out, wrapErr(err)
}

func (p *Postgres) Experiment(ctx context.Context, id int64) (model.Experiment, error) {
	var e model.Experiment
	err := p.db.GetContext(ctx, &e,
		`SELECT id, name, description, microscope_type, created_at
		 FROM experiments WHERE id = $1`, id)
	return e, wrapErr(err)
}

func (p *Postgres) DeleteExperiment(ctx context.Context, id int64) error {
	return p.execAffectingOne(ctx, `DELETE FROM experiments WHERE id = $1`, id)
}

func (p *Postgres) execAffectingOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Plates

func (p *Postgres) CreatePlate(ctx context.Context, experimentID int64, name, description string) (model.Plate, error) {
	if _, err := p.Experiment(ctx, experimentID); err != nil {
		return model.Plate{}, err
	}
	var pl model.Plate
	err := p.db.GetContext(ctx, &pl,
		`INSERT INTO plates (experiment_id, name, description)
		 VALUES ($1, $2, $3)
		 RETURNING id, experiment_id, name, description, created_at`,
		experimentID, name, description,
	)
	return pl, wrapErr(err)
}

func (p *Postgres) Plates(ctx context.Context, experimentID int64) ([]model.Plate, error) {
	var out []model.Plate
	err := p.db.SelectContext(ctx, &out,
		`SELECT id, experiment_id, name, description, created_at
		 FROM plates WHERE experiment_id = $1 ORDER BY id`, experimentID)
	return out, wrapErr(err)
}

func (p *Postgres) Plate(ctx context.Context, experimentID, id int64) (model.Plate, error) {
	var pl model.Plate
	err := p.db.GetContext(ctx, &pl,
		`SELECT id, experiment_id, name, description, created_at
		 FROM plates WHERE id = $1 AND experiment_id = $2`, id, experimentID)
	return pl, wrapErr(err)
}

func (p *Postgres) PlateByName(ctx context.Context, experimentID int64, name string) (model.Plate, error) {
	var pl model.Plate
	err := p.db.GetContext(ctx, &pl,
		`SELECT id, experiment_id, name, description, created_at
		 FROM plates WHERE experiment_id = $1 AND name = $2`, experimentID, name)
	return pl, wrapErr(err)
}

func (p *Postgres) RenamePlate(ctx context.Context, experimentID, id int64, name string) error {
	return p.execAffectingOne(ctx,
		`UPDATE plates SET name = $1 WHERE id = $2 AND experiment_id = $3`,
		name, id, experimentID)
}

func (p *Postgres) DeletePlate(ctx context.Context, experimentID, id int64) error {
	return p.execAffectingOne(ctx,
		`DELETE FROM plates WHERE id = $1 AND experiment_id = $2`, id, experimentID)
}

// Acquisitions

func (p *Postgres) CreateAcquisition(ctx context.Context, plateID int64, name, description string) (model.Acquisition, error) {
	var a model.Acquisition
	err := p.db.GetContext(ctx, &a,
		`INSERT INTO acquisitions (plate_id, name, description)
		 VALUES ($1, $2, $3)
		 RETURNING id, plate_id, name, description, created_at`,
		plateID, name, description,
	)
	if err != nil {
		var pqErr *pq.Error
		// Foreign key violation: the plate does not exist.
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return model.Acquisition{}, ErrNotFound
		}
		return model.Acquisition{}, wrapErr(err)
	}
	return a, nil
}

func (p *Postgres) Acquisitions(ctx context.Context, experimentID int64, filter AcquisitionFilter) ([]model.Acquisition, error) {
	query := `SELECT a.id, a.plate_id, a.name, a.description, a.created_at
		 FROM acquisitions a
		 JOIN plates p ON a.plate_id = p.id
		 WHERE p.experiment_id = $1`
	args := []interface{}{experimentID}
	if filter.Name != "" {
		args = append(args, filter.Name)
		query += fmt.Sprintf(" AND a.name = $%d", len(args))
	}
	if filter.PlateName != "" {
		args = append(args, filter.PlateName)
		query += fmt.Sprintf(" AND p.name = $%d", len(args))
	}
	query += " ORDER BY a.id"

	var out []model.Acquisition
	err := p.db.SelectContext(ctx, &out, query, args...)
	return out, wrapErr(err)
}

func (p *Postgres) Acquisition(ctx context.Context, experimentID, id int64) (model.Acquisition, error) {
	var a model.Acquisition
	err := p.db.GetContext(ctx, &a,
		`SELECT a.id, a.plate_id, a.name, a.description, a.created_at
		 FROM acquisitions a
		 JOIN plates p ON a.plate_id = p.id
		 WHERE a.id = $1 AND p.experiment_id = $2`, id, experimentID)
	return a, wrapErr(err)
}

func (p *Postgres) RenameAcquisition(ctx context.Context, experimentID, id int64, name string) error {
	return p.execAffectingOne(ctx,
		`UPDATE acquisitions a SET name = $1
		 FROM plates p
		 WHERE a.id = $2 AND a.plate_id = p.id AND p.experiment_id = $3`,
		name, id, experimentID)
}

func (p *Postgres) DeleteAcquisition(ctx context.Context, experimentID, id int64) error {
	return p.execAffectingOne(ctx,
		`DELETE FROM acquisitions a
		 USING plates p
		 WHERE a.id = $1 AND a.plate_id = p.id AND p.experiment_id = $2`,
		id, experimentID)
}

// Microscope files

func (p *Postgres) RegisterFiles(ctx context.Context, acquisitionID int64, files []model.MicroscopeFile) ([]model.MicroscopeFile, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM acquisitions WHERE id = $1)`, acquisitionID); err != nil {
		return nil, wrapErr(err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	var created []model.MicroscopeFile
	for _, f := range files {
		status := f.Status
		if status == "" {
			status = model.UploadWaiting
		}
		var rec model.MicroscopeFile
		err := tx.GetContext(ctx, &rec,
			`INSERT INTO microscope_files (acquisition_id, name, kind, status)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (acquisition_id, name) DO NOTHING
			 RETURNING id, acquisition_id, name, kind, status, size`,
			acquisitionID, f.Name, f.Kind, status,
		)
		if errors.Is(err, sql.ErrNoRows) {
			continue // already registered
		}
		if err != nil {
			return nil, wrapErr(err)
		}
		created = append(created, rec)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (p *Postgres) Files(ctx context.Context, acquisitionID int64, kind model.MicroscopeFileKind) ([]model.MicroscopeFile, error) {
	var out []model.MicroscopeFile
	err := p.db.SelectContext(ctx, &out,
		`SELECT id, acquisition_id, name, kind, status, size
		 FROM microscope_files
		 WHERE acquisition_id = $1 AND kind = $2 ORDER BY name`,
		acquisitionID, kind)
	return out, wrapErr(err)
}

func (p *Postgres) AllFiles(ctx context.Context, acquisitionID int64) ([]model.MicroscopeFile, error) {
	var out []model.MicroscopeFile
	err := p.db.SelectContext(ctx, &out,
		`SELECT id, acquisition_id, name, kind, status, size
		 FROM microscope_files WHERE acquisition_id = $1 ORDER BY id`,
		acquisitionID)
	return out, wrapErr(err)
}

func (p *Postgres) FileByName(ctx context.Context, acquisitionID int64, name string) (model.MicroscopeFile, error) {
	var f model.MicroscopeFile
	err := p.db.GetContext(ctx, &f,
		`SELECT id, acquisition_id, name, kind, status, size
		 FROM microscope_files WHERE acquisition_id = $1 AND name = $2`,
		acquisitionID, name)
	return f, wrapErr(err)
}

func (p *Postgres) SetFileStatus(ctx context.Context, fileID int64, status model.UploadStatus, size int64) error {
	return p.execAffectingOne(ctx,
		`UPDATE microscope_files SET status = $1, size = GREATEST(size, $2) WHERE id = $3`,
		status, size, fileID)
}

func (p *Postgres) CompleteFileCount(ctx context.Context, acquisitionID int64) (int, error) {
	var n int
	err := p.db.GetContext(ctx, &n,
		`SELECT count(*) FROM microscope_files
		 WHERE acquisition_id = $1 AND status = $2`,
		acquisitionID, model.UploadComplete)
	return n, wrapErr(err)
}

// Mapobject types and features

func (p *Postgres) GetOrCreateMapobjectType(ctx context.Context, experimentID int64, name string) (model.MapobjectType, error) {
	if _, err := p.Experiment(ctx, experimentID); err != nil {
		return model.MapobjectType{}, err
	}
	var mt model.MapobjectType
	err := p.db.GetContext(ctx, &mt,
		`INSERT INTO mapobject_types (experiment_id, name)
		 VALUES ($1, $2)
		 ON CONFLICT (experiment_id, name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, experiment_id, name`,
		experimentID, name,
	)
	return mt, wrapErr(err)
}

func (p *Postgres) MapobjectTypes(ctx context.Context, experimentID int64, name string) ([]model.MapobjectType, error) {
	query := `SELECT id, experiment_id, name FROM mapobject_types WHERE experiment_id = $1`
	args := []interface{}{experimentID}
	if name != "" {
		args = append(args, name)
		query += " AND name = $2"
	}
	query += " ORDER BY name"

	var out []model.MapobjectType
	err := p.db.SelectContext(ctx, &out, query, args...)
	return out, wrapErr(err)
}

func (p *Postgres) MapobjectType(ctx context.Context, experimentID, id int64) (model.MapobjectType, error) {
	var mt model.MapobjectType
	err := p.db.GetContext(ctx, &mt,
		`SELECT id, experiment_id, name FROM mapobject_types
		 WHERE id = $1 AND experiment_id = $2`, id, experimentID)
	return mt, wrapErr(err)
}

func (p *Postgres) RenameMapobjectType(ctx context.Context, experimentID, id int64, name string) error {
	return p.execAffectingOne(ctx,
		`UPDATE mapobject_types SET name = $1 WHERE id = $2 AND experiment_id = $3`,
		name, id, experimentID)
}

func (p *Postgres) DeleteMapobjectType(ctx context.Context, experimentID, id int64) error {
	return p.execAffectingOne(ctx,
		`DELETE FROM mapobject_types WHERE id = $1 AND experiment_id = $2`,
		id, experimentID)
}

func (p *Postgres) Features(ctx context.Context, mapobjectTypeID int64) ([]model.Feature, error) {
	var out []model.Feature
	err := p.db.SelectContext(ctx, &out,
		`SELECT id, mapobject_type_id, name FROM features
		 WHERE mapobject_type_id = $1 ORDER BY id`, mapobjectTypeID)
	return out, wrapErr(err)
}

func (p *Postgres) RenameFeature(ctx context.Context, experimentID, id int64, name string) error {
	return p.execAffectingOne(ctx,
		`UPDATE features f SET name = $1
		 FROM mapobject_types mt
		 WHERE f.id = $2 AND f.mapobject_type_id = mt.id AND mt.experiment_id = $3`,
		name, id, experimentID)
}

func (p *Postgres) DeleteFeature(ctx context.Context, experimentID, id int64) error {
	return p.execAffectingOne(ctx,
		`DELETE FROM features f
		 USING mapobject_types mt
		 WHERE f.id = $1 AND f.mapobject_type_id = mt.id AND mt.experiment_id = $2`,
		id, experimentID)
}

func (p *Postgres) AddFeatureValues(ctx context.Context, mapobjectTypeID int64, values []model.FeatureValues) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM mapobject_types WHERE id = $1)`, mapobjectTypeID); err != nil {
		return wrapErr(err)
	}
	if !exists {
		return ErrNotFound
	}

	featureIDs := make(map[string]int64)
	for _, fv := range values {
		for name, value := range fv.Values {
			fid, ok := featureIDs[name]
			if !ok {
				if err := tx.GetContext(ctx, &fid,
					`INSERT INTO features (mapobject_type_id, name)
					 VALUES ($1, $2)
					 ON CONFLICT (mapobject_type_id, name) DO UPDATE SET name = EXCLUDED.name
					 RETURNING id`,
					mapobjectTypeID, name,
				); err != nil {
					return wrapErr(err)
				}
				featureIDs[name] = fid
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO feature_values (feature_id, mapobject_id, value)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (feature_id, mapobject_id) DO UPDATE SET value = EXCLUDED.value`,
				fid, fv.MapobjectID, value,
			); err != nil {
				return wrapErr(err)
			}
		}
	}
	return tx.Commit()
}

func (p *Postgres) FeatureValues(ctx context.Context, mapobjectTypeID int64) ([]model.FeatureValues, error) {
	rows, err := p.db.QueryxContext(ctx,
		`SELECT fv.mapobject_id, f.name, fv.value
		 FROM feature_values fv
		 JOIN features f ON fv.feature_id = f.id
		 WHERE f.mapobject_type_id = $1
		 ORDER BY fv.mapobject_id, f.id`, mapobjectTypeID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []model.FeatureValues
	var current *model.FeatureValues
	for rows.Next() {
		var (
			mapobjectID int64
			name        string
			value       float64
		)
		if err := rows.Scan(&mapobjectID, &name, &value); err != nil {
			return nil, err
		}
		if current == nil || current.MapobjectID != mapobjectID {
			out = append(out, model.FeatureValues{
				MapobjectID: mapobjectID,
				Values:      make(map[string]float64),
			})
			current = &out[len(out)-1]
		}
		current.Values[name] = value
	}
	return out, rows.Err()
}

// Segmentations

func (p *Postgres) PutSegmentation(ctx context.Context, mapobjectTypeID int64, site model.SegmentationSite, image [][]int32) ([]model.SegmentedObject, error) {
	encoded, err := json.Marshal(image)
	if err != nil {
		return nil, err
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var segID int64
	err = tx.GetContext(ctx, &segID,
		`INSERT INTO segmentations (mapobject_type_id, plate_name, well_name, tpoint, zplane, image)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (mapobject_type_id, plate_name, well_name, tpoint, zplane)
		 DO UPDATE SET image = EXCLUDED.image
		 RETURNING id`,
		mapobjectTypeID, site.PlateName, site.WellName, site.Tpoint, site.Zplane, encoded,
	)
	if err != nil {
		var pqErr *pq.Error
		// Foreign key violation: the mapobject type does not exist.
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return nil, ErrNotFound
		}
		return nil, wrapErr(err)
	}

	existing := make(map[int32]model.SegmentedObject)
	rows, err := tx.QueryxContext(ctx,
		`SELECT mapobject_id, label, is_border FROM segmented_objects WHERE segmentation_id = $1`, segID)
	if err != nil {
		return nil, wrapErr(err)
	}
	for rows.Next() {
		var obj model.SegmentedObject
		if err := rows.Scan(&obj.MapobjectID, &obj.Label, &obj.IsBorder); err != nil {
			rows.Close()
			return nil, err
		}
		existing[obj.Label] = obj
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	labels := model.ImageLabels(image)
	out := make([]model.SegmentedObject, 0, len(labels))
	for _, label := range labels {
		isBorder := model.LabelTouchesBorder(image, label)
		obj, ok := existing[label]
		if ok {
			if _, err := tx.ExecContext(ctx,
				`UPDATE segmented_objects SET is_border = $1
				 WHERE segmentation_id = $2 AND label = $3`,
				isBorder, segID, label); err != nil {
				return nil, wrapErr(err)
			}
		} else {
			if err := tx.GetContext(ctx, &obj.MapobjectID,
				`INSERT INTO mapobjects (mapobject_type_id) VALUES ($1) RETURNING id`,
				mapobjectTypeID); err != nil {
				return nil, wrapErr(err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO segmented_objects (segmentation_id, mapobject_id, label, is_border)
				 VALUES ($1, $2, $3, $4)`,
				segID, obj.MapobjectID, label, isBorder); err != nil {
				return nil, wrapErr(err)
			}
		}
		obj.Label = label
		obj.IsBorder = isBorder
		out = append(out, obj)
	}

	// Objects whose labels vanished from the re-uploaded image are
	// removed together with their mapobject record.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM mapobjects WHERE id IN (
			SELECT mapobject_id FROM segmented_objects
			WHERE segmentation_id = $1 AND NOT (label = ANY($2))
		 )`,
		segID, pq.Array(labels)); err != nil {
		return nil, wrapErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) Segmentation(ctx context.Context, mapobjectTypeID int64, site model.SegmentationSite) ([][]int32, error) {
	var encoded []byte
	err := p.db.GetContext(ctx, &encoded,
		`SELECT image FROM segmentations
		 WHERE mapobject_type_id = $1 AND plate_name = $2 AND well_name = $3
		   AND tpoint = $4 AND zplane = $5`,
		mapobjectTypeID, site.PlateName, site.WellName, site.Tpoint, site.Zplane)
	if err != nil {
		return nil, wrapErr(err)
	}
	var image [][]int32
	if err := json.Unmarshal(encoded, &image); err != nil {
		return nil, fmt.Errorf("failed to decode stored label image: %w", err)
	}
	return image, nil
}

func (p *Postgres) ObjectMetadata(ctx context.Context, mapobjectTypeID int64, filter SegmentationFilter) ([]model.ObjectMetadata, error) {
	var exists bool
	if err := p.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM mapobject_types WHERE id = $1)`, mapobjectTypeID); err != nil {
		return nil, wrapErr(err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	query := `SELECT so.mapobject_id, s.plate_name, s.well_name, s.tpoint, s.zplane, so.label, so.is_border
		 FROM segmented_objects so
		 JOIN segmentations s ON so.segmentation_id = s.id
		 WHERE s.mapobject_type_id = $1`
	args := []interface{}{mapobjectTypeID}
	if filter.PlateName != "" {
		args = append(args, filter.PlateName)
		query += fmt.Sprintf(" AND s.plate_name = $%d", len(args))
	}
	if filter.WellName != "" {
		args = append(args, filter.WellName)
		query += fmt.Sprintf(" AND s.well_name = $%d", len(args))
	}
	if filter.Tpoint != nil {
		args = append(args, *filter.Tpoint)
		query += fmt.Sprintf(" AND s.tpoint = $%d", len(args))
	}
	query += " ORDER BY so.mapobject_id"

	rows, err := p.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []model.ObjectMetadata
	for rows.Next() {
		var om model.ObjectMetadata
		if err := rows.Scan(&om.MapobjectID, &om.Site.PlateName, &om.Site.WellName,
			&om.Site.Tpoint, &om.Site.Zplane, &om.Label, &om.IsBorder); err != nil {
			return nil, err
		}
		out = append(out, om)
	}
	return out, rows.Err()
}
