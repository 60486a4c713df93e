package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tissuemaps/tmserver/internal/model"
	"github.com/tissuemaps/tmserver/internal/store"
)

// runStoreSuite exercises the Store contract. It runs against the in-memory
// implementation unconditionally and against PostgreSQL in container tests,
// so both implementations stay behaviorally aligned.
func runStoreSuite(t *testing.T, s store.Store) {
	ctx := context.Background()

	t.Run("experiments", func(t *testing.T) {
		exp, err := s.CreateExperiment(ctx, "exp-suite-1", "first", model.MicroscopeGeneric)
		require.NoError(t, err)
		assert.NotZero(t, exp.ID)
		assert.Equal(t, "exp-suite-1", exp.Name)

		_, err = s.CreateExperiment(ctx, "exp-suite-1", "dup", model.MicroscopeGeneric)
		assert.ErrorIs(t, err, store.ErrConflict)

		got, err := s.Experiment(ctx, exp.ID)
		require.NoError(t, err)
		assert.Equal(t, exp.ID, got.ID)

		_, err = s.Experiment(ctx, 999999)
		assert.ErrorIs(t, err, store.ErrNotFound)

		all, err := s.Experiments(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, all)
	})

	t.Run("plates and acquisitions", func(t *testing.T) {
		exp, err := s.CreateExperiment(ctx, "exp-suite-2", "", model.MicroscopeVisiview)
		require.NoError(t, err)

		plate, err := s.CreatePlate(ctx, exp.ID, "plate-1", "")
		require.NoError(t, err)

		_, err = s.CreatePlate(ctx, exp.ID, "plate-1", "")
		assert.ErrorIs(t, err, store.ErrConflict)

		_, err = s.CreatePlate(ctx, 999999, "plate-x", "")
		assert.ErrorIs(t, err, store.ErrNotFound)

		byName, err := s.PlateByName(ctx, exp.ID, "plate-1")
		require.NoError(t, err)
		assert.Equal(t, plate.ID, byName.ID)

		acq, err := s.CreateAcquisition(ctx, plate.ID, "acq-1", "run one")
		require.NoError(t, err)

		// Scoping: the acquisition is not visible through a different
		// experiment id.
		other, err := s.CreateExperiment(ctx, "exp-suite-3", "", model.MicroscopeGeneric)
		require.NoError(t, err)
		_, err = s.Acquisition(ctx, other.ID, acq.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.Acquisition(ctx, exp.ID, acq.ID)
		require.NoError(t, err)
		assert.Equal(t, "acq-1", got.Name)

		require.NoError(t, s.RenameAcquisition(ctx, exp.ID, acq.ID, "acq-renamed"))
		got, err = s.Acquisition(ctx, exp.ID, acq.ID)
		require.NoError(t, err)
		assert.Equal(t, "acq-renamed", got.Name)

		list, err := s.Acquisitions(ctx, exp.ID, store.AcquisitionFilter{PlateName: "plate-1"})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = s.Acquisitions(ctx, exp.ID, store.AcquisitionFilter{Name: "no-such"})
		require.NoError(t, err)
		assert.Empty(t, list)

		require.NoError(t, s.DeleteAcquisition(ctx, exp.ID, acq.ID))
		_, err = s.Acquisition(ctx, exp.ID, acq.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("microscope files", func(t *testing.T) {
		exp, err := s.CreateExperiment(ctx, "exp-suite-4", "", model.MicroscopeGeneric)
		require.NoError(t, err)
		plate, err := s.CreatePlate(ctx, exp.ID, "plate-1", "")
		require.NoError(t, err)
		acq, err := s.CreateAcquisition(ctx, plate.ID, "acq-1", "")
		require.NoError(t, err)

		created, err := s.RegisterFiles(ctx, acq.ID, []model.MicroscopeFile{
			{Name: "a.png", Kind: model.FileKindImage},
			{Name: "meta.xml", Kind: model.FileKindMetadata},
		})
		require.NoError(t, err)
		assert.Len(t, created, 2)

		// Re-registering an existing name is silently skipped.
		created, err = s.RegisterFiles(ctx, acq.ID, []model.MicroscopeFile{
			{Name: "a.png", Kind: model.FileKindImage},
			{Name: "b.png", Kind: model.FileKindImage},
		})
		require.NoError(t, err)
		require.Len(t, created, 1)
		assert.Equal(t, "b.png", created[0].Name)

		images, err := s.Files(ctx, acq.ID, model.FileKindImage)
		require.NoError(t, err)
		assert.Len(t, images, 2)

		f, err := s.FileByName(ctx, acq.ID, "a.png")
		require.NoError(t, err)
		assert.Equal(t, model.UploadWaiting, f.Status)

		require.NoError(t, s.SetFileStatus(ctx, f.ID, model.UploadComplete, 2048))
		f, err = s.FileByName(ctx, acq.ID, "a.png")
		require.NoError(t, err)
		assert.Equal(t, model.UploadComplete, f.Status)
		assert.Equal(t, int64(2048), f.Size)

		n, err := s.CompleteFileCount(ctx, acq.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("mapobject types and feature values", func(t *testing.T) {
		exp, err := s.CreateExperiment(ctx, "exp-suite-5", "", model.MicroscopeGeneric)
		require.NoError(t, err)

		cells, err := s.GetOrCreateMapobjectType(ctx, exp.ID, "Cells")
		require.NoError(t, err)
		again, err := s.GetOrCreateMapobjectType(ctx, exp.ID, "Cells")
		require.NoError(t, err)
		assert.Equal(t, cells.ID, again.ID)

		_, err = s.GetOrCreateMapobjectType(ctx, exp.ID, "Nuclei")
		require.NoError(t, err)

		// Ordered by name.
		types, err := s.MapobjectTypes(ctx, exp.ID, "")
		require.NoError(t, err)
		require.Len(t, types, 2)
		assert.Equal(t, "Cells", types[0].Name)
		assert.Equal(t, "Nuclei", types[1].Name)

		err = s.AddFeatureValues(ctx, cells.ID, []model.FeatureValues{
			{MapobjectID: 1, Values: map[string]float64{"Cell_Area": 120.5, "Cell_Perimeter": 48}},
			{MapobjectID: 2, Values: map[string]float64{"Cell_Area": 98.2}},
		})
		require.NoError(t, err)

		features, err := s.Features(ctx, cells.ID)
		require.NoError(t, err)
		assert.Len(t, features, 2)

		values, err := s.FeatureValues(ctx, cells.ID)
		require.NoError(t, err)
		require.Len(t, values, 2)
		assert.Equal(t, int64(1), values[0].MapobjectID)
		assert.InDelta(t, 120.5, values[0].Values["Cell_Area"], 1e-9)

		err = s.AddFeatureValues(ctx, 999999, nil)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("rename to sibling name conflicts", func(t *testing.T) {
		exp, err := s.CreateExperiment(ctx, "exp-suite-7", "", model.MicroscopeGeneric)
		require.NoError(t, err)

		plateA, err := s.CreatePlate(ctx, exp.ID, "plate-A", "")
		require.NoError(t, err)
		plateB, err := s.CreatePlate(ctx, exp.ID, "plate-B", "")
		require.NoError(t, err)

		err = s.RenamePlate(ctx, exp.ID, plateB.ID, "plate-A")
		assert.ErrorIs(t, err, store.ErrConflict)
		got, err := s.Plate(ctx, exp.ID, plateB.ID)
		require.NoError(t, err)
		assert.Equal(t, "plate-B", got.Name)

		// Renaming to its own current name is not a conflict.
		require.NoError(t, s.RenamePlate(ctx, exp.ID, plateA.ID, "plate-A"))

		_, err = s.CreateAcquisition(ctx, plateA.ID, "acq-1", "")
		require.NoError(t, err)
		acq2, err := s.CreateAcquisition(ctx, plateA.ID, "acq-2", "")
		require.NoError(t, err)
		err = s.RenameAcquisition(ctx, exp.ID, acq2.ID, "acq-1")
		assert.ErrorIs(t, err, store.ErrConflict)

		// The same name under a different plate is fine.
		acq3, err := s.CreateAcquisition(ctx, plateB.ID, "acq-3", "")
		require.NoError(t, err)
		require.NoError(t, s.RenameAcquisition(ctx, exp.ID, acq3.ID, "acq-1"))

		cells, err := s.GetOrCreateMapobjectType(ctx, exp.ID, "Cells")
		require.NoError(t, err)
		_, err = s.GetOrCreateMapobjectType(ctx, exp.ID, "Nuclei")
		require.NoError(t, err)
		err = s.RenameMapobjectType(ctx, exp.ID, cells.ID, "Nuclei")
		assert.ErrorIs(t, err, store.ErrConflict)

		err = s.AddFeatureValues(ctx, cells.ID, []model.FeatureValues{
			{MapobjectID: 1, Values: map[string]float64{"area": 1, "perimeter": 2}},
		})
		require.NoError(t, err)
		features, err := s.Features(ctx, cells.ID)
		require.NoError(t, err)
		require.Len(t, features, 2)
		err = s.RenameFeature(ctx, exp.ID, features[0].ID, features[1].Name)
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("segmentations", func(t *testing.T) {
		exp, err := s.CreateExperiment(ctx, "exp-suite-8", "", model.MicroscopeGeneric)
		require.NoError(t, err)
		cells, err := s.GetOrCreateMapobjectType(ctx, exp.ID, "Cells")
		require.NoError(t, err)

		site := model.SegmentationSite{PlateName: "plate-1", WellName: "A01", Tpoint: 0, Zplane: 0}
		image := [][]int32{
			{0, 0, 0, 3},
			{0, 1, 0, 3},
			{0, 1, 0, 0},
			{0, 0, 0, 0},
		}
		objects, err := s.PutSegmentation(ctx, cells.ID, site, image)
		require.NoError(t, err)
		require.Len(t, objects, 2)
		assert.Equal(t, int32(1), objects[0].Label)
		assert.False(t, objects[0].IsBorder)
		assert.Equal(t, int32(3), objects[1].Label)
		assert.True(t, objects[1].IsBorder)
		assert.NotEqual(t, objects[0].MapobjectID, objects[1].MapobjectID)

		got, err := s.Segmentation(ctx, cells.ID, site)
		require.NoError(t, err)
		assert.Equal(t, image, got)

		_, err = s.Segmentation(ctx, cells.ID, model.SegmentationSite{PlateName: "plate-2", WellName: "A01"})
		assert.ErrorIs(t, err, store.ErrNotFound)

		// Re-uploading keeps mapobject ids stable for surviving labels
		// and drops objects whose labels vanished.
		firstID := objects[0].MapobjectID
		objects, err = s.PutSegmentation(ctx, cells.ID, site, [][]int32{
			{0, 0, 0, 0},
			{0, 1, 1, 0},
			{0, 1, 0, 0},
			{0, 0, 0, 0},
		})
		require.NoError(t, err)
		require.Len(t, objects, 1)
		assert.Equal(t, firstID, objects[0].MapobjectID)

		other := model.SegmentationSite{PlateName: "plate-1", WellName: "B02", Tpoint: 1, Zplane: 0}
		_, err = s.PutSegmentation(ctx, cells.ID, other, [][]int32{{2, 0}, {0, 0}})
		require.NoError(t, err)

		meta, err := s.ObjectMetadata(ctx, cells.ID, store.SegmentationFilter{})
		require.NoError(t, err)
		require.Len(t, meta, 2)
		assert.Equal(t, "A01", meta[0].Site.WellName)
		assert.Equal(t, "B02", meta[1].Site.WellName)
		assert.True(t, meta[1].IsBorder)

		tpoint := 1
		meta, err = s.ObjectMetadata(ctx, cells.ID, store.SegmentationFilter{Tpoint: &tpoint})
		require.NoError(t, err)
		require.Len(t, meta, 1)
		assert.Equal(t, int32(2), meta[0].Label)

		meta, err = s.ObjectMetadata(ctx, cells.ID, store.SegmentationFilter{PlateName: "no-such"})
		require.NoError(t, err)
		assert.Empty(t, meta)

		_, err = s.PutSegmentation(ctx, 999999, site, image)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.ObjectMetadata(ctx, 999999, store.SegmentationFilter{})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("users", func(t *testing.T) {
		u, err := s.CreateUser(ctx, "suite-user", "u@example.org", "hash")
		require.NoError(t, err)

		_, err = s.CreateUser(ctx, "suite-user", "", "hash")
		assert.ErrorIs(t, err, store.ErrConflict)

		got, err := s.UserByName(ctx, "suite-user")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		_, err = s.UserByName(ctx, "nobody")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("cascade delete", func(t *testing.T) {
		exp, err := s.CreateExperiment(ctx, "exp-suite-6", "", model.MicroscopeGeneric)
		require.NoError(t, err)
		plate, err := s.CreatePlate(ctx, exp.ID, "plate-1", "")
		require.NoError(t, err)
		acq, err := s.CreateAcquisition(ctx, plate.ID, "acq-1", "")
		require.NoError(t, err)

		require.NoError(t, s.DeleteExperiment(ctx, exp.ID))
		_, err = s.Plate(ctx, exp.ID, plate.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.Acquisition(ctx, exp.ID, acq.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	s := store.NewMemory()
	defer s.Close()
	runStoreSuite(t, s)
}
