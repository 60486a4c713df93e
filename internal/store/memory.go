package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tissuemaps/tmserver/internal/model"
)

// Memory is an in-memory Store for development and tests. It mirrors the
// behavior of the PostgreSQL implementation, including scoping rules:
// child lookups verify the full parent chain up to the experiment.
type Memory struct {
	mu sync.RWMutex

	nextID int64

	users          map[int64]model.User
	experiments    map[int64]model.Experiment
	plates         map[int64]model.Plate
	acquisitions   map[int64]model.Acquisition
	files          map[int64]model.MicroscopeFile
	mapobjectTypes map[int64]model.MapobjectType
	features       map[int64]model.Feature
	// featureValues[mapobjectTypeID][mapobjectID][featureName]
	featureValues map[int64]map[int64]map[string]float64
	// segmentations[mapobjectTypeID][site]
	segmentations map[int64]map[model.SegmentationSite]*memorySegmentation
}

type memorySegmentation struct {
	image [][]int32
	// objects by label
	objects map[int32]model.SegmentedObject
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:          make(map[int64]model.User),
		experiments:    make(map[int64]model.Experiment),
		plates:         make(map[int64]model.Plate),
		acquisitions:   make(map[int64]model.Acquisition),
		files:          make(map[int64]model.MicroscopeFile),
		mapobjectTypes: make(map[int64]model.MapobjectType),
		features:       make(map[int64]model.Feature),
		featureValues:  make(map[int64]map[int64]map[string]float64),
		segmentations:  make(map[int64]map[model.SegmentationSite]*memorySegmentation),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// Close implements Store. It is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }

// Users

func (m *Memory) CreateUser(_ context.Context, name, email, passwordHash string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Name == name {
			return model.User{}, ErrConflict
		}
	}
	u := model.User{ID: m.id(), Name: name, Email: email, PasswordHash: passwordHash}
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) UserByName(_ context.Context, name string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Name == name {
			return u, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (m *Memory) User(_ context.Context, id int64) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

// Experiments

func (m *Memory) CreateExperiment(_ context.Context, name, description string, microscopeType model.MicroscopeType) (model.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.experiments {
		if e.Name == name {
			return model.Experiment{}, ErrConflict
		}
	}
	e := model.Experiment{
		ID:             m.id(),
		Name:           name,
		Description:    description,
		MicroscopeType: microscopeType,
		CreatedAt:      time.Now().UTC(),
	}
	m.experiments[e.ID] = e
	return e, nil
}

func (m *Memory) Experiments(_ context.Context) ([]model.Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Experiment, 0, len(m.experiments))
	for _, e := range m.experiments {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Experiment(_ context.Context, id int64) (model.Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.experiments[id]
	if !ok {
		return model.Experiment{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) DeleteExperiment(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.experiments[id]; !ok {
		return ErrNotFound
	}
	delete(m.experiments, id)
	for pid, p := range m.plates {
		if p.ExperimentID == id {
			delete(m.plates, pid)
			for aid, a := range m.acquisitions {
				if a.PlateID == pid {
					delete(m.acquisitions, aid)
					for fid, f := range m.files {
						if f.AcquisitionID == aid {
							delete(m.files, fid)
						}
					}
				}
			}
		}
	}
	for tid, mt := range m.mapobjectTypes {
		if mt.ExperimentID == id {
			delete(m.mapobjectTypes, tid)
			for featID, f := range m.features {
				if f.MapobjectTypeID == tid {
					delete(m.features, featID)
				}
			}
			delete(m.featureValues, tid)
			delete(m.segmentations, tid)
		}
	}
	return nil
}

// Plates

func (m *Memory) CreatePlate(_ context.Context, experimentID int64, name, description string) (model.Plate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.experiments[experimentID]; !ok {
		return model.Plate{}, ErrNotFound
	}
	for _, p := range m.plates {
		if p.ExperimentID == experimentID && p.Name == name {
			return model.Plate{}, ErrConflict
		}
	}
	p := model.Plate{
		ID:           m.id(),
		ExperimentID: experimentID,
		Name:         name,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
	}
	m.plates[p.ID] = p
	return p, nil
}

func (m *Memory) Plates(_ context.Context, experimentID int64) ([]model.Plate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Plate
	for _, p := range m.plates {
		if p.ExperimentID == experimentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) plateLocked(experimentID, id int64) (model.Plate, error) {
	p, ok := m.plates[id]
	if !ok || p.ExperimentID != experimentID {
		return model.Plate{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) Plate(_ context.Context, experimentID, id int64) (model.Plate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plateLocked(experimentID, id)
}

func (m *Memory) PlateByName(_ context.Context, experimentID int64, name string) (model.Plate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.plates {
		if p.ExperimentID == experimentID && p.Name == name {
			return p, nil
		}
	}
	return model.Plate{}, ErrNotFound
}

func (m *Memory) RenamePlate(_ context.Context, experimentID, id int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.plateLocked(experimentID, id)
	if err != nil {
		return err
	}
	for _, other := range m.plates {
		if other.ID != id && other.ExperimentID == experimentID && other.Name == name {
			return ErrConflict
		}
	}
	p.Name = name
	m.plates[id] = p
	return nil
}

func (m *Memory) DeletePlate(_ context.Context, experimentID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.plateLocked(experimentID, id); err != nil {
		return err
	}
	delete(m.plates, id)
	for aid, a := range m.acquisitions {
		if a.PlateID == id {
			delete(m.acquisitions, aid)
			for fid, f := range m.files {
				if f.AcquisitionID == aid {
					delete(m.files, fid)
				}
			}
		}
	}
	return nil
}

// Acquisitions

func (m *Memory) CreateAcquisition(_ context.Context, plateID int64, name, description string) (model.Acquisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plates[plateID]; !ok {
		return model.Acquisition{}, ErrNotFound
	}
	for _, a := range m.acquisitions {
		if a.PlateID == plateID && a.Name == name {
			return model.Acquisition{}, ErrConflict
		}
	}
	a := model.Acquisition{
		ID:          m.id(),
		PlateID:     plateID,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	m.acquisitions[a.ID] = a
	return a, nil
}

func (m *Memory) acquisitionLocked(experimentID, id int64) (model.Acquisition, error) {
	a, ok := m.acquisitions[id]
	if !ok {
		return model.Acquisition{}, ErrNotFound
	}
	p, ok := m.plates[a.PlateID]
	if !ok || p.ExperimentID != experimentID {
		return model.Acquisition{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) Acquisitions(_ context.Context, experimentID int64, filter AcquisitionFilter) ([]model.Acquisition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Acquisition
	for _, a := range m.acquisitions {
		p, ok := m.plates[a.PlateID]
		if !ok || p.ExperimentID != experimentID {
			continue
		}
		if filter.Name != "" && a.Name != filter.Name {
			continue
		}
		if filter.PlateName != "" && p.Name != filter.PlateName {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Acquisition(_ context.Context, experimentID, id int64) (model.Acquisition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.acquisitionLocked(experimentID, id)
}

func (m *Memory) RenameAcquisition(_ context.Context, experimentID, id int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.acquisitionLocked(experimentID, id)
	if err != nil {
		return err
	}
	for _, other := range m.acquisitions {
		if other.ID != id && other.PlateID == a.PlateID && other.Name == name {
			return ErrConflict
		}
	}
	a.Name = name
	m.acquisitions[id] = a
	return nil
}

func (m *Memory) DeleteAcquisition(_ context.Context, experimentID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.acquisitionLocked(experimentID, id); err != nil {
		return err
	}
	delete(m.acquisitions, id)
	for fid, f := range m.files {
		if f.AcquisitionID == id {
			delete(m.files, fid)
		}
	}
	return nil
}

// Microscope files

func (m *Memory) RegisterFiles(_ context.Context, acquisitionID int64, files []model.MicroscopeFile) ([]model.MicroscopeFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.acquisitions[acquisitionID]; !ok {
		return nil, ErrNotFound
	}
	existing := make(map[string]bool)
	for _, f := range m.files {
		if f.AcquisitionID == acquisitionID {
			existing[f.Name] = true
		}
	}
	var created []model.MicroscopeFile
	for _, f := range files {
		if existing[f.Name] {
			continue
		}
		f.ID = m.id()
		f.AcquisitionID = acquisitionID
		if f.Status == "" {
			f.Status = model.UploadWaiting
		}
		m.files[f.ID] = f
		existing[f.Name] = true
		created = append(created, f)
	}
	return created, nil
}

func (m *Memory) Files(_ context.Context, acquisitionID int64, kind model.MicroscopeFileKind) ([]model.MicroscopeFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.MicroscopeFile
	for _, f := range m.files {
		if f.AcquisitionID == acquisitionID && f.Kind == kind {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].Name, out[j].Name) < 0
	})
	return out, nil
}

func (m *Memory) AllFiles(_ context.Context, acquisitionID int64) ([]model.MicroscopeFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.MicroscopeFile
	for _, f := range m.files {
		if f.AcquisitionID == acquisitionID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) FileByName(_ context.Context, acquisitionID int64, name string) (model.MicroscopeFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.files {
		if f.AcquisitionID == acquisitionID && f.Name == name {
			return f, nil
		}
	}
	return model.MicroscopeFile{}, ErrNotFound
}

func (m *Memory) SetFileStatus(_ context.Context, fileID int64, status model.UploadStatus, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok {
		return ErrNotFound
	}
	f.Status = status
	if size > 0 {
		f.Size = size
	}
	m.files[fileID] = f
	return nil
}

func (m *Memory) CompleteFileCount(_ context.Context, acquisitionID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, f := range m.files {
		if f.AcquisitionID == acquisitionID && f.Status == model.UploadComplete {
			n++
		}
	}
	return n, nil
}

// Mapobject types and features

func (m *Memory) GetOrCreateMapobjectType(_ context.Context, experimentID int64, name string) (model.MapobjectType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.experiments[experimentID]; !ok {
		return model.MapobjectType{}, ErrNotFound
	}
	for _, mt := range m.mapobjectTypes {
		if mt.ExperimentID == experimentID && mt.Name == name {
			return mt, nil
		}
	}
	mt := model.MapobjectType{ID: m.id(), ExperimentID: experimentID, Name: name}
	m.mapobjectTypes[mt.ID] = mt
	return mt, nil
}

func (m *Memory) MapobjectTypes(_ context.Context, experimentID int64, name string) ([]model.MapobjectType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.MapobjectType
	for _, mt := range m.mapobjectTypes {
		if mt.ExperimentID != experimentID {
			continue
		}
		if name != "" && mt.Name != name {
			continue
		}
		out = append(out, mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) mapobjectTypeLocked(experimentID, id int64) (model.MapobjectType, error) {
	mt, ok := m.mapobjectTypes[id]
	if !ok || mt.ExperimentID != experimentID {
		return model.MapobjectType{}, ErrNotFound
	}
	return mt, nil
}

func (m *Memory) MapobjectType(_ context.Context, experimentID, id int64) (model.MapobjectType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mapobjectTypeLocked(experimentID, id)
}

func (m *Memory) RenameMapobjectType(_ context.Context, experimentID, id int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, err := m.mapobjectTypeLocked(experimentID, id)
	if err != nil {
		return err
	}
	for _, other := range m.mapobjectTypes {
		if other.ID != id && other.ExperimentID == experimentID && other.Name == name {
			return ErrConflict
		}
	}
	mt.Name = name
	m.mapobjectTypes[id] = mt
	return nil
}

func (m *Memory) DeleteMapobjectType(_ context.Context, experimentID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.mapobjectTypeLocked(experimentID, id); err != nil {
		return err
	}
	delete(m.mapobjectTypes, id)
	for fid, f := range m.features {
		if f.MapobjectTypeID == id {
			delete(m.features, fid)
		}
	}
	delete(m.featureValues, id)
	delete(m.segmentations, id)
	return nil
}

func (m *Memory) Features(_ context.Context, mapobjectTypeID int64) ([]model.Feature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Feature
	for _, f := range m.features {
		if f.MapobjectTypeID == mapobjectTypeID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) featureLocked(experimentID, id int64) (model.Feature, error) {
	f, ok := m.features[id]
	if !ok {
		return model.Feature{}, ErrNotFound
	}
	if _, err := m.mapobjectTypeLocked(experimentID, f.MapobjectTypeID); err != nil {
		return model.Feature{}, ErrNotFound
	}
	return f, nil
}

func (m *Memory) RenameFeature(_ context.Context, experimentID, id int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.featureLocked(experimentID, id)
	if err != nil {
		return err
	}
	for _, other := range m.features {
		if other.ID != id && other.MapobjectTypeID == f.MapobjectTypeID && other.Name == name {
			return ErrConflict
		}
	}
	oldName := f.Name
	f.Name = name
	m.features[id] = f
	// Keep stored values reachable under the new name.
	if values, ok := m.featureValues[f.MapobjectTypeID]; ok {
		for _, perObject := range values {
			if v, ok := perObject[oldName]; ok {
				delete(perObject, oldName)
				perObject[name] = v
			}
		}
	}
	return nil
}

func (m *Memory) DeleteFeature(_ context.Context, experimentID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.featureLocked(experimentID, id)
	if err != nil {
		return err
	}
	delete(m.features, id)
	if values, ok := m.featureValues[f.MapobjectTypeID]; ok {
		for _, perObject := range values {
			delete(perObject, f.Name)
		}
	}
	return nil
}

func (m *Memory) AddFeatureValues(_ context.Context, mapobjectTypeID int64, values []model.FeatureValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mapobjectTypes[mapobjectTypeID]; !ok {
		return ErrNotFound
	}
	known := make(map[string]bool)
	for _, f := range m.features {
		if f.MapobjectTypeID == mapobjectTypeID {
			known[f.Name] = true
		}
	}
	perType, ok := m.featureValues[mapobjectTypeID]
	if !ok {
		perType = make(map[int64]map[string]float64)
		m.featureValues[mapobjectTypeID] = perType
	}
	for _, fv := range values {
		perObject, ok := perType[fv.MapobjectID]
		if !ok {
			perObject = make(map[string]float64)
			perType[fv.MapobjectID] = perObject
		}
		for name, v := range fv.Values {
			if !known[name] {
				fid := m.id()
				m.features[fid] = model.Feature{
					ID:              fid,
					MapobjectTypeID: mapobjectTypeID,
					Name:            name,
				}
				known[name] = true
			}
			perObject[name] = v
		}
	}
	return nil
}

func (m *Memory) FeatureValues(_ context.Context, mapobjectTypeID int64) ([]model.FeatureValues, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	perType := m.featureValues[mapobjectTypeID]
	out := make([]model.FeatureValues, 0, len(perType))
	for objectID, perObject := range perType {
		values := make(map[string]float64, len(perObject))
		for k, v := range perObject {
			values[k] = v
		}
		out = append(out, model.FeatureValues{MapobjectID: objectID, Values: values})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MapobjectID < out[j].MapobjectID })
	return out, nil
}

// Segmentations

func (m *Memory) PutSegmentation(_ context.Context, mapobjectTypeID int64, site model.SegmentationSite, image [][]int32) ([]model.SegmentedObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mapobjectTypes[mapobjectTypeID]; !ok {
		return nil, ErrNotFound
	}
	perType, ok := m.segmentations[mapobjectTypeID]
	if !ok {
		perType = make(map[model.SegmentationSite]*memorySegmentation)
		m.segmentations[mapobjectTypeID] = perType
	}
	seg, ok := perType[site]
	if !ok {
		seg = &memorySegmentation{objects: make(map[int32]model.SegmentedObject)}
		perType[site] = seg
	}
	seg.image = copyLabelImage(image)

	labels := model.ImageLabels(image)
	present := make(map[int32]bool, len(labels))
	out := make([]model.SegmentedObject, 0, len(labels))
	for _, label := range labels {
		present[label] = true
		obj, ok := seg.objects[label]
		if !ok {
			obj = model.SegmentedObject{MapobjectID: m.id(), Label: label}
		}
		obj.IsBorder = model.LabelTouchesBorder(image, label)
		seg.objects[label] = obj
		out = append(out, obj)
	}
	for label := range seg.objects {
		if !present[label] {
			delete(seg.objects, label)
		}
	}
	return out, nil
}

func (m *Memory) Segmentation(_ context.Context, mapobjectTypeID int64, site model.SegmentationSite) ([][]int32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seg, ok := m.segmentations[mapobjectTypeID][site]
	if !ok {
		return nil, ErrNotFound
	}
	return copyLabelImage(seg.image), nil
}

func (m *Memory) ObjectMetadata(_ context.Context, mapobjectTypeID int64, filter SegmentationFilter) ([]model.ObjectMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.mapobjectTypes[mapobjectTypeID]; !ok {
		return nil, ErrNotFound
	}
	var out []model.ObjectMetadata
	for site, seg := range m.segmentations[mapobjectTypeID] {
		if filter.PlateName != "" && site.PlateName != filter.PlateName {
			continue
		}
		if filter.WellName != "" && site.WellName != filter.WellName {
			continue
		}
		if filter.Tpoint != nil && site.Tpoint != *filter.Tpoint {
			continue
		}
		for _, obj := range seg.objects {
			out = append(out, model.ObjectMetadata{
				MapobjectID: obj.MapobjectID,
				Site:        site,
				Label:       obj.Label,
				IsBorder:    obj.IsBorder,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MapobjectID < out[j].MapobjectID })
	return out, nil
}

func copyLabelImage(img [][]int32) [][]int32 {
	out := make([][]int32, len(img))
	for i, row := range img {
		out[i] = append([]int32(nil), row...)
	}
	return out
}
