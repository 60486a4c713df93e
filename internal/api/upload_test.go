package api_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tissuemaps/tmserver/internal/model"
)

func acquisitionPath(experimentID, acquisitionID int64) string {
	return "/api/experiments/" + model.EncodeID(experimentID) +
		"/acquisitions/" + model.EncodeID(acquisitionID)
}

func TestRegisterUpload(t *testing.T) {
	env := newTestEnv(t)
	experiment := env.createExperiment(t, "exp", model.MicroscopeVisiview)
	acq := env.createAcquisition(t, experiment.ID)
	base := acquisitionPath(experiment.ID, acq.ID)

	rec := env.do(t, http.MethodPost, base+"/upload/register", map[string]interface{}{
		"files": []string{"site1.stk", "site2.stk", "run.nd"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []string
	data(t, rec, &pending)
	assert.ElementsMatch(t, []string{"site1.stk", "site2.stk", "run.nd"}, pending)

	// Re-registering is idempotent and still lists the incomplete files.
	rec = env.do(t, http.MethodPost, base+"/upload/register", map[string]interface{}{
		"files": []string{"site1.stk", "site3.stk"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data(t, rec, &pending)
	assert.ElementsMatch(t, []string{"site1.stk", "site2.stk", "site3.stk", "run.nd"}, pending)
}

func TestRegisterUploadRejectsEmptyList(t *testing.T) {
	env := newTestEnv(t)
	experiment := env.createExperiment(t, "exp", model.MicroscopeVisiview)
	acq := env.createAcquisition(t, experiment.ID)

	rec := env.do(t, http.MethodPost, acquisitionPath(experiment.ID, acq.ID)+"/upload/register",
		map[string]interface{}{"files": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MalformedRequestError", errType(t, rec))
}

func TestRegisterUploadDropsUnrecognizedNames(t *testing.T) {
	env := newTestEnv(t)
	experiment := env.createExperiment(t, "exp", model.MicroscopeVisiview)
	acq := env.createAcquisition(t, experiment.ID)
	base := acquisitionPath(experiment.ID, acq.ID)

	// Names matching no visiview convention are silently skipped while
	// the recognized ones still register.
	rec := env.do(t, http.MethodPost, base+"/upload/register", map[string]interface{}{
		"files": []string{"site1.stk", "notes.txt", "record.mlf", "run.nd"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []string
	data(t, rec, &pending)
	assert.ElementsMatch(t, []string{"site1.stk", "run.nd"}, pending)

	registered, err := env.store.AllFiles(context.Background(), acq.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(registered))
	for _, f := range registered {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"site1.stk", "run.nd"}, names)
}

func TestRegisterUploadSanitizesFilenames(t *testing.T) {
	env := newTestEnv(t)
	experiment := env.createExperiment(t, "exp", model.MicroscopeVisiview)
	acq := env.createAcquisition(t, experiment.ID)

	rec := env.do(t, http.MethodPost, acquisitionPath(experiment.ID, acq.ID)+"/upload/register",
		map[string]interface{}{"files": []string{`C:\data\..\site 1.stk`}})
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []string
	data(t, rec, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, "site_1.stk", pending[0])
}

func TestUploadValidityCheck(t *testing.T) {
	env := newTestEnv(t)
	experiment := env.createExperiment(t, "exp", model.MicroscopeCellvoyager)
	acq := env.createAcquisition(t, experiment.ID)

	rec := env.do(t, http.MethodPost, acquisitionPath(experiment.ID, acq.ID)+"/upload/validity-check",
		map[string]interface{}{"files": []map[string]string{
			{"name": "well1.tif"},
			{"name": "layout.mrf"},
			{"name": "notes.txt"},
		}})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		IsValid []bool `json:"is_valid"`
	}
	require.NoError(t, jsonUnmarshal(rec, &body))
	assert.Equal(t, []bool{true, true, false}, body.IsValid)
}

func TestMicroscopeFileUpload(t *testing.T) {
	env := newTestEnv(t)
	experiment := env.createExperiment(t, "exp", model.MicroscopeVisiview)
	acq := env.createAcquisition(t, experiment.ID)
	base := acquisitionPath(experiment.ID, acq.ID)

	rec := env.do(t, http.MethodPost, base+"/upload/register",
		map[string]interface{}{"files": []string{"site1.stk"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.upload(t, base+"/microscope-file", "site1.stk", []byte("pixel data"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"ok"`)

	rec = env.do(t, http.MethodGet, base+"/upload/count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count int
	data(t, rec, &count)
	assert.Equal(t, 1, count)

	rec = env.do(t, http.MethodGet, base+"/images", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var images []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	data(t, rec, &images)
	require.Len(t, images, 1)
	assert.Equal(t, "site1.stk", images[0].Name)
	assert.Equal(t, string(model.UploadComplete), images[0].Status)

	// The acquisition itself is now complete.
	rec = env.do(t, http.MethodGet, base, nil)
	var view struct {
		Status string `json:"status"`
	}
	data(t, rec, &view)
	assert.Equal(t, string(model.UploadComplete), view.Status)
}

func TestUploadSkipsUnregisteredFile(t *testing.T) {
	env := newTestEnv(t)
	experiment := env.createExperiment(t, "exp", model.MicroscopeVisiview)
	acq := env.createAcquisition(t, experiment.ID)
	base := acquisitionPath(experiment.ID, acq.ID)

	rec := env.upload(t, base+"/microscope-file", "surprise.stk", []byte("x"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "not registered")

	rec = env.do(t, http.MethodGet, base+"/upload/count", nil)
	var count int
	data(t, rec, &count)
	assert.Zero(t, count)
}

func TestUploadAlreadyCompleteShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	experiment := env.createExperiment(t, "exp", model.MicroscopeVisiview)
	acq := env.createAcquisition(t, experiment.ID)
	base := acquisitionPath(experiment.ID, acq.ID)

	rec := env.do(t, http.MethodPost, base+"/upload/register",
		map[string]interface{}{"files": []string{"site1.stk"}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.upload(t, base+"/microscope-file", "site1.stk", []byte("first"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.upload(t, base+"/microscope-file", "site1.stk", []byte("second"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "already")
}

// upload sends one file as the multipart "file" field.
func (e *testEnv) upload(t *testing.T, path, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}
