package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/tissuemaps/tmserver/internal/metaconfig"
	"github.com/tissuemaps/tmserver/internal/model"
	"github.com/tissuemaps/tmserver/internal/sanitize"
	"github.com/tissuemaps/tmserver/internal/store"
)

type fileView struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// registerUpload announces the files a client intends to upload for an
// acquisition. Filenames are sanitized and classified as image or metadata
// by the experiment's microscope-type conventions; names matching neither
// convention are dropped, so clients can announce a whole directory
// without curating it first. The response lists every registered file that
// has not completed yet, so interrupted uploads can resume.
func (a *API) registerUpload(w http.ResponseWriter, r *http.Request) {
	experimentID, acq, err := a.resolveAcquisition(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req struct {
		Files []string `json:"files"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(req.Files) == 0 {
		a.writeError(w, r, malformedf("no files provided"))
		return
	}

	experiment, err := a.store.Experiment(r.Context(), experimentID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	regex, err := metaconfig.ForType(experiment.MicroscopeType)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	files := make([]model.MicroscopeFile, 0, len(req.Files))
	for _, name := range req.Files {
		name = sanitize.SecureFilename(name)
		switch {
		case name == "":
			// Nothing usable survived sanitization.
		case regex.Image.MatchString(name):
			files = append(files, model.MicroscopeFile{Name: name, Kind: model.FileKindImage})
		case regex.Metadata.MatchString(name):
			files = append(files, model.MicroscopeFile{Name: name, Kind: model.FileKindMetadata})
		default:
			a.log.Debug("ignoring file that matches no filename convention",
				slog.String("name", name),
				slog.String("microscope_type", string(experiment.MicroscopeType)),
			)
		}
	}

	created, err := a.store.RegisterFiles(r.Context(), acq.ID, files)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.log.Info("registered files for upload",
		slog.String("acquisition", acq.Name),
		slog.Int("requested", len(req.Files)),
		slog.Int("new", len(created)),
	)

	all, err := a.store.AllFiles(r.Context(), acq.ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	pending := make([]string, 0, len(all))
	for _, f := range all {
		if f.Status != model.UploadComplete {
			pending = append(pending, f.Name)
		}
	}
	respondData(w, http.StatusOK, pending)
}

// checkUploadValidity reports, per file, whether its name matches the
// experiment's image or metadata conventions.
func (a *API) checkUploadValidity(w http.ResponseWriter, r *http.Request) {
	experimentID, _, err := a.resolveAcquisition(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req struct {
		Files []struct {
			Name string `json:"name"`
		} `json:"files"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(req.Files) == 0 {
		a.writeError(w, r, malformedf("no files provided"))
		return
	}

	experiment, err := a.store.Experiment(r.Context(), experimentID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	regex, err := metaconfig.ForType(experiment.MicroscopeType)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	valid := make([]bool, len(req.Files))
	for i, f := range req.Files {
		name := sanitize.SecureFilename(f.Name)
		valid[i] = name != "" &&
			(regex.Image.MatchString(name) || regex.Metadata.MatchString(name))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"is_valid": valid})
}

// uploadMicroscopeFile receives one registered file as multipart form data
// and stores it under the acquisition's directory. Unregistered files are
// skipped rather than rejected so clients can blindly stream a directory.
func (a *API) uploadMicroscopeFile(w http.ResponseWriter, r *http.Request) {
	experimentID, acq, err := a.resolveAcquisition(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, r, malformedf("missing multipart field \"file\": %v", err))
		return
	}
	defer part.Close()

	name := sanitize.SecureFilename(header.Filename)
	if name == "" {
		a.writeError(w, r, malformedf("invalid filename %q", header.Filename))
		return
	}

	file, err := a.store.FileByName(r.Context(), acq.ID, name)
	if errors.Is(err, store.ErrNotFound) {
		// Not an error from the client's perspective.
		a.log.Warn("skipping unregistered file", slog.String("name", name))
		writeJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("file %q is not registered for upload", name),
		})
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if file.Status == model.UploadComplete || file.Status == model.UploadUploading {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("upload of file %q already %s", name, file.Status),
		})
		return
	}

	if err := a.store.SetFileStatus(r.Context(), file.ID, model.UploadUploading, 0); err != nil {
		a.writeError(w, r, err)
		return
	}

	dir := a.acquisitionDir(experimentID, acq)
	size, err := writeUploadedFile(dir, name, part)
	if err != nil {
		if serr := a.store.SetFileStatus(r.Context(), file.ID, model.UploadFailed, 0); serr != nil {
			a.log.Error("failed to mark upload failed", slog.Any("error", serr))
		}
		a.writeError(w, r, fmt.Errorf("failed to store %q: %w", name, err))
		return
	}
	if err := a.store.SetFileStatus(r.Context(), file.ID, model.UploadComplete, size); err != nil {
		a.writeError(w, r, err)
		return
	}

	a.log.Info("stored microscope file",
		slog.String("name", name),
		slog.String("size", humanize.Bytes(uint64(size))),
		slog.String("acquisition", acq.Name),
	)
	respondOK(w)
}

func (a *API) uploadedFileCount(w http.ResponseWriter, r *http.Request) {
	_, acq, err := a.resolveAcquisition(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	count, err := a.store.CompleteFileCount(r.Context(), acq.ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, count)
}

func (a *API) listImageFiles(w http.ResponseWriter, r *http.Request) {
	a.listFilesOfKind(w, r, model.FileKindImage)
}

func (a *API) listMetadataFiles(w http.ResponseWriter, r *http.Request) {
	a.listFilesOfKind(w, r, model.FileKindMetadata)
}

func (a *API) listFilesOfKind(w http.ResponseWriter, r *http.Request, kind model.MicroscopeFileKind) {
	_, acq, err := a.resolveAcquisition(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	files, err := a.store.Files(r.Context(), acq.ID, kind)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	views := make([]fileView, 0, len(files))
	for _, f := range files {
		views = append(views, fileView{Name: f.Name, Status: string(f.Status)})
	}
	respondData(w, http.StatusOK, views)
}

// resolveAcquisition decodes the experiment and acquisition ids from the
// URL and verifies the acquisition belongs to the experiment.
func (a *API) resolveAcquisition(r *http.Request) (int64, model.Acquisition, error) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		return 0, model.Acquisition{}, err
	}
	acquisitionID, err := urlID(r, "acquisition_id")
	if err != nil {
		return 0, model.Acquisition{}, err
	}
	acq, err := a.store.Acquisition(r.Context(), experimentID, acquisitionID)
	if err != nil {
		return 0, model.Acquisition{}, err
	}
	return experimentID, acq, nil
}

// acquisitionDir is where uploaded files of one acquisition live on disk.
func (a *API) acquisitionDir(experimentID int64, acq model.Acquisition) string {
	return filepath.Join(a.storageHome,
		fmt.Sprintf("experiment_%d", experimentID),
		"plates", fmt.Sprintf("plate_%d", acq.PlateID),
		"acquisitions", fmt.Sprintf("acquisition_%d", acq.ID),
		"microscope_images",
	)
}

func writeUploadedFile(dir, name string, src io.Reader) (int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	return size, nil
}
