package api

import (
	"context"
	"net/http"

	"github.com/tissuemaps/tmserver/internal/model"
	"github.com/tissuemaps/tmserver/internal/store"
)

type acquisitionView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PlateID     string `json:"plate_id"`
	Status      string `json:"status"`
}

// viewAcquisition derives the acquisition's status from its registered
// files. An acquisition with no files is still waiting for uploads.
func (a *API) viewAcquisition(ctx context.Context, acq model.Acquisition) (acquisitionView, error) {
	files, err := a.store.AllFiles(ctx, acq.ID)
	if err != nil {
		return acquisitionView{}, err
	}
	return acquisitionView{
		ID:          model.EncodeID(acq.ID),
		Name:        acq.Name,
		Description: acq.Description,
		PlateID:     model.EncodeID(acq.PlateID),
		Status:      string(model.AggregateStatus(files)),
	}, nil
}

func (a *API) listAcquisitions(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	filter := store.AcquisitionFilter{
		Name:      r.URL.Query().Get("name"),
		PlateName: r.URL.Query().Get("plate_name"),
	}
	acquisitions, err := a.store.Acquisitions(r.Context(), experimentID, filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	views := make([]acquisitionView, 0, len(acquisitions))
	for _, acq := range acquisitions {
		v, err := a.viewAcquisition(r.Context(), acq)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		views = append(views, v)
	}
	respondData(w, http.StatusOK, views)
}

func (a *API) createAcquisition(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req struct {
		PlateName   string `json:"plate_name"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Name == "" || req.PlateName == "" {
		a.writeError(w, r, malformedf("acquisition name and plate_name are required"))
		return
	}
	plate, err := a.store.PlateByName(r.Context(), experimentID, req.PlateName)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	acq, err := a.store.CreateAcquisition(r.Context(), plate.ID, req.Name, req.Description)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	v, err := a.viewAcquisition(r.Context(), acq)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, v)
}

func (a *API) getAcquisition(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	acquisitionID, err := urlID(r, "acquisition_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	acq, err := a.store.Acquisition(r.Context(), experimentID, acquisitionID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	v, err := a.viewAcquisition(r.Context(), acq)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, v)
}

func (a *API) renameAcquisition(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	acquisitionID, err := urlID(r, "acquisition_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		a.writeError(w, r, malformedf("acquisition name is required"))
		return
	}
	if err := a.store.RenameAcquisition(r.Context(), experimentID, acquisitionID, req.Name); err != nil {
		a.writeError(w, r, err)
		return
	}
	respondOK(w)
}

func (a *API) deleteAcquisition(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	acquisitionID, err := urlID(r, "acquisition_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.store.DeleteAcquisition(r.Context(), experimentID, acquisitionID); err != nil {
		a.writeError(w, r, err)
		return
	}
	respondOK(w)
}
