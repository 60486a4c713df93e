package api

import (
	"net/http"

	"github.com/tissuemaps/tmserver/internal/model"
)

type plateView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	ExperimentID string `json:"experiment_id"`
}

func viewPlate(p model.Plate) plateView {
	return plateView{
		ID:           model.EncodeID(p.ID),
		Name:         p.Name,
		Description:  p.Description,
		ExperimentID: model.EncodeID(p.ExperimentID),
	}
}

func (a *API) listPlates(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	plates, err := a.store.Plates(r.Context(), experimentID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	views := make([]plateView, 0, len(plates))
	for _, p := range plates {
		views = append(views, viewPlate(p))
	}
	respondData(w, http.StatusOK, views)
}

func (a *API) createPlate(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		a.writeError(w, r, malformedf("plate name is required"))
		return
	}
	plate, err := a.store.CreatePlate(r.Context(), experimentID, req.Name, req.Description)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, viewPlate(plate))
}

func (a *API) getPlate(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	plateID, err := urlID(r, "plate_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	plate, err := a.store.Plate(r.Context(), experimentID, plateID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, viewPlate(plate))
}

func (a *API) renamePlate(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	plateID, err := urlID(r, "plate_id")
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
		a.writeError(w, r, malformedf("plate name is required"))
		return
	}
	if err := a.store.RenamePlate(r.Context(), experimentID, plateID, req.Name); err != nil {
		a.writeError(w, r, err)
		return
	}
	respondOK(w)
}

func (a *API) deletePlate(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	plateID, err := urlID(r, "plate_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.store.DeletePlate(r.Context(), experimentID, plateID); err != nil {
		a.writeError(w, r, err)
		return
	}
	respondOK(w)
}
