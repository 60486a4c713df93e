package api

import (
	"net/http"

	"github.com/tissuemaps/tmserver/internal/metaconfig"
	"github.com/tissuemaps/tmserver/internal/model"
)

// experimentView is the external representation of an experiment.
type experimentView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	MicroscopeType string `json:"microscope_type"`
}

func viewExperiment(e model.Experiment) experimentView {
	return experimentView{
		ID:             model.EncodeID(e.ID),
		Name:           e.Name,
		Description:    e.Description,
		MicroscopeType: string(e.MicroscopeType),
	}
}

func (a *API) listExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := a.store.Experiments(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	views := make([]experimentView, 0, len(experiments))
	for _, e := range experiments {
		views = append(views, viewExperiment(e))
	}
	respondData(w, http.StatusOK, views)
}

func (a *API) createExperiment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string `json:"name"`
		Description    string `json:"description"`
		MicroscopeType string `json:"microscope_type"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		a.writeError(w, r, malformedf("experiment name is required"))
		return
	}
	mt := model.MicroscopeType(req.MicroscopeType)
	if req.MicroscopeType == "" {
		mt = model.MicroscopeGeneric
	}
	if !metaconfig.IsKnownType(mt) {
		a.writeError(w, r, malformedf("unsupported microscope type %q", req.MicroscopeType))
		return
	}

	experiment, err := a.store.CreateExperiment(r.Context(), req.Name, req.Description, mt)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, viewExperiment(experiment))
}

func (a *API) getExperiment(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	experiment, err := a.store.Experiment(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, viewExperiment(experiment))
}

func (a *API) deleteExperiment(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.store.DeleteExperiment(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	respondOK(w)
}
