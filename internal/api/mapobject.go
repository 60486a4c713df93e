package api

import (
	"net/http"

	"github.com/tissuemaps/tmserver/internal/model"
)

type mapobjectTypeView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func viewMapobjectType(mt model.MapobjectType) mapobjectTypeView {
	return mapobjectTypeView{ID: model.EncodeID(mt.ID), Name: mt.Name}
}

func (a *API) listMapobjectTypes(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	types, err := a.store.MapobjectTypes(r.Context(), experimentID, r.URL.Query().Get("name"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	views := make([]mapobjectTypeView, 0, len(types))
	for _, mt := range types {
		views = append(views, viewMapobjectType(mt))
	}
	respondData(w, http.StatusOK, views)
}

// createMapobjectType is idempotent: posting an existing name returns the
// existing type, so result consumers can upsert without a prior lookup.
func (a *API) createMapobjectType(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
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
		a.writeError(w, r, malformedf("mapobject type name is required"))
		return
	}
	mt, err := a.store.GetOrCreateMapobjectType(r.Context(), experimentID, req.Name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, viewMapobjectType(mt))
}

func (a *API) renameMapobjectType(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	typeID, err := urlID(r, "mapobject_type_id")
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
		a.writeError(w, r, malformedf("mapobject type name is required"))
		return
	}
	if err := a.store.RenameMapobjectType(r.Context(), experimentID, typeID, req.Name); err != nil {
		a.writeError(w, r, err)
		return
	}
	respondOK(w)
}

func (a *API) deleteMapobjectType(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	typeID, err := urlID(r, "mapobject_type_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.store.DeleteMapobjectType(r.Context(), experimentID, typeID); err != nil {
		a.writeError(w, r, err)
		return
	}
	respondOK(w)
}
