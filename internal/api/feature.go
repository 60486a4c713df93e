package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/tissuemaps/tmserver/internal/model"
)

type featureView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a *API) listFeatures(w http.ResponseWriter, r *http.Request) {
	_, mt, err := a.resolveMapobjectType(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	features, err := a.store.Features(r.Context(), mt.ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	views := make([]featureView, 0, len(features))
	for _, f := range features {
		views = append(views, featureView{ID: model.EncodeID(f.ID), Name: f.Name})
	}
	respondData(w, http.StatusOK, views)
}

func (a *API) renameFeature(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	featureID, err := urlID(r, "feature_id")
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
		a.writeError(w, r, malformedf("feature name is required"))
		return
	}
	if err := a.store.RenameFeature(r.Context(), experimentID, featureID, req.Name); err != nil {
		a.writeError(w, r, err)
		return
	}
	respondOK(w)
}

func (a *API) deleteFeature(w http.ResponseWriter, r *http.Request) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	featureID, err := urlID(r, "feature_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.store.DeleteFeature(r.Context(), experimentID, featureID); err != nil {
		a.writeError(w, r, err)
		return
	}
	respondOK(w)
}

// addFeatureValues uploads measured values for segmented objects of one
// mapobject type. Features not seen before are created on the fly.
func (a *API) addFeatureValues(w http.ResponseWriter, r *http.Request) {
	_, mt, err := a.resolveMapobjectType(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req struct {
		Values []struct {
			MapobjectID int64              `json:"mapobject_id"`
			Values      map[string]float64 `json:"values"`
		} `json:"values"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(req.Values) == 0 {
		a.writeError(w, r, malformedf("no values provided"))
		return
	}
	values := make([]model.FeatureValues, 0, len(req.Values))
	for _, v := range req.Values {
		values = append(values, model.FeatureValues{
			MapobjectID: v.MapobjectID,
			Values:      v.Values,
		})
	}
	if err := a.store.AddFeatureValues(r.Context(), mt.ID, values); err != nil {
		a.writeError(w, r, err)
		return
	}
	respondOK(w)
}

// downloadFeatureValues streams the feature matrix of one mapobject type
// as CSV, one row per object, columns ordered by feature name. The body is
// gzip-compressed when the client advertises support for it.
func (a *API) downloadFeatureValues(w http.ResponseWriter, r *http.Request) {
	experimentID, mt, err := a.resolveMapobjectType(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	experiment, err := a.store.Experiment(r.Context(), experimentID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	rows, err := a.store.FeatureValues(r.Context(), mt.ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	features, err := a.store.Features(r.Context(), mt.ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, f.Name)
	}
	sort.Strings(names)

	filename := fmt.Sprintf("%s_%s_feature-values.csv", experiment.Name, mt.Name)
	out, finish := csvAttachment(w, r, filename)
	defer finish()

	cw := csv.NewWriter(out)
	header := append([]string{"id"}, names...)
	if err := cw.Write(header); err != nil {
		a.log.Error("csv write failed", "error", err)
		return
	}
	record := make([]string, len(header))
	for _, row := range rows {
		record[0] = strconv.FormatInt(row.MapobjectID, 10)
		for i, name := range names {
			if v, ok := row.Values[name]; ok {
				record[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
			} else {
				record[i+1] = ""
			}
		}
		if err := cw.Write(record); err != nil {
			a.log.Error("csv write failed", "error", err)
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		a.log.Error("csv flush failed", "error", err)
	}
}

// resolveMapobjectType decodes the experiment and mapobject type ids from
// the URL and verifies the type belongs to the experiment.
func (a *API) resolveMapobjectType(r *http.Request) (int64, model.MapobjectType, error) {
	experimentID, err := urlID(r, "experiment_id")
	if err != nil {
		return 0, model.MapobjectType{}, err
	}
	typeID, err := urlID(r, "mapobject_type_id")
	if err != nil {
		return 0, model.MapobjectType{}, err
	}
	mt, err := a.store.MapobjectType(r.Context(), experimentID, typeID)
	if err != nil {
		return 0, model.MapobjectType{}, err
	}
	return experimentID, mt, nil
}
