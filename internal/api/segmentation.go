package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tissuemaps/tmserver/internal/model"
	"github.com/tissuemaps/tmserver/internal/store"
)

// addSegmentations uploads a labeled 2D pixel array for one site of a
// mapobject type. Positive pixel values identify objects; re-uploading a
// site replaces its previous segmentation while keeping object ids stable
// for labels that persist.
func (a *API) addSegmentations(w http.ResponseWriter, r *http.Request) {
	_, mt, err := a.resolveMapobjectType(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req struct {
		PlateName string    `json:"plate_name"`
		WellName  string    `json:"well_name"`
		Tpoint    *int      `json:"tpoint"`
		Zplane    *int      `json:"zplane"`
		Image     [][]int32 `json:"image"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.PlateName == "" || req.WellName == "" {
		a.writeError(w, r, malformedf("plate_name and well_name are required"))
		return
	}
	if req.Tpoint == nil || req.Zplane == nil {
		a.writeError(w, r, malformedf("tpoint and zplane are required"))
		return
	}
	if err := model.ValidateLabelImage(req.Image); err != nil {
		a.writeError(w, r, malformedf("%v", err))
		return
	}
	site := model.SegmentationSite{
		PlateName: req.PlateName,
		WellName:  req.WellName,
		Tpoint:    *req.Tpoint,
		Zplane:    *req.Zplane,
	}
	objects, err := a.store.PutSegmentation(r.Context(), mt.ID, site, req.Image)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.log.Info("stored segmentation",
		"mapobject_type", mt.Name,
		"plate", site.PlateName,
		"well", site.WellName,
		"objects", len(objects),
	)
	respondOK(w)
}

// getSegmentations returns the labeled image stored for one site,
// addressed by plate_name, well_name, tpoint and zplane query parameters.
func (a *API) getSegmentations(w http.ResponseWriter, r *http.Request) {
	_, mt, err := a.resolveMapobjectType(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	site := model.SegmentationSite{
		PlateName: q.Get("plate_name"),
		WellName:  q.Get("well_name"),
	}
	if site.PlateName == "" || site.WellName == "" {
		a.writeError(w, r, malformedf("plate_name and well_name are required"))
		return
	}
	if site.Tpoint, err = strconv.Atoi(q.Get("tpoint")); err != nil {
		a.writeError(w, r, malformedf("invalid tpoint %q", q.Get("tpoint")))
		return
	}
	if site.Zplane, err = strconv.Atoi(q.Get("zplane")); err != nil {
		a.writeError(w, r, malformedf("invalid zplane %q", q.Get("zplane")))
		return
	}
	image, err := a.store.Segmentation(r.Context(), mt.ID, site)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, image)
}

// downloadObjectMetadata streams positional metadata for the segmented
// objects of one mapobject type as CSV, one row per object. plate_name,
// well_name and tpoint query parameters narrow the export.
func (a *API) downloadObjectMetadata(w http.ResponseWriter, r *http.Request) {
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
	q := r.URL.Query()
	filter := store.SegmentationFilter{
		PlateName: q.Get("plate_name"),
		WellName:  q.Get("well_name"),
	}
	if raw := q.Get("tpoint"); raw != "" {
		tpoint, err := strconv.Atoi(raw)
		if err != nil {
			a.writeError(w, r, malformedf("invalid tpoint %q", raw))
			return
		}
		filter.Tpoint = &tpoint
	}
	rows, err := a.store.ObjectMetadata(r.Context(), mt.ID, filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("%s_%s_metadata.csv", experiment.Name, mt.Name)
	out, finish := csvAttachment(w, r, filename)
	defer finish()

	cw := csv.NewWriter(out)
	if err := cw.Write([]string{"id", "plate_name", "well_name", "tpoint", "zplane", "label", "is_border"}); err != nil {
		a.log.Error("csv write failed", "error", err)
		return
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.MapobjectID, 10),
			row.Site.PlateName,
			row.Site.WellName,
			strconv.Itoa(row.Site.Tpoint),
			strconv.Itoa(row.Site.Zplane),
			strconv.FormatInt(int64(row.Label), 10),
			strconv.FormatBool(row.IsBorder),
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
