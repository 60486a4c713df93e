// Package api implements the JSON HTTP API of tmserver. Handlers exchange
// entities with base64-encoded external ids and answer with a {"data": ...}
// envelope; errors carry a typed envelope with the HTTP status repeated in
// the body.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tissuemaps/tmserver/internal/model"
	"github.com/tissuemaps/tmserver/internal/store"
)

// API holds the dependencies shared by all handlers.
type API struct {
	store       store.Store
	log         *slog.Logger
	storageHome string
}

// New creates the API. storageHome is the root directory for uploaded
// microscope files.
func New(s store.Store, logger *slog.Logger, storageHome string) *API {
	return &API{store: s, log: logger, storageHome: storageHome}
}

// Router builds the route tree mounted under /api. Authentication is the
// caller's concern; every route here assumes it already happened.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/experiments", func(r chi.Router) {
		r.Get("/", a.listExperiments)
		r.Post("/", a.createExperiment)

		r.Route("/{experiment_id}", func(r chi.Router) {
			r.Get("/", a.getExperiment)
			r.Delete("/", a.deleteExperiment)

			r.Route("/plates", func(r chi.Router) {
				r.Get("/", a.listPlates)
				r.Post("/", a.createPlate)
				r.Route("/{plate_id}", func(r chi.Router) {
					r.Get("/", a.getPlate)
					r.Put("/", a.renamePlate)
					r.Delete("/", a.deletePlate)
				})
			})

			r.Route("/acquisitions", func(r chi.Router) {
				r.Get("/", a.listAcquisitions)
				r.Post("/", a.createAcquisition)
				r.Route("/{acquisition_id}", func(r chi.Router) {
					r.Get("/", a.getAcquisition)
					r.Put("/", a.renameAcquisition)
					r.Delete("/", a.deleteAcquisition)

					r.Post("/upload/register", a.registerUpload)
					r.Post("/upload/validity-check", a.checkUploadValidity)
					r.Post("/microscope-file", a.uploadMicroscopeFile)
					r.Get("/upload/count", a.uploadedFileCount)
					r.Get("/images", a.listImageFiles)
					r.Get("/metadata", a.listMetadataFiles)
				})
			})

			r.Route("/mapobject_types", func(r chi.Router) {
				r.Get("/", a.listMapobjectTypes)
				r.Post("/", a.createMapobjectType)
				r.Route("/{mapobject_type_id}", func(r chi.Router) {
					r.Put("/", a.renameMapobjectType)
					r.Delete("/", a.deleteMapobjectType)
					r.Get("/features", a.listFeatures)
					r.Post("/feature-values", a.addFeatureValues)
					r.Get("/feature-values", a.downloadFeatureValues)
					r.Post("/segmentations", a.addSegmentations)
					r.Get("/segmentations", a.getSegmentations)
					r.Get("/metadata", a.downloadObjectMetadata)
				})
			})

			r.Route("/features/{feature_id}", func(r chi.Router) {
				r.Put("/", a.renameFeature)
				r.Delete("/", a.deleteFeature)
			})
		})
	})

	return r
}

// urlID decodes the external id stored in the named URL parameter.
func urlID(r *http.Request, key string) (int64, error) {
	encoded := chi.URLParam(r, key)
	id, err := model.DecodeID(encoded)
	if err != nil {
		return 0, malformedf("invalid %s %q", key, encoded)
	}
	return id, nil
}
