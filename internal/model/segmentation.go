package model

import (
	"errors"
	"sort"
)

// SegmentationSite locates one labeled image within an experiment. Sites
// are addressed by plate and well name together with the time point and
// z-plane of the recording.
type SegmentationSite struct {
	PlateName string `json:"plate_name"`
	WellName  string `json:"well_name"`
	Tpoint    int    `json:"tpoint"`
	Zplane    int    `json:"zplane"`
}

// SegmentedObject is one labeled connected component recorded for a site.
// Every object is backed by a mapobject id, which stays stable when the
// site's segmentation is re-uploaded with the same label.
type SegmentedObject struct {
	MapobjectID int64
	Label       int32
	IsBorder    bool
}

// ObjectMetadata is one row of the positional metadata export of a
// mapobject type.
type ObjectMetadata struct {
	MapobjectID int64
	Site        SegmentationSite
	Label       int32
	IsBorder    bool
}

// ValidateLabelImage checks that img is a non-empty rectangular 2D pixel
// array. Pixel values encode object identity; background is zero.
func ValidateLabelImage(img [][]int32) error {
	if len(img) == 0 || len(img[0]) == 0 {
		return errors.New("label image must not be empty")
	}
	width := len(img[0])
	for _, row := range img {
		if len(row) != width {
			return errors.New("label image rows must all have the same length")
		}
	}
	return nil
}

// ImageLabels returns the distinct positive labels in img in ascending
// order. Zero and negative pixels are background.
func ImageLabels(img [][]int32) []int32 {
	seen := make(map[int32]bool)
	for _, row := range img {
		for _, px := range row {
			if px > 0 {
				seen[px] = true
			}
		}
	}
	labels := make([]int32, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// LabelTouchesBorder reports whether any pixel carrying label lies on the
// outermost rows or columns of img. Border objects are usually excluded
// from analysis because they are only partially imaged.
func LabelTouchesBorder(img [][]int32, label int32) bool {
	if len(img) == 0 {
		return false
	}
	lastRow := len(img) - 1
	for x, px := range img[0] {
		if px == label || img[lastRow][x] == label {
			return true
		}
	}
	for _, row := range img {
		if row[0] == label || row[len(row)-1] == label {
			return true
		}
	}
	return false
}
