package model

// UploadStatus tracks the lifecycle of a registered microscope file and,
// in aggregate, of an acquisition.
type UploadStatus string

const (
	UploadWaiting   UploadStatus = "WAITING"
	UploadUploading UploadStatus = "UPLOADING"
	UploadComplete  UploadStatus = "COMPLETE"
	UploadFailed    UploadStatus = "FAILED"
)

// AggregateStatus derives an acquisition's status from its files.
// No files or any file still waiting means the acquisition is WAITING
// once nothing is actively uploading; a single FAILED file marks the
// whole acquisition FAILED.
func AggregateStatus(files []MicroscopeFile) UploadStatus {
	if len(files) == 0 {
		return UploadWaiting
	}
	allComplete := true
	anyUploading := false
	for _, f := range files {
		switch f.Status {
		case UploadFailed:
			return UploadFailed
		case UploadUploading:
			anyUploading = true
			allComplete = false
		case UploadWaiting:
			allComplete = false
		}
	}
	if anyUploading {
		return UploadUploading
	}
	if allComplete {
		return UploadComplete
	}
	return UploadWaiting
}
