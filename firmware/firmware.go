// Package firmware implements the firmware version workflow: binary upload
// into blob storage, version listing, and the stable version pointer.
package firmware

import (
	"fmt"
	"strings"

	"github.com/farmgate-io/farmgate/core/kss"
	"github.com/farmgate-io/farmgate/store"
)

// binaryKey returns the blob key for the binary of a version. At most one
// binary object exists per version.
func binaryKey(version string) string {
	return "firmware/" + version + "/firmware.bin"
}

func versionPrefix(version string) string {
	return "firmware/" + version + "/"
}

// Notifier is informed about firmware events. Notification failures must
// never surface to the caller.
type Notifier interface {
	FirmwareUploaded(version string)
	StableChanged(version string)
}

// Builder is a builder helper for the Workflow
type Builder struct {
	// Blobs is the object storage for firmware binaries. This is mandatory.
	Blobs kss.Driver
	// Stable is the stable firmware pointer store. This is mandatory.
	Stable *store.StableFirmware
	// Notifier is optional.
	Notifier Notifier
}

// Workflow manages uploaded firmware binaries and the stable version
// pointer.
type Workflow struct {
	blobs    kss.Driver
	stable   *store.StableFirmware
	notifier Notifier
}

// NewWorkflow returns a new firmware workflow.
func NewWorkflow(b *Builder) *Workflow {
	if b.Blobs == nil {
		panic("Blobs is missing")
	}
	if b.Stable == nil {
		panic("Stable is missing")
	}
	return &Workflow{blobs: b.Blobs, stable: b.Stable, notifier: b.Notifier}
}

// Upload validates version and filename, replaces any previously stored
// binary for the version and stores data. It returns only after the
// storage confirmed the write.
func (wf *Workflow) Upload(version, filename string, data []byte) error {
	if !store.IsValidVersion(version) {
		return store.ValidationError{Reason: fmt.Sprintf("'%s' is not a valid major.minor.patch version", version)}
	}
	if !strings.HasSuffix(filename, ".bin") {
		return store.ValidationError{Reason: "firmware file must have a .bin extension"}
	}

	if err := wf.blobs.DeleteAllWithPrefix(versionPrefix(version)); err != nil {
		return fmt.Errorf("delete previous binary of %s: %w", version, err)
	}
	if err := wf.blobs.UploadData(binaryKey(version), data, "application/octet-stream"); err != nil {
		return fmt.Errorf("store binary of %s: %w", version, err)
	}

	if wf.notifier != nil {
		wf.notifier.FirmwareUploaded(version)
	}
	return nil
}

// Versions returns the deduplicated set of versions with a stored binary.
// The order is unspecified.
func (wf *Workflow) Versions() ([]string, error) {
	keys, err := wf.blobs.ListAllWithPrefix("firmware/")
	if err != nil {
		return nil, fmt.Errorf("list firmware binaries: %w", err)
	}

	seen := map[string]bool{}
	versions := []string{}
	for _, key := range keys {
		parts := strings.Split(key, "/")
		if len(parts) != 3 || parts[0] != "firmware" || parts[2] != "firmware.bin" {
			continue
		}
		version := parts[1]
		if !seen[version] {
			seen[version] = true
			versions = append(versions, version)
		}
	}
	return versions, nil
}

// SetStable records version as the latest stable firmware.
func (wf *Workflow) SetStable(version string) error {
	if err := wf.stable.Set(version); err != nil {
		return err
	}
	if wf.notifier != nil {
		wf.notifier.StableChanged(version)
	}
	return nil
}

// LatestStable returns the current stable firmware version, or
// store.ErrNotFound when none was ever set.
func (wf *Workflow) LatestStable() (string, error) {
	return wf.stable.Latest()
}
