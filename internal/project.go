package internal

import (
	"os"
	"sync"

	"cloud.google.com/go/compute/metadata"
	"golang.org/x/sync/singleflight"
)

// ProjectIDEnvKeys are checked in order when no project id is given.
var ProjectIDEnvKeys = []string{
	"DATASTORE_PROJECT_ID",
	"DATASTORE_DATASET",
	"GOOGLE_CLOUD_PROJECT",
	"GCLOUD_PROJECT",
	"PROJECT_ID",
}

const EmulatorHostEnvKey = "DATASTORE_EMULATOR_HOST"

var (
	getenv = os.Getenv

	metadataProjectID = func() (string, error) {
		if !metadata.OnGCE() {
			return "", nil
		}
		return metadata.ProjectID()
	}

	projectIDGroup singleflight.Group
	m              sync.Mutex
	discovered     *string
)

// ResolveProjectID returns explicit if it is set, then the first non-empty
// environment value, then the project id of the compute environment.
func ResolveProjectID(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, key := range ProjectIDEnvKeys {
		if v := getenv(key); v != "" {
			return v
		}
	}
	return discoverProjectID()
}

// ResolveEmulatorHost returns explicit if it is set, then DATASTORE_EMULATOR_HOST.
func ResolveEmulatorHost(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return getenv(EmulatorHostEnvKey)
}

func discoverProjectID() string {
	m.Lock()
	if discovered != nil {
		pID := *discovered
		m.Unlock()
		return pID
	}
	m.Unlock()

	v, _, _ := projectIDGroup.Do("projectID", func() (interface{}, error) {
		pID, err := metadataProjectID()
		if err != nil {
			// don't check again even if it was failed...
			pID = ""
		}
		m.Lock()
		discovered = &pID
		m.Unlock()
		return pID, nil
	})
	return v.(string)
}
