// Package objectstore provides artifact storage backends for finished audio.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsObjectStore implements core.ArtifactStore using a NATS JetStream object store.
// Locations are object keys within the bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// NewNats creates or binds to the bucket and returns a NatsObjectStore.
func NewNats(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Synthesized audio for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Put uploads the file at localPath under the job's key.
func (n *NatsObjectStore) Put(_ context.Context, jobID, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact '%s': %w", localPath, err)
	}
	defer file.Close()

	key := artifactName(jobID)

	_, err = n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "audio/mpeg",
		Headers:     nil,
		Metadata:    map[string]string{"job_id": jobID},
		Opts:        nil,
	}, file)
	if err != nil {
		return "", fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return key, nil
}

// Open returns a reader for the object. The caller closes it.
func (n *NatsObjectStore) Open(_ context.Context, location string) (io.ReadCloser, error) {
	obj, err := n.store.Get(location)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", location, n.bucket, err)
	}

	return obj, nil
}

// Exists reports whether the object is present in the bucket.
func (n *NatsObjectStore) Exists(_ context.Context, location string) (bool, error) {
	_, err := n.store.GetInfo(location)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat object '%s' in bucket '%s': %w", location, n.bucket, err)
	}

	return true, nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (n *NatsObjectStore) Delete(_ context.Context, location string) error {
	err := n.store.Delete(location)
	if err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete object '%s' from bucket '%s': %w", location, n.bucket, err)
	}

	return nil
}

// artifactName maps a client-supplied job id to a flat, collision-free name.
func artifactName(jobID string) string {
	return url.PathEscape(jobID) + ".mp3"
}
