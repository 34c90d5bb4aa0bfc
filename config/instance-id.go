package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// GetInstanceID returns the ID of this instance of the application.
// In order, it uses:
//   - The replica name when running on Azure Container Apps
//   - The "service.instance.id" resource attribute in OTEL_RESOURCE_ATTRIBUTES
//   - A random value
func GetInstanceID() (string, error) {
	replica := os.Getenv("CONTAINER_APP_REPLICA_NAME")
	if replica != "" {
		return replica, nil
	}

	id := otelInstanceID(os.Getenv("OTEL_RESOURCE_ATTRIBUTES"))
	if id != "" {
		return id, nil
	}

	b := make([]byte, 7)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate random instance ID: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// otelInstanceID returns the value of the "service.instance.id" attribute in a list formatted like OTEL_RESOURCE_ATTRIBUTES.
// It returns an empty string if the attribute is missing or invalid.
func otelInstanceID(attrs string) string {
	for pair := range strings.SplitSeq(attrs, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) != "service.instance.id" {
			continue
		}

		// Values are percent-encoded
		val, err := url.PathUnescape(strings.TrimSpace(v))
		if err != nil {
			return ""
		}
		return val
	}

	return ""
}
