// internal/logging/fields.go
package logging

import (
	"strconv"

	"github.com/fyrsmithlabs/clustereval/internal/config"
	"go.uber.org/zap"
)

// Secret creates a field that records only the length of a secret.
func Secret(key string, val config.Secret) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val.Value()))+"]")
}

// ClusterID tags a log entry with the cluster under evaluation.
func ClusterID(id string) zap.Field {
	return zap.String("cluster.id", id)
}

// Batch tags a log entry with a batch number.
func Batch(n int) zap.Field {
	return zap.Int("batch", n)
}
