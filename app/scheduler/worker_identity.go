package scheduler

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WorkerIdentity is the lock owner token a worker process stamps on claimed recipients
type WorkerIdentity struct {
	token string
}

// NewWorkerIdentity wraps a fixed token, e.g. from configuration or a test
func NewWorkerIdentity(token string) WorkerIdentity {
	return WorkerIdentity{token: strings.TrimSpace(token)}
}

// GenerateWorkerIdentity builds a token unique to this process: host, pid, start time and a random suffix
func GenerateWorkerIdentity() WorkerIdentity {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return WorkerIdentity{token: fmt.Sprintf("%s-%d-%d-%s", host, os.Getpid(), time.Now().UnixNano(), suffix)}
}

func (w WorkerIdentity) String() string { return w.token }

func (w WorkerIdentity) IsZero() bool { return w.token == "" }
