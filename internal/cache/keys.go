package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// AnalysisKey holds an analysed table awaiting confirmation.
func AnalysisKey(analysisID uuid.UUID) string {
	return fmt.Sprintf("analysis:%s", analysisID)
}

func QueueKey() string {
	return "queue:batch"
}

func DeadLetterKey() string {
	return "queue:batch:dead"
}
