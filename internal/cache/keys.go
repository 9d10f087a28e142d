package cache

import "fmt"

func PredictionStatusKey(predictionID string) string {
	return fmt.Sprintf("prediction:%s", predictionID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
