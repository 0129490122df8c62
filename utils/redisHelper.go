package utils

import (
	"os"
	"strconv"
	"time"
)

// CACHE_LIFESPAN in hours, default 1
func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil || lifespan <= 0 {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

func SessionKey(token string) string {
	return "session:" + token
}
