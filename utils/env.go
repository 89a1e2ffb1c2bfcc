package utils

import "os"

var (
	LOCK_DSN = os.Getenv("DELTACTL_LOCK_DSN")

	AWS_ACCESS_KEY_ID     = os.Getenv("AWS_ACCESS_KEY_ID")
	AWS_SECRET_ACCESS_KEY = os.Getenv("AWS_SECRET_ACCESS_KEY")
	AWS_DEFAULT_REGION    = GetEnvOrDefault("AWS_DEFAULT_REGION", "us-east-1")

	S3_ENDPOINT = os.Getenv("S3_ENDPOINT")

	HTTP_PORT = GetEnvOrDefault("HTTP_PORT", "8080")
)
