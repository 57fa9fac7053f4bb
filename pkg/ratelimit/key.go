package ratelimit

import "go.mongodb.org/mongo-driver/bson/primitive"

// KeyForUser builds the rate-limit key for an authenticated principal.
func KeyForUser(userID primitive.ObjectID) string {
	return "user:" + userID.Hex()
}

// KeyForIP builds the rate-limit key for an unauthenticated caller,
// identified only by client IP.
func KeyForIP(clientIP string) string {
	return "ip:" + clientIP
}
