package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamDefinitionKey returns the cache key for an exam's full definition (questions + answer key)
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// RoomChannel returns the Redis PubSub channel that carries a notification room
func (r *CacheKeyStruct) RoomChannel(room string) string {
	return fmt.Sprintf("room:%s", room)
}

var CacheKey = NewCacheKeyStruct()
