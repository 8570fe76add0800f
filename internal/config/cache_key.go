package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SlotIntentsKey returns the hash holding the latest unsaved slot writes of an exam
func (r *CacheKeyStruct) SlotIntentsKey(examID string) string {
	return fmt.Sprintf("exam:%s:slot_intents", examID)
}

// SlotIntentLockKey returns the key serializing persistence of one slot field of an exam
func (r *CacheKeyStruct) SlotIntentLockKey(examID, field string) string {
	return fmt.Sprintf("exam:%s:slot_lock:%s", examID, field)
}

// FinalizeLockKey returns the key guarding finalization of an exam
func (r *CacheKeyStruct) FinalizeLockKey(examID string) string {
	return fmt.Sprintf("exam:%s:finalize_lock", examID)
}

// ExamNoticeChannel returns the Redis PubSub channel for persistence notices of an exam
func (r *CacheKeyStruct) ExamNoticeChannel(examID string) string {
	return fmt.Sprintf("exam:%s:notices", examID)
}

// SubjectCatalogKey holds the cached subject list with question counts
func (r *CacheKeyStruct) SubjectCatalogKey() string {
	return "subjects:catalog"
}

var CacheKey = NewCacheKeyStruct()
