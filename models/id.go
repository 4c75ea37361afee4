package models

import (
	"fmt"

	"github.com/google/uuid"
)

// assignID 在新增資料前產生 UUIDv7 主鍵
func assignID(id *uuid.UUID) error {
	if *id != uuid.Nil {
		return nil
	}
	v, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("[assignID] Fail to generate uuid, err=%w", err)
	}
	*id = v
	return nil
}
