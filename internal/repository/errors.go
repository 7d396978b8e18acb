package repository

import "errors"

var (
	// ErrNotFound 实体不存在
	ErrNotFound = errors.New("not found")
	// ErrConflict 约束冲突（重复编码、存在下级引用等）
	ErrConflict = errors.New("conflict")
	// ErrValidation 入参校验失败
	ErrValidation = errors.New("validation failed")
)
