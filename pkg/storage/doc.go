// Package storage provides the GORM-backed persistence layer for jobs.
package storage
