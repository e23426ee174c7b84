package pipeline

import (
	"path/filepath"
	"strings"
)

// FileType classifies an uploaded file by how its text is obtained.
type FileType string

const (
	FileTypeAudio FileType = "audio"
	FileTypeText  FileType = "text"
)

// TextExtensions are routed to the extractor; anything else is treated as
// audio and transcribed.
var TextExtensions = map[string]struct{}{
	".txt":  {},
	".md":   {},
	".pdf":  {},
	".epub": {},
	".mobi": {},
	".docx": {},
	".doc":  {},
	".rtf":  {},
	".odt":  {},
	".html": {},
	".htm":  {},
}

// AudioExtensions are the upload formats the transcriber accepts. Used for
// intake validation only; unknown extensions are rejected before a job is
// created.
var AudioExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".m4a":  {},
	".ogg":  {},
	".flac": {},
	".mp4":  {},
}

// InferFileType classifies a path by extension.
func InferFileType(path string) FileType {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := TextExtensions[ext]; ok {
		return FileTypeText
	}
	return FileTypeAudio
}

// SupportedExtension reports whether the extension is accepted at intake.
func SupportedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := TextExtensions[ext]; ok {
		return true
	}
	_, ok := AudioExtensions[ext]
	return ok
}
