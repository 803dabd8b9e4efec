package share

import (
	"path/filepath"
	"strings"
)

// FileType is a single bit in a Directory's 32-bit fileTypes bitmap,
// recording which type-classes occur anywhere in its subtree.
type FileType uint32

const (
	TypeAny        FileType = 0
	TypeAudio      FileType = 1 << iota
	TypeCompressed FileType = 1 << iota
	TypeDocument   FileType = 1 << iota
	TypeExecutable FileType = 1 << iota
	TypePicture    FileType = 1 << iota
	TypeVideo      FileType = 1 << iota
)

// classifyExtension maps a lowercased, dot-stripped file extension to its
// FileType bit. Unrecognized extensions classify as TypeAny (they still
// count toward "any" but no specific class), mirroring the extension
// switch the teacher uses for tagging.
func classifyExtension(ext string) FileType {
	switch ext {
	case "mp3", "wav", "flac", "aac", "ogg", "m4a", "wma":
		return TypeAudio
	case "zip", "rar", "7z", "tar", "gz", "bz2", "xz":
		return TypeCompressed
	case "txt", "md", "doc", "docx", "rtf", "pdf", "odt", "xls", "xlsx", "ppt", "pptx":
		return TypeDocument
	case "exe", "msi", "bat", "sh", "bin", "app", "deb", "rpm":
		return TypeExecutable
	case "jpg", "jpeg", "png", "gif", "bmp", "svg", "webp", "tiff":
		return TypePicture
	case "mp4", "avi", "mkv", "mov", "wmv", "flv", "webm", "mpg", "mpeg":
		return TypeVideo
	default:
		return TypeAny
	}
}

// FileTypeOf classifies a filename by its extension.
func FileTypeOf(name string) FileType {
	ext := strings.ToLower(filepath.Ext(name))
	ext = strings.TrimPrefix(ext, ".")
	return classifyExtension(ext)
}

// Has reports whether the bitmap contains type t. TypeAny always matches.
func Has(bitmap uint32, t FileType) bool {
	if t == TypeAny {
		return true
	}
	return bitmap&uint32(t) != 0
}
